package normalize

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrUnparsable = errors.New("value cannot be parsed")

var (
	// 0 days 00:01:30.000000, -1 days +23:59:59.5
	timedeltaRe = regexp.MustCompile(
		`^(-?\d+) days? ([+-]?)(\d{1,2}):(\d{2}):(\d{2}(?:\.\d+)?)$`)
	// hh:mm:ss(.fff) or mm:ss(.fff)
	clockRe = regexp.MustCompile(`^(-?)(?:(\d+):)?(\d{1,2}):(\d{2}(?:\.\d+)?)$`)
	// PT1M30S, P1DT2H, PT90.5S
	isoRe = regexp.MustCompile(
		`^(-?)P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)
)

var (
	nanosPerSecond = decimal.NewFromInt(int64(time.Second))
	maxNanos       = decimal.NewFromInt(math.MaxInt64)
	minNanos       = decimal.NewFromInt(math.MinInt64)
)

var absoluteLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// IsNullToken reports whether s denotes a missing value in the source data
func IsNullToken(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "NaN", "nan", "NaT", "None", "null", "<NA>":
		return true
	}
	return false
}

// secondsToDuration converts a decimal seconds text without loss of precision
func secondsToDuration(text string) (time.Duration, error) {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, err
	}
	nanos := d.Mul(nanosPerSecond).Round(0)
	if nanos.GreaterThan(maxNanos) || nanos.LessThan(minNanos) {
		return 0, fmt.Errorf("%w: %s seconds out of range", ErrUnparsable, text)
	}
	return time.Duration(nanos.IntPart()), nil
}

func atoiDur(text string, unit time.Duration) (time.Duration, error) {
	if text == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt64/int64(unit) || v < math.MinInt64/int64(unit) {
		return 0, fmt.Errorf("%w: %s x %s out of range", ErrUnparsable, text, unit)
	}
	return time.Duration(v) * unit, nil
}

// durationParts adds up "value unit" pairs, failing on overflow
type durationParts struct {
	sum time.Duration
	err error
}

func (p *durationParts) add(d time.Duration, err error) *durationParts {
	switch {
	case p.err != nil:
	case err != nil:
		p.err = err
	case d > 0 && p.sum > math.MaxInt64-d, d < 0 && p.sum < math.MinInt64-d:
		p.err = fmt.Errorf("%w: duration out of range", ErrUnparsable)
	default:
		p.sum += d
	}
	return p
}

func (p *durationParts) result(negate bool, s string) (time.Duration, error) {
	if p.err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrUnparsable, s, p.err)
	}
	if negate {
		return -p.sum, nil
	}
	return p.sum, nil
}

// ParseDuration accepts pandas timedelta text, clock text, ISO-8601
// durations, plain seconds and go durations. Values beyond the range of
// time.Duration are rejected.
//
//nolint:cyclop // one branch per encoding
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrUnparsable
	}
	if m := timedeltaRe.FindStringSubmatch(s); m != nil {
		clock := (&durationParts{}).
			add(atoiDur(m[3], time.Hour)).
			add(atoiDur(m[4], time.Minute)).
			add(secondsToDuration(m[5]))
		signed, err := clock.result(m[2] == "-", s)
		if err != nil {
			return 0, err
		}
		return (&durationParts{}).
			add(atoiDur(m[1], 24*time.Hour)).
			add(signed, nil).
			result(false, s)
	}
	if m := clockRe.FindStringSubmatch(s); m != nil {
		return (&durationParts{}).
			add(atoiDur(m[2], time.Hour)).
			add(atoiDur(m[3], time.Minute)).
			add(secondsToDuration(m[4])).
			result(m[1] == "-", s)
	}
	if m := isoRe.FindStringSubmatch(s); m != nil && m[2]+m[3]+m[4]+m[5] != "" {
		p := (&durationParts{}).
			add(atoiDur(m[2], 24*time.Hour)).
			add(atoiDur(m[3], time.Hour)).
			add(atoiDur(m[4], time.Minute))
		if m[5] != "" {
			p.add(secondsToDuration(m[5]))
		}
		return p.result(m[1] == "-", s)
	}
	if _, err := decimal.NewFromString(s); err == nil {
		return (&durationParts{}).add(secondsToDuration(s)).result(false, s)
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnparsable, s)
}

// ParseSeconds is ParseDuration expressed as float seconds
func ParseSeconds(s string) (float64, error) {
	d, err := ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return d.Seconds(), nil
}

// ParseAbsolute parses wall clock timestamps, values without zone are UTC
func ParseAbsolute(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparsable, s)
}

// ParseGap converts timing feed gap text. "+1.234" yields 1.234, any text
// mentioning laps ("1L", "+1 LAP", "LAP 1") yields lapped.
func ParseGap(s string, lapped float64) (float64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if strings.Contains(s, "L") {
		return lapped, nil
	}
	v, err := strconv.ParseFloat(strings.TrimPrefix(s, "+"), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnparsable, s)
	}
	return v, nil
}

func ParseFlag(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "1.0", "yes", "y", "t":
		return true, nil
	case "false", "0", "0.0", "no", "n", "f":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnparsable, s)
}

func ParseNumeric(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnparsable, s)
	}
	return v, nil
}
