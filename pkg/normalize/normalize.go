package normalize

import (
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aarondl/opt/null"

	"github.com/mpapenbr/telemetry-merger/log"
	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

// DefaultLappedGap is used for gap values of lapped cars ("1L")
const DefaultLappedGap = 90.0

type (
	Option     func(*normalizer)
	normalizer struct {
		epoch     *time.Time
		lappedGap float64
		l         *log.Logger
	}
	// Report collects the parse failures of one Normalize call
	Report struct {
		Table       string
		Rows        int
		ParseErrors map[string]int
		examples    map[string]string
	}
)

func WithEpoch(epoch time.Time) Option {
	return func(n *normalizer) {
		n.epoch = &epoch
	}
}

func WithLappedGap(v float64) Option {
	return func(n *normalizer) {
		n.lappedGap = v
	}
}

func WithLogger(l *log.Logger) Option {
	return func(n *normalizer) {
		n.l = l
	}
}

func (r *Report) Total() int {
	ret := 0
	for _, v := range r.ParseErrors {
		ret += v
	}
	return ret
}

func (r *Report) add(col, value string) {
	r.ParseErrors[col]++
	if _, ok := r.examples[col]; !ok {
		r.examples[col] = value
	}
}

// Normalize converts the raw records into typed rows according to the
// manifest. Cells that cannot be parsed are nulled and counted, the row is kept.
//
//nolint:funlen,whitespace // sequential steps
func Normalize(
	raw *model.RawTable, m *model.Manifest, opts ...Option,
) (*model.Table, *Report) {
	n := &normalizer{
		lappedGap: DefaultLappedGap,
		l:         log.Default().Named("normalize"),
	}
	for _, opt := range opts {
		opt(n)
	}
	report := &Report{
		Table:       m.Name,
		ParseErrors: map[string]int{},
		examples:    map[string]string{},
	}
	tbl := &model.Table{
		Name:         m.Name,
		EntityColumn: m.Entity,
		TimeColumn:   m.Time,
		Rows:         make([]*model.Row, 0, raw.Len()),
	}
	if m.Entity == "" {
		tbl.EntityColumn = model.ColDriverNumber
	}
	lookup := model.NewColumnLookup(raw.Header)
	columns := n.columns(lookup, m)

	sessions := make([]model.SessionKey, len(raw.Records))
	for i, rec := range raw.Records {
		sessions[i] = n.sessionOf(lookup, m, raw, rec)
	}
	epochs := n.epochs(lookup, m, raw, sessions)

	for i, rec := range raw.Records {
		entity := ""
		if m.Entity != "" {
			entity = normalizeEntity(lookup.Extract(rec, m.Entity))
		}
		row := model.NewRow(sessions[i], entity)
		row.Seq = i
		for _, col := range columns {
			text := lookup.Extract(rec, col.name)
			n.convert(row, col, text, epochs[sessions[i]], report)
		}
		if m.Time != "" {
			row.Time = timeKey(row, m.Time, m.Columns[m.Time])
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	for _, iv := range m.Intervals {
		DeriveEnd(tbl, iv.Start, iv.Duration, iv.End)
	}
	report.Rows = len(tbl.Rows)

	for _, col := range slices.Sorted(maps.Keys(report.ParseErrors)) {
		n.l.Warn("column contains unparsable values",
			log.String("table", m.Name),
			log.String("column", col),
			log.Int("count", report.ParseErrors[col]),
			log.String("example", report.examples[col]))
	}
	n.l.Debug("normalized table",
		log.String("table", m.Name),
		log.Int("rows", report.Rows),
		log.Int("parseErrors", report.Total()))
	return tbl, report
}

type declared struct {
	name string
	kind model.ColumnKind
}

func (n *normalizer) columns(lookup *model.ColumnLookup, m *model.Manifest) []declared {
	ret := make([]declared, 0, len(m.Columns))
	for _, name := range m.ColumnNames() {
		if !lookup.Has(name) {
			n.l.Debug("declared column not present",
				log.String("table", m.Name), log.String("column", name))
			continue
		}
		ret = append(ret, declared{name: name, kind: m.Columns[name]})
	}
	if !m.Passthrough {
		return ret
	}
	skip := map[string]bool{}
	if m.Session != nil {
		skip[m.Session.Season] = true
		skip[m.Session.Round] = true
		skip[m.Session.SessionType] = true
	}
	for _, h := range lookup.Header {
		if _, ok := m.Columns[h]; ok || skip[h] || h == "" {
			continue
		}
		ret = append(ret, declared{name: h, kind: model.KindCategorical})
	}
	return ret
}

//nolint:whitespace // can't make both editor and linter happy
func (n *normalizer) sessionOf(
	lookup *model.ColumnLookup, m *model.Manifest, raw *model.RawTable, rec []string,
) model.SessionKey {
	ret := raw.Session
	if m.Session == nil || !lookup.Has(m.Session.Season) {
		return ret
	}
	season, err := strconv.Atoi(strings.TrimSpace(lookup.Extract(rec, m.Session.Season)))
	if err != nil {
		return ret
	}
	round, err := strconv.Atoi(strings.TrimSpace(lookup.Extract(rec, m.Session.Round)))
	if err != nil {
		return ret
	}
	st, err := model.ParseSessionType(lookup.Extract(rec, m.Session.SessionType))
	if err != nil {
		return ret
	}
	return model.SessionKey{Season: season, Round: round, SessionType: st}
}

// epochs determines the reference time per session for absolute_time columns.
//
//nolint:whitespace // can't make both editor and linter happy
func (n *normalizer) epochs(
	lookup *model.ColumnLookup,
	m *model.Manifest,
	raw *model.RawTable,
	sessions []model.SessionKey,
) map[model.SessionKey]time.Time {
	ret := map[model.SessionKey]time.Time{}
	if n.epoch != nil {
		for _, s := range sessions {
			ret[s] = *n.epoch
		}
		return ret
	}
	for _, name := range m.ColumnNames() {
		if m.Columns[name] != model.KindAbsoluteTime || !lookup.Has(name) {
			continue
		}
		for i, rec := range raw.Records {
			t, err := ParseAbsolute(lookup.Extract(rec, name))
			if err != nil {
				continue
			}
			if cur, ok := ret[sessions[i]]; !ok || t.Before(cur) {
				ret[sessions[i]] = t
			}
		}
	}
	return ret
}

//nolint:whitespace,cyclop // can't make both editor and linter happy
func (n *normalizer) convert(
	row *model.Row, col declared, text string, epoch time.Time, report *Report,
) {
	cell := model.Column{Name: col.name, Kind: col.kind.Cell()}
	if IsNullToken(text) {
		row.SetNull(cell)
		return
	}
	fail := func() {
		row.SetNull(cell)
		report.add(col.name, text)
	}
	switch col.kind {
	case model.KindAbsoluteTime:
		t, err := ParseAbsolute(text)
		if err != nil || epoch.IsZero() {
			fail()
			return
		}
		row.Times[col.name] = null.From(t.Sub(epoch))
	case model.KindOffset:
		d, err := ParseDuration(text)
		if err != nil {
			fail()
			return
		}
		row.Times[col.name] = null.From(d)
	case model.KindDuration:
		d, err := ParseDuration(text)
		if err != nil {
			fail()
			return
		}
		row.Num[col.name] = null.From(d.Seconds())
	case model.KindGap:
		v, err := ParseGap(text, n.lappedGap)
		if err != nil {
			fail()
			return
		}
		row.Num[col.name] = null.From(v)
	case model.KindNumeric:
		v, err := ParseNumeric(text)
		if err != nil {
			fail()
			return
		}
		row.Num[col.name] = null.From(v)
	case model.KindFlag:
		v, err := ParseFlag(text)
		if err != nil {
			fail()
			return
		}
		row.Flags[col.name] = null.From(v)
	default:
		row.Str[col.name] = null.From(strings.TrimSpace(text))
	}
}

func timeKey(row *model.Row, name string, kind model.ColumnKind) null.Val[time.Duration] {
	if kind == model.KindDuration {
		if v, ok := row.Float(name); ok {
			return null.From(SecondsToDuration(v))
		}
		return null.Val[time.Duration]{}
	}
	return row.Times[name]
}

// SecondsToDuration rounds to the nearest nanosecond
func SecondsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * float64(time.Second)))
}

// DeriveEnd sets endCol = startCol + durCol (seconds) for every row.
// The end is null when either input is null.
func DeriveEnd(tbl *model.Table, startCol, durCol, endCol string) {
	for _, r := range tbl.Rows {
		start, okStart := r.Offset(startCol)
		dur, okDur := r.Float(durCol)
		if !okStart || !okDur {
			r.Times[endCol] = null.Val[time.Duration]{}
			continue
		}
		r.Times[endCol] = null.From(start + SecondsToDuration(dur))
	}
}

// pandas writes driver numbers of float columns as "4.0"
func normalizeEntity(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ".0") {
		if _, err := strconv.Atoi(strings.TrimSuffix(s, ".0")); err == nil {
			return strings.TrimSuffix(s, ".0")
		}
	}
	return s
}
