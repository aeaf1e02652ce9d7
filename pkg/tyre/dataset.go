// Package tyre models lap times as a function of tyre age, compound and
// weather.
package tyre

import (
	"errors"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

// CompoundPrefix is the prefix of the one-hot compound features
const CompoundPrefix = "Compound_"

var (
	ErrNoData          = errors.New("no usable rows")
	ErrFeatureMismatch = errors.New("features do not match the trained model")
)

// BaseFeatures are the numeric inputs of the standard model
var BaseFeatures = []string{
	model.ColTyreLife, model.ColTrackTemp, model.ColAirTemp, model.ColPressure,
}

// TrafficFeatures are added for the traffic aware model
var TrafficFeatures = []string{model.ColGapToLeader, model.ColInterval}

// MapCompound folds the pre 2019 soft compounds into SOFT
func MapCompound(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	switch c {
	case "HYPERSOFT", "ULTRASOFT", "SUPERSOFT", "SOFT":
		return "SOFT"
	}
	return c
}

type (
	// Dataset is a feature matrix with named columns and lap times in seconds
	Dataset struct {
		Features []string
		X        [][]float64
		Y        []float64
	}
	// Selection restricts the rows used for a dataset
	Selection struct {
		SessionTypes []model.SessionType // empty means all
		BeforeSeason int                 // 0 means no limit
		Numeric      []string            // defaults to BaseFeatures
	}
)

func (s Selection) accept(k model.SessionKey) bool {
	if s.BeforeSeason > 0 && k.Season >= s.BeforeSeason {
		return false
	}
	return len(s.SessionTypes) == 0 || slices.Contains(s.SessionTypes, k.SessionType)
}

// BuildDataset extracts the training data from merged lap rows. Rows missing
// the lap time, the compound or any numeric feature are dropped.
func BuildDataset(tbl *model.Table, sel Selection) (*Dataset, error) {
	numeric := sel.Numeric
	if len(numeric) == 0 {
		numeric = BaseFeatures
	}
	type sample struct {
		values   []float64
		compound string
		y        float64
	}
	samples := make([]sample, 0, len(tbl.Rows))
	compounds := map[string]bool{}
rows:
	for _, r := range tbl.Rows {
		if !sel.accept(r.Session) {
			continue
		}
		y, ok := r.Float(model.ColLapTime)
		if !ok {
			continue
		}
		c, ok := r.Text(model.ColCompound)
		if !ok || c == "" {
			continue
		}
		values := make([]float64, len(numeric))
		for i, name := range numeric {
			v, ok := numericValue(r, name)
			if !ok {
				continue rows
			}
			values[i] = v
		}
		c = MapCompound(c)
		compounds[c] = true
		samples = append(samples, sample{values: values, compound: c, y: y})
	}
	if len(samples) == 0 {
		return nil, ErrNoData
	}
	names := make([]string, 0, len(compounds))
	for c := range compounds {
		names = append(names, c)
	}
	slices.Sort(names)

	ret := &Dataset{Features: slices.Clone(numeric)}
	for _, c := range names {
		ret.Features = append(ret.Features, CompoundPrefix+c)
	}
	for _, s := range samples {
		x := make([]float64, 0, len(ret.Features))
		x = append(x, s.values...)
		for _, c := range names {
			x = append(x, oneHot(c == s.compound))
		}
		ret.X = append(ret.X, x)
		ret.Y = append(ret.Y, s.y)
	}
	return ret, nil
}

// numericValue reads numbers and flags (as 0/1)
func numericValue(r *model.Row, name string) (float64, bool) {
	if v, ok := r.Float(name); ok {
		return v, true
	}
	if v, ok := r.Flag(name); ok {
		return oneHot(v), true
	}
	return 0, false
}

func oneHot(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Len returns the number of samples
func (d *Dataset) Len() int {
	return len(d.Y)
}

// Split shuffles deterministically and returns train and test sets. The test
// set receives round(testFraction*n) samples.
func (d *Dataset) Split(testFraction float64, seed uint64) (train, test *Dataset) {
	idx := make([]int, d.Len())
	for i := range idx {
		idx[i] = i
	}
	rnd := rand.New(rand.NewPCG(seed, seed))
	rnd.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	nTest := int(testFraction*float64(len(idx)) + 0.5)
	pick := func(ids []int) *Dataset {
		ret := &Dataset{Features: d.Features}
		for _, i := range ids {
			ret.X = append(ret.X, d.X[i])
			ret.Y = append(ret.Y, d.Y[i])
		}
		return ret
	}
	return pick(idx[nTest:]), pick(idx[:nTest])
}

// Vector builds a model input from named values. One-hot compound features
// are set from compound, features without a value are 0.
func Vector(features []string, values map[string]float64, compound string) []float64 {
	mapped := MapCompound(compound)
	ret := make([]float64, len(features))
	for i, f := range features {
		if c, ok := strings.CutPrefix(f, CompoundPrefix); ok {
			ret[i] = oneHot(strings.EqualFold(c, mapped))
			continue
		}
		ret[i] = values[f]
	}
	return ret
}
