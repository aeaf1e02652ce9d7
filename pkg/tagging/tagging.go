// Package tagging assigns high frequency samples to the lap that contains
// them.
package tagging

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/aarondl/opt/null"

	"github.com/mpapenbr/telemetry-merger/pkg/model"
	"github.com/mpapenbr/telemetry-merger/pkg/store"
)

// IntervalsFromLaps builds the intervals of every lap that has a start, an
// end and an ordinal. The result is sorted by group and start.
func IntervalsFromLaps(tbl *model.Table, ordinalCol, startCol, endCol string) []model.Interval {
	ret := make([]model.Interval, 0, len(tbl.Rows))
	for _, r := range tbl.Rows {
		start, okStart := r.Offset(startCol)
		end, okEnd := r.Offset(endCol)
		ordinal, okOrd := r.Float(ordinalCol)
		if !okStart || !okEnd || !okOrd || end < start {
			continue
		}
		ret = append(ret, model.Interval{
			Session: r.Session,
			Entity:  r.Entity,
			Ordinal: int(math.Round(ordinal)),
			Start:   start,
			End:     end,
		})
	}
	slices.SortFunc(ret, compareInterval)
	return ret
}

func compareInterval(a, b model.Interval) int {
	ka := model.GroupKey{Session: a.Session, Entity: a.Entity}
	kb := model.GroupKey{Session: b.Session, Entity: b.Entity}
	if c := ka.Compare(kb); c != 0 {
		return c
	}
	return cmp.Compare(a.Start, b.Start)
}

// Tag sets col to the ordinal of the interval whose [Start,End) range
// contains the sample time, null if there is none. Samples and intervals
// must belong to the same group and be sorted ascending. Samples are cloned.
func Tag(samples []*model.Row, intervals []model.Interval, col string) []*model.Row {
	ret := make([]*model.Row, len(samples))
	k := 0
	for i, s := range samples {
		out := s.Clone()
		ret[i] = out
		t, ok := s.Time.Get()
		if !ok {
			out.Num[col] = null.Val[float64]{}
			continue
		}
		for k < len(intervals) && intervals[k].End <= t {
			k++
		}
		if k < len(intervals) && intervals[k].Contains(t) {
			out.Num[col] = null.From(float64(intervals[k].Ordinal))
		} else {
			out.Num[col] = null.Val[float64]{}
		}
	}
	return ret
}

// TagStore tags every group of an entity partitioned sample store with the
// matching intervals. Groups are returned in sorted key order.
func TagStore(samples *store.Store, intervals []model.Interval, col string) []*model.Row {
	byGroup := map[model.GroupKey][]model.Interval{}
	for _, iv := range intervals {
		key := model.GroupKey{Session: iv.Session, Entity: iv.Entity}
		byGroup[key] = append(byGroup[key], iv)
	}
	ret := make([]*model.Row, 0, samples.Size())
	for _, key := range samples.Keys() {
		ret = append(ret, Tag(samples.Series(key), byGroup[key], col)...)
	}
	return ret
}

type lapKey struct {
	session model.SessionKey
	entity  string
	ordinal int
}

// AttachLapData left joins the lap columns onto tagged samples by ordinal.
// Excluded columns and columns the sample already has are not copied.
// Samples without a lap get explicit nulls for the lap columns.
//
//nolint:whitespace // can't make both editor and linter happy
func AttachLapData(
	tagged []*model.Row, laps *model.Table, ordinalCol string, exclude ...string,
) ([]*model.Row, error) {
	schema, err := laps.Schema()
	if err != nil {
		return nil, fmt.Errorf("lap table: %w", err)
	}
	skip := map[string]bool{ordinalCol: true}
	for _, e := range exclude {
		skip[e] = true
	}
	cols := slices.DeleteFunc(schema, func(c model.Column) bool { return skip[c.Name] })

	lookup := make(map[lapKey]*model.Row, len(laps.Rows))
	for _, r := range laps.Rows {
		if v, ok := r.Float(ordinalCol); ok {
			k := lapKey{r.Session, r.Entity, int(math.Round(v))}
			if _, dup := lookup[k]; !dup {
				lookup[k] = r
			}
		}
	}
	ret := make([]*model.Row, len(tagged))
	for i, s := range tagged {
		out := s.Clone()
		ret[i] = out
		var lapRow *model.Row
		if v, ok := s.Float(ordinalCol); ok {
			lapRow = lookup[lapKey{s.Session, s.Entity, int(math.Round(v))}]
		}
		for _, c := range cols {
			if out.Has(c.Name) {
				continue
			}
			if lapRow == nil {
				out.SetNull(c)
			} else {
				out.CopyFrom(lapRow, c)
			}
		}
	}
	return ret, nil
}

// Coverage returns the share of samples with an assigned interval
func Coverage(rows []*model.Row, col string) float64 {
	if len(rows) == 0 {
		return 0
	}
	n := 0
	for _, r := range rows {
		if !r.IsNull(col) {
			n++
		}
	}
	return float64(n) / float64(len(rows))
}
