// Package join implements the nearest-timestamp join of two time ordered
// row series.
package join

import (
	"fmt"
	"slices"
	"time"

	"github.com/aarondl/opt/null"

	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

type (
	Option func(*config)
	config struct {
		tolerance      null.Val[time.Duration]
		rightColumns   []model.Column
		distanceColumn string
	}
)

// WithTolerance sets the maximum distance of a match. A match at exactly
// the tolerance is accepted.
func WithTolerance(d time.Duration) Option {
	return func(c *config) {
		c.tolerance = null.From(d)
	}
}

// WithRightColumns restricts the fields taken from the right rows. The
// columns are also used to fill nulls when the right series is empty.
func WithRightColumns(cols ...model.Column) Option {
	return func(c *config) {
		c.rightColumns = cols
	}
}

// WithDistanceColumn stores the absolute match distance in seconds
func WithDistanceColumn(name string) Option {
	return func(c *config) {
		c.distanceColumn = name
	}
}

// Nearest pairs every left row with the right row of minimal time distance.
// Both inputs must be sorted ascending by time (nulls last). The result has
// one row per left row in left order; left rows are cloned, inputs are not
// modified.
//
// Ties between two right rows go to the earlier one. Among right rows with
// identical times the last one is used, before and after the left time. Right fields never overwrite a
// column that already exists on the left row.
//
//nolint:funlen,cyclop // core algorithm
func Nearest(left, right []*model.Row, opts ...Option) ([]*model.Row, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	cols, err := rightSchema(left, right, cfg)
	if err != nil {
		return nil, err
	}
	candidates := make([]*model.Row, 0, len(right))
	for _, r := range right {
		if r.Time.IsValue() {
			candidates = append(candidates, r)
		}
	}

	ret := make([]*model.Row, 0, len(left))
	j := 0
	for _, l := range left {
		out := l.Clone()
		ret = append(ret, out)
		t, ok := l.Time.Get()
		if !ok || len(candidates) == 0 {
			fillNull(out, cols, cfg)
			continue
		}
		for j+1 < len(candidates) && candidates[j+1].Time.GetOrZero() <= t {
			j++
		}
		k := j
		dist := absDuration(candidates[k].Time.GetOrZero() - t)
		if candidates[k].Time.GetOrZero() <= t && k+1 < len(candidates) {
			if next := candidates[k+1].Time.GetOrZero() - t; next < dist {
				k++
				dist = next
			}
		}
		// the cursor already stops at the last of equal times up to t
		for k+1 < len(candidates) && candidates[k].Time.GetOrZero() > t &&
			candidates[k+1].Time.GetOrZero() == candidates[k].Time.GetOrZero() {
			k++
		}
		best := candidates[k]
		if tol, ok := cfg.tolerance.Get(); ok && dist > tol {
			fillNull(out, cols, cfg)
			continue
		}
		for _, c := range cols {
			if !l.Has(c.Name) {
				out.CopyFrom(best, c)
			}
		}
		if cfg.distanceColumn != "" {
			out.Num[cfg.distanceColumn] = null.From(dist.Seconds())
		}
	}
	return ret, nil
}

// SortAndJoin sorts copies of both inputs before joining. The result is in
// the original left order.
func SortAndJoin(left, right []*model.Row, opts ...Option) ([]*model.Row, error) {
	idx := make([]int, len(left))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return model.CompareTime(left[a], left[b])
	})
	sortedLeft := make([]*model.Row, len(left))
	for i, k := range idx {
		sortedLeft[i] = left[k]
	}
	sortedRight := slices.Clone(right)
	slices.SortStableFunc(sortedRight, model.CompareTime)

	joined, err := Nearest(sortedLeft, sortedRight, opts...)
	if err != nil {
		return nil, err
	}
	ret := make([]*model.Row, len(left))
	for i, k := range idx {
		ret[k] = joined[i]
	}
	return ret, nil
}

// rightSchema returns the columns to take from the right rows and checks
// that none of them is used with a different kind on the left.
func rightSchema(left, right []*model.Row, cfg *config) ([]model.Column, error) {
	cols := cfg.rightColumns
	if cols == nil {
		var err error
		if cols, err = model.SchemaOf(right); err != nil {
			return nil, fmt.Errorf("right series: %w", err)
		}
	}
	leftCols, err := model.SchemaOf(left)
	if err != nil {
		return nil, fmt.Errorf("left series: %w", err)
	}
	kinds := make(map[string]model.CellKind, len(leftCols))
	for _, c := range leftCols {
		kinds[c.Name] = c.Kind
	}
	for _, c := range cols {
		if k, ok := kinds[c.Name]; ok && k != c.Kind {
			return nil, fmt.Errorf("%w: %s is %s on the left and %s on the right",
				model.ErrSchemaConflict, c.Name, k, c.Kind)
		}
	}
	return cols, nil
}

func fillNull(out *model.Row, cols []model.Column, cfg *config) {
	for _, c := range cols {
		if !out.Has(c.Name) {
			out.SetNull(c)
		}
	}
	if cfg.distanceColumn != "" {
		out.Num[cfg.distanceColumn] = null.Val[float64]{}
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
