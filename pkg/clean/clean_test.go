package clean

import (
	"context"
	"testing"

	"github.com/aarondl/opt/null"
	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

var race = model.SessionKey{Season: 2023, Round: 6, SessionType: model.SessionRace}

type lapDef struct {
	lapTime  *float64
	tyreLife *float64
	deleted  *bool
	accurate *bool
}

func ptr[T any](v T) *T { return &v }

func mkTable(defs ...lapDef) *model.Table {
	tbl := model.NewTable("laps")
	for i, d := range defs {
		r := model.NewRow(race, "4")
		r.Num["LapNumber"] = null.From(float64(i + 1))
		if d.lapTime != nil {
			r.Num["LapTime"] = null.From(*d.lapTime)
		} else {
			r.Num["LapTime"] = null.Val[float64]{}
		}
		if d.tyreLife != nil {
			r.Num["TyreLife"] = null.From(*d.tyreLife)
		}
		if d.deleted != nil {
			r.Flags["Deleted"] = null.From(*d.deleted)
		}
		if d.accurate != nil {
			r.Flags["IsAccurate"] = null.From(*d.accurate)
		}
		tbl.Rows = append(tbl.Rows, r)
	}
	return tbl
}

func lapNumbers(tbl *model.Table) []float64 {
	ret := []float64{}
	for _, r := range tbl.Rows {
		v, _ := r.Float("LapNumber")
		ret = append(ret, v)
	}
	return ret
}

func TestApply(t *testing.T) {
	tbl := mkTable(
		lapDef{lapTime: ptr(80.0), tyreLife: ptr(1.0), deleted: ptr(false)},  // 1 kept
		lapDef{lapTime: nil, tyreLife: ptr(2.0)},                             // 2 null lap time
		lapDef{lapTime: ptr(0.0), tyreLife: ptr(3.0)},                        // 3 zero lap time
		lapDef{lapTime: ptr(-1.0), tyreLife: ptr(3.0)},                       // 4 negative
		lapDef{lapTime: ptr(81.0), tyreLife: ptr(0.0)},                       // 5 new tyre
		lapDef{lapTime: ptr(82.0), tyreLife: ptr(5.0), deleted: ptr(true)},   // 6 deleted
		lapDef{lapTime: ptr(83.0)},                                           // 7 kept, no tyre info
		lapDef{lapTime: ptr(84.0), tyreLife: ptr(6.0), accurate: ptr(false)}, // 8 kept by default
	)
	got, report := New().Apply(context.Background(), tbl)
	assert.Equal(t, []float64{1, 7, 8}, lapNumbers(got))
	assert.Equal(t, []StageCount{
		{Stage: StageLapTime, Before: 8, After: 5},
		{Stage: StageTyreLife, Before: 5, After: 4},
		{Stage: StageDeleted, Before: 4, After: 3},
	}, report.Stages)
	assert.Equal(t, 8, report.Before())
	assert.Equal(t, 3, report.After())
	assert.Len(t, tbl.Rows, 8, "input must not be modified")

	got, _ = New(WithAccurate(true)).Apply(context.Background(), tbl)
	assert.Equal(t, []float64{1, 7}, lapNumbers(got))
}

func TestApplySkipsMissingColumns(t *testing.T) {
	tbl := mkTable(lapDef{lapTime: ptr(80.0)}, lapDef{lapTime: ptr(0.0)})
	got, report := New().Apply(context.Background(), tbl)
	assert.Equal(t, []float64{1}, lapNumbers(got))
	assert.False(t, report.Stages[0].Skipped)
	assert.True(t, report.Stages[1].Skipped)
	assert.True(t, report.Stages[2].Skipped)
}

func TestApplyEmptyResult(t *testing.T) {
	tbl := mkTable(lapDef{lapTime: nil}, lapDef{lapTime: ptr(0.0)})
	got, report := New().Apply(context.Background(), tbl)
	assert.NotNil(t, got)
	assert.Empty(t, got.Rows)
	assert.Equal(t, 0, report.After())

	got, report = New().Apply(context.Background(), model.NewTable("empty"))
	assert.Empty(t, got.Rows)
	assert.Equal(t, 0, report.Before())
}

func TestApplyIdempotent(t *testing.T) {
	tbl := mkTable(
		lapDef{lapTime: ptr(80.0), tyreLife: ptr(1.0), deleted: ptr(false)},
		lapDef{lapTime: ptr(81.0), tyreLife: ptr(0.0)},
		lapDef{lapTime: ptr(82.0), deleted: ptr(true)},
		lapDef{lapTime: nil},
	)
	f := New()
	once, _ := f.Apply(context.Background(), tbl)
	twice, _ := f.Apply(context.Background(), once)
	assert.Equal(t, lapNumbers(once), lapNumbers(twice))
}
