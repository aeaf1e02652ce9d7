package tagging

import (
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/aarondl/opt/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/telemetry-merger/pkg/model"
	"github.com/mpapenbr/telemetry-merger/pkg/store"
)

var race = model.SessionKey{Season: 2023, Round: 6, SessionType: model.SessionRace}

func sec(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

func sample(entity string, t float64) *model.Row {
	r := model.NewRow(race, entity)
	r.Time = null.From(sec(t))
	r.Times[model.ColSessionTime] = r.Time
	return r
}

func lapRow(entity string, no, start, end float64, compound string) *model.Row {
	r := model.NewRow(race, entity)
	r.Num[model.ColLapNumber] = null.From(no)
	r.Times[model.ColLapStartTime] = null.From(sec(start))
	r.Times[model.ColLapEndTime] = null.From(sec(end))
	r.Str[model.ColCompound] = null.From(compound)
	return r
}

func ordinals(rows []*model.Row) []any {
	ret := make([]any, len(rows))
	for i, r := range rows {
		ret[i] = r.Value(model.ColLapNumber)
	}
	return ret
}

func TestTagBoundaries(t *testing.T) {
	intervals := []model.Interval{
		{Session: race, Entity: "4", Ordinal: 1, Start: sec(10), End: sec(20)},
		{Session: race, Entity: "4", Ordinal: 2, Start: sec(20), End: sec(30)},
		// lap 3 was filtered, leaves a gap
		{Session: race, Entity: "4", Ordinal: 4, Start: sec(40), End: sec(50)},
	}
	samples := []*model.Row{
		sample("4", 5),  // before session
		sample("4", 10), // start boundary
		sample("4", 19.999),
		sample("4", 20), // end of 1 is start of 2
		sample("4", 35), // gap
		sample("4", 40),
		sample("4", 50), // end boundary without successor
		sample("4", 60),
	}
	got := Tag(samples, intervals, model.ColLapNumber)
	assert.Equal(t, []any{nil, 1.0, 1.0, 2.0, nil, 4.0, nil, nil}, ordinals(got))
	assert.False(t, samples[1].Has(model.ColLapNumber), "input must not be modified")
	assert.InDelta(t, 4.0/8.0, Coverage(got, model.ColLapNumber), 1e-12)
}

func TestTagNullTime(t *testing.T) {
	s := sample("4", 0)
	s.Time = null.Val[time.Duration]{}
	got := Tag([]*model.Row{s},
		[]model.Interval{{Ordinal: 1, Start: 0, End: sec(10)}}, model.ColLapNumber)
	assert.True(t, got[0].Has(model.ColLapNumber))
	assert.True(t, got[0].IsNull(model.ColLapNumber))
}

func TestTagMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	intervals := []model.Interval{}
	start := 0.0
	for i := 1; i <= 30; i++ {
		dur := 60 + rng.Float64()*30
		if rng.IntN(5) > 0 { // some laps are missing
			intervals = append(intervals, model.Interval{Ordinal: i, Start: sec(start), End: sec(start + dur)})
		}
		start += dur
	}
	samples := make([]*model.Row, 2000)
	for i := range samples {
		samples[i] = sample("4", rng.Float64()*start*1.1)
	}
	slices.SortFunc(samples, model.CompareTime)
	got := Tag(samples, intervals, model.ColLapNumber)
	for i, s := range samples {
		var want any
		for _, iv := range intervals {
			if iv.Contains(s.Time.GetOrZero()) {
				want = float64(iv.Ordinal)
			}
		}
		assert.Equal(t, want, got[i].Value(model.ColLapNumber))
	}
}

func TestIntervalsFromLaps(t *testing.T) {
	unresolved := lapRow("4", 3, 200, 0, "SOFT")
	unresolved.Times[model.ColLapEndTime] = null.Val[time.Duration]{}
	tbl := model.NewTable("laps",
		lapRow("4", 2, 100, 190, "SOFT"),
		lapRow("16", 1, 5, 95, "HARD"),
		lapRow("4", 1, 10, 100, "SOFT"),
		unresolved,
	)
	got := IntervalsFromLaps(tbl, model.ColLapNumber, model.ColLapStartTime, model.ColLapEndTime)
	assert.Equal(t, []model.Interval{
		{Session: race, Entity: "4", Ordinal: 1, Start: sec(10), End: sec(100)},
		{Session: race, Entity: "4", Ordinal: 2, Start: sec(100), End: sec(190)},
		{Session: race, Entity: "16", Ordinal: 1, Start: sec(5), End: sec(95)},
	}, got)
}

func TestTagStoreAndAttach(t *testing.T) {
	laps := model.NewTable("laps",
		lapRow("4", 1, 10, 100, "SOFT"),
		lapRow("16", 1, 5, 95, "HARD"),
	)
	intervals := IntervalsFromLaps(laps, model.ColLapNumber, model.ColLapStartTime, model.ColLapEndTime)
	s := store.New(store.ByEntity(true))
	s.Add(sample("16", 50), sample("4", 200), sample("4", 50), sample("16", 1))

	tagged := TagStore(s, intervals, model.ColLapNumber)
	require.Len(t, tagged, 4)
	assert.Equal(t, []any{1.0, nil, nil, 1.0}, ordinals(tagged))

	attached, err := AttachLapData(tagged, laps, model.ColLapNumber,
		model.ColLapStartTime, model.ColLapEndTime)
	require.NoError(t, err)
	compounds := []any{}
	for _, r := range attached {
		compounds = append(compounds, r.Value(model.ColCompound))
		assert.False(t, r.Has(model.ColLapStartTime))
	}
	// entity 4 sorts before 16
	assert.Equal(t, []any{"SOFT", nil, nil, "HARD"}, compounds)
	assert.True(t, attached[1].Has(model.ColCompound))
}
