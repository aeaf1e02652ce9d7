package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

var race = model.SessionKey{Season: 2023, Round: 6, SessionType: model.SessionRace}

func lapsManifest() *model.Manifest {
	return &model.Manifest{
		Name:   "laps",
		Entity: "DriverNumber",
		Time:   "LapStartTime",
		Columns: map[string]model.ColumnKind{
			"DriverNumber": model.KindCategorical,
			"LapStartTime": model.KindOffset,
			"LapStartDate": model.KindAbsoluteTime,
			"LapTime":      model.KindDuration,
			"LapNumber":    model.KindNumeric,
			"Deleted":      model.KindFlag,
			"Compound":     model.KindCategorical,
			"GapToLeader":  model.KindGap,
		},
		Intervals: []model.IntervalDecl{
			{Start: "LapStartTime", Duration: "LapTime", End: "LapEndTime"},
		},
	}
}

func TestNormalize(t *testing.T) {
	raw := &model.RawTable{
		Name:    "laps",
		Session: race,
		Header: []string{
			"DriverNumber", "LapStartTime", "LapStartDate", "LapTime", "LapNumber",
			"Deleted", "Compound", "GapToLeader", "Unknown",
		},
		Records: [][]string{
			{
				"4", "0 days 01:02:00", "2023-05-28 14:00:10", "0 days 00:01:30",
				"1.0", "False", "SOFT", "+1.5", "x",
			},
			{
				"4.0", "0 days 01:03:30", "2023-05-28 14:00:00", "", "2.0",
				"True", "SOFT", "1L", "x",
			},
			{
				"16", "broken", "2023-05-28 14:00:05", "not a lap", "3",
				"maybe", "HARD", "", "x",
			},
		},
	}
	tbl, report := Normalize(raw, lapsManifest())
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, 3, report.Rows)
	assert.Equal(t, map[string]int{"LapStartTime": 1, "LapTime": 1, "Deleted": 1}, report.ParseErrors)
	assert.Equal(t, 3, report.Total())

	r0 := tbl.Rows[0]
	assert.Equal(t, "4", r0.Entity)
	assert.Equal(t, race, r0.Session)
	assert.Equal(t, time.Hour+2*time.Minute, r0.Time.GetOrZero())
	lt, ok := r0.Float("LapTime")
	assert.True(t, ok)
	assert.InDelta(t, 90.0, lt, 1e-12)
	end, ok := r0.Offset("LapEndTime")
	assert.True(t, ok)
	assert.Equal(t, time.Hour+3*time.Minute+30*time.Second, end)
	// earliest LapStartDate is the epoch
	d, _ := r0.Offset("LapStartDate")
	assert.Equal(t, 10*time.Second, d)
	gap, _ := r0.Float("GapToLeader")
	assert.InDelta(t, 1.5, gap, 1e-12)
	assert.False(t, r0.Has("Unknown"))

	r1 := tbl.Rows[1]
	assert.Equal(t, "4", r1.Entity)
	assert.True(t, r1.Has("LapTime"))
	assert.True(t, r1.IsNull("LapTime"))
	assert.True(t, r1.IsNull("LapEndTime"))
	gap, _ = r1.Float("GapToLeader")
	assert.InDelta(t, DefaultLappedGap, gap, 1e-12)

	r2 := tbl.Rows[2]
	assert.True(t, r2.Time.IsNull())
	assert.True(t, r2.IsNull("Deleted"))
	assert.True(t, r2.IsNull("GapToLeader"))
	assert.Equal(t, 2, r2.Seq)
}

func TestNormalizeOptions(t *testing.T) {
	raw := &model.RawTable{
		Session: race,
		Header:  []string{"DriverNumber", "LapStartDate", "GapToLeader", "Extra"},
		Records: [][]string{{"1", "2023-05-28 14:00:10", "LAP 2", "foo"}},
	}
	m := lapsManifest()
	m.Passthrough = true
	epoch := time.Date(2023, 5, 28, 14, 0, 0, 0, time.UTC)
	tbl, _ := Normalize(raw, m, WithEpoch(epoch), WithLappedGap(120))
	r := tbl.Rows[0]
	d, _ := r.Offset("LapStartDate")
	assert.Equal(t, 10*time.Second, d)
	gap, _ := r.Float("GapToLeader")
	assert.InDelta(t, 120.0, gap, 1e-12)
	s, ok := r.Text("Extra")
	assert.True(t, ok)
	assert.Equal(t, "foo", s)
}

func TestNormalizeSessionColumns(t *testing.T) {
	raw := &model.RawTable{
		Session: race,
		Header:  []string{"year", "round", "session_type", "Time", "AirTemp"},
		Records: [][]string{
			{"2022", "7", "R", "0 days 00:00:10", "20.5"},
			{"2023", "6", "Q", "0 days 00:00:20", "21.5"},
			{"bad", "6", "Q", "0 days 00:00:30", "22.5"},
		},
	}
	m := &model.Manifest{
		Name: "weather",
		Time: "Time",
		Session: &model.SessionColumns{
			Season: "year", Round: "round", SessionType: "session_type",
		},
		Columns: map[string]model.ColumnKind{
			"Time": model.KindOffset, "AirTemp": model.KindNumeric,
		},
	}
	tbl, _ := Normalize(raw, m)
	assert.Equal(t, model.SessionKey{Season: 2022, Round: 7, SessionType: model.SessionRace},
		tbl.Rows[0].Session)
	assert.Equal(t, model.SessionKey{Season: 2023, Round: 6, SessionType: model.SessionQ},
		tbl.Rows[1].Session)
	assert.Equal(t, race, tbl.Rows[2].Session)
	assert.Empty(t, tbl.Rows[0].Entity)
}

func TestDeriveEnd(t *testing.T) {
	tbl, _ := Normalize(&model.RawTable{
		Session: race,
		Header:  []string{"DriverNumber", "LapStartTime", "LapTime"},
		Records: [][]string{
			{"1", "0 days 00:10:00", "0 days 00:01:17.123456"},
			{"1", "", "0 days 00:01:17"},
		},
	}, lapsManifest())
	end, ok := tbl.Rows[0].Offset("LapEndTime")
	assert.True(t, ok)
	assert.Equal(t, 11*time.Minute+17123456*time.Microsecond, end)
	assert.True(t, tbl.Rows[1].IsNull("LapEndTime"))
}
