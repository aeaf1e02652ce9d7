// Package basedata provides sample tables for tests of the output layers.
package basedata

import (
	"time"

	"github.com/aarondl/opt/null"

	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

func SampleSession() model.SessionKey {
	return model.SessionKey{Season: 2023, Round: 6, SessionType: model.SessionRace}
}

// SampleMergedTable returns three merged lap rows of two drivers. The second
// row carries nulls in every value kind.
func SampleMergedTable() *model.Table {
	s := SampleSession()

	r1 := model.NewRow(s, "1")
	r1.Time = null.From(100 * time.Second)
	r1.Times[model.ColLapStartTime] = null.From(100 * time.Second)
	r1.Num[model.ColLapTime] = null.From(90.5)
	r1.Num[model.ColLapNumber] = null.From(1.0)
	r1.Num[model.ColAirTemp] = null.From(21.5)
	r1.Str[model.ColCompound] = null.From("SOFT")
	r1.Str[model.ColDriver] = null.From("VER")
	r1.Flags[model.ColRainfall] = null.From(false)

	r2 := model.NewRow(s, "1")
	r2.Seq = 1
	r2.Time = null.From(190 * time.Second)
	r2.Times[model.ColLapStartTime] = null.From(190 * time.Second)
	r2.Num[model.ColLapTime] = null.From(91.25)
	r2.Num[model.ColLapNumber] = null.From(2.0)
	r2.Num[model.ColAirTemp] = null.Val[float64]{}
	r2.Str[model.ColCompound] = null.Val[string]{}
	r2.Str[model.ColDriver] = null.From("VER")
	r2.Flags[model.ColRainfall] = null.Val[bool]{}

	r3 := model.NewRow(s, "44")
	r3.Seq = 2
	r3.Time = null.From(101 * time.Second)
	r3.Times[model.ColLapStartTime] = null.From(101 * time.Second)
	r3.Num[model.ColLapTime] = null.From(92.0)
	r3.Num[model.ColLapNumber] = null.From(1.0)
	r3.Num[model.ColAirTemp] = null.From(21.5)
	r3.Str[model.ColCompound] = null.From("MEDIUM")
	r3.Str[model.ColDriver] = null.From("HAM")
	r3.Flags[model.ColRainfall] = null.From(true)

	tbl := model.NewTable("merged", r1, r2, r3)
	tbl.TimeColumn = model.ColLapStartTime
	return tbl
}
