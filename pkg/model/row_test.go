package model

import (
	"errors"
	"testing"
	"time"

	"github.com/aarondl/opt/null"
	"github.com/stretchr/testify/assert"
)

func sampleRow() *Row {
	r := NewRow(SessionKey{2023, 6, SessionRace}, "4")
	r.Time = null.From(10 * time.Second)
	r.Times["LapStartTime"] = null.From(10 * time.Second)
	r.Num["LapTime"] = null.From(77.5)
	r.Num["TyreLife"] = null.Val[float64]{}
	r.Str["Compound"] = null.From("SOFT")
	r.Flags["Deleted"] = null.From(false)
	return r
}

func TestRowClone(t *testing.T) {
	r := sampleRow()
	c := r.Clone()
	c.Num["LapTime"] = null.From(1.0)
	c.Str["Compound"] = null.From("HARD")

	v, _ := r.Float("LapTime")
	assert.InDelta(t, 77.5, v, 1e-9)
	s, _ := r.Text("Compound")
	assert.Equal(t, "SOFT", s)
	assert.Equal(t, r.Time, c.Time)
}

func TestRowNulls(t *testing.T) {
	r := sampleRow()
	assert.True(t, r.Has("TyreLife"))
	assert.True(t, r.IsNull("TyreLife"))
	assert.False(t, r.Has("Rainfall"))
	assert.True(t, r.IsNull("Rainfall"))
	assert.False(t, r.IsNull("Deleted"))
	assert.Nil(t, r.Value("TyreLife"))
	assert.Equal(t, 10*time.Second, r.Value("LapStartTime"))
	assert.Equal(t, "SOFT", r.Value("Compound"))
}

func TestRowCopyFrom(t *testing.T) {
	src := sampleRow()
	dst := NewRow(src.Session, src.Entity)
	dst.CopyFrom(src, Column{Name: "Compound", Kind: CellStr})
	dst.CopyFrom(src, Column{Name: "Missing", Kind: CellNum})
	assert.Equal(t, "SOFT", dst.Value("Compound"))
	assert.True(t, dst.Has("Missing"))
	assert.True(t, dst.IsNull("Missing"))
}

func TestSchemaOf(t *testing.T) {
	r1 := sampleRow()
	r2 := NewRow(r1.Session, "16")
	r2.Num["AirTemp"] = null.From(21.0)

	got, err := SchemaOf([]*Row{r1, r2})
	assert.NoError(t, err)
	assert.Equal(t, []Column{
		{"AirTemp", CellNum},
		{"Compound", CellStr},
		{"Deleted", CellFlag},
		{"LapStartTime", CellOffset},
		{"LapTime", CellNum},
		{"TyreLife", CellNum},
	}, got)

	r3 := NewRow(r1.Session, "1")
	r3.Str["LapTime"] = null.From("1:17.5")
	_, err = SchemaOf([]*Row{r1, r3})
	assert.True(t, errors.Is(err, ErrSchemaConflict))
}
