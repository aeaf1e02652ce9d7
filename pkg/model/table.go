package model

import "time"

// common column names of the timing feed
const (
	ColLapTime      = "LapTime"
	ColLapNumber    = "LapNumber"
	ColLapStartTime = "LapStartTime"
	ColLapEndTime   = "LapEndTime"
	ColTyreLife     = "TyreLife"
	ColDeleted      = "Deleted"
	ColIsAccurate   = "IsAccurate"
	ColCompound     = "Compound"
	ColStint        = "Stint"
	ColTime         = "Time"
	ColSessionTime  = "SessionTime"
	ColDriver       = "Driver"
	ColDriverNumber = "DriverNumber"
	ColTrackTemp    = "TrackTemp"
	ColAirTemp      = "AirTemp"
	ColPressure     = "Pressure"
	ColRainfall     = "Rainfall"
	ColGapToLeader  = "GapToLeader"
	ColInterval     = "IntervalToPositionAhead"
)

// Table is a flat collection of rows of one kind (laps, weather, ...)
type Table struct {
	Name         string
	EntityColumn string // name used when writing Row.Entity
	TimeColumn   string // name of the column backing Row.Time
	Rows         []*Row
}

func NewTable(name string, rows ...*Row) *Table {
	return &Table{Name: name, EntityColumn: ColDriverNumber, Rows: rows}
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Schema returns the sorted union of the row columns
func (t *Table) Schema() ([]Column, error) {
	return SchemaOf(t.Rows)
}

func (t *Table) Clone() *Table {
	ret := &Table{
		Name:         t.Name,
		EntityColumn: t.EntityColumn,
		TimeColumn:   t.TimeColumn,
		Rows:         make([]*Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		ret.Rows[i] = r.Clone()
	}
	return ret
}

// Sessions returns the distinct session keys in order of appearance
func (t *Table) Sessions() []SessionKey {
	seen := map[SessionKey]bool{}
	ret := make([]SessionKey, 0)
	for _, r := range t.Rows {
		if !seen[r.Session] {
			seen[r.Session] = true
			ret = append(ret, r.Session)
		}
	}
	return ret
}

// Concat appends the rows of all tables. Rows are shared, not cloned.
func Concat(name string, tables ...*Table) *Table {
	ret := &Table{Name: name, EntityColumn: ColDriverNumber}
	for i, t := range tables {
		if t == nil {
			continue
		}
		if i == 0 || ret.TimeColumn == "" {
			ret.EntityColumn = t.EntityColumn
			ret.TimeColumn = t.TimeColumn
		}
		ret.Rows = append(ret.Rows, t.Rows...)
	}
	return ret
}

// Interval is a bounded time span of an entity, for example one lap
type Interval struct {
	Session SessionKey
	Entity  string
	Ordinal int
	Start   time.Duration
	End     time.Duration
}

// Contains uses half-open semantics [Start,End)
func (i Interval) Contains(t time.Duration) bool {
	return t >= i.Start && t < i.End
}
