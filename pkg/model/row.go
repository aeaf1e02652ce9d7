package model

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aarondl/opt/null"
)

var ErrSchemaConflict = errors.New("column declared with different kinds")

// CellKind describes how a cell is stored inside a Row
type CellKind int

const (
	CellOffset CellKind = iota // time offset since session start
	CellNum                    // numeric, durations are stored as seconds
	CellStr                    // categorical
	CellFlag                   // boolean
)

func (k CellKind) String() string {
	switch k {
	case CellOffset:
		return "offset"
	case CellNum:
		return "num"
	case CellStr:
		return "str"
	case CellFlag:
		return "flag"
	default:
		return fmt.Sprintf("CellKind(%d)", int(k))
	}
}

type Column struct {
	Name string
	Kind CellKind
}

// Row is one record of an entity at a point in time.
// A column that is present in one of the maps but holds a null value is an
// explicit null, a column missing from all maps is absent.
type Row struct {
	Session SessionKey
	Entity  string
	Time    null.Val[time.Duration] // join key
	Seq     int                     // original input order

	Times map[string]null.Val[time.Duration]
	Num   map[string]null.Val[float64]
	Str   map[string]null.Val[string]
	Flags map[string]null.Val[bool]
}

func NewRow(session SessionKey, entity string) *Row {
	return &Row{
		Session: session,
		Entity:  entity,
		Times:   map[string]null.Val[time.Duration]{},
		Num:     map[string]null.Val[float64]{},
		Str:     map[string]null.Val[string]{},
		Flags:   map[string]null.Val[bool]{},
	}
}

func (r *Row) Clone() *Row {
	ret := &Row{
		Session: r.Session,
		Entity:  r.Entity,
		Time:    r.Time,
		Seq:     r.Seq,
		Times:   make(map[string]null.Val[time.Duration], len(r.Times)),
		Num:     make(map[string]null.Val[float64], len(r.Num)),
		Str:     make(map[string]null.Val[string], len(r.Str)),
		Flags:   make(map[string]null.Val[bool], len(r.Flags)),
	}
	for k, v := range r.Times {
		ret.Times[k] = v
	}
	for k, v := range r.Num {
		ret.Num[k] = v
	}
	for k, v := range r.Str {
		ret.Str[k] = v
	}
	for k, v := range r.Flags {
		ret.Flags[k] = v
	}
	return ret
}

func (r *Row) Group(byEntity bool) GroupKey {
	if byEntity {
		return GroupKey{Session: r.Session, Entity: r.Entity}
	}
	return GroupKey{Session: r.Session}
}

// Kind returns the storage kind of the named column if present
func (r *Row) Kind(name string) (CellKind, bool) {
	if _, ok := r.Times[name]; ok {
		return CellOffset, true
	}
	if _, ok := r.Num[name]; ok {
		return CellNum, true
	}
	if _, ok := r.Str[name]; ok {
		return CellStr, true
	}
	if _, ok := r.Flags[name]; ok {
		return CellFlag, true
	}
	return 0, false
}

func (r *Row) Has(name string) bool {
	_, ok := r.Kind(name)
	return ok
}

// IsNull reports true for absent columns and explicit nulls
func (r *Row) IsNull(name string) bool {
	kind, ok := r.Kind(name)
	if !ok {
		return true
	}
	switch kind {
	case CellOffset:
		return r.Times[name].IsNull()
	case CellNum:
		return r.Num[name].IsNull()
	case CellStr:
		return r.Str[name].IsNull()
	default:
		return r.Flags[name].IsNull()
	}
}

func (r *Row) Float(name string) (float64, bool) {
	return r.Num[name].Get()
}

func (r *Row) Text(name string) (string, bool) {
	return r.Str[name].Get()
}

func (r *Row) Flag(name string) (bool, bool) {
	return r.Flags[name].Get()
}

func (r *Row) Offset(name string) (time.Duration, bool) {
	return r.Times[name].Get()
}

// SetNull stores an explicit null for col
func (r *Row) SetNull(col Column) {
	switch col.Kind {
	case CellOffset:
		r.Times[col.Name] = null.Val[time.Duration]{}
	case CellNum:
		r.Num[col.Name] = null.Val[float64]{}
	case CellStr:
		r.Str[col.Name] = null.Val[string]{}
	case CellFlag:
		r.Flags[col.Name] = null.Val[bool]{}
	}
}

// CopyFrom copies the cell col from other. Missing cells become explicit nulls.
func (r *Row) CopyFrom(other *Row, col Column) {
	switch col.Kind {
	case CellOffset:
		r.Times[col.Name] = other.Times[col.Name]
	case CellNum:
		r.Num[col.Name] = other.Num[col.Name]
	case CellStr:
		r.Str[col.Name] = other.Str[col.Name]
	case CellFlag:
		r.Flags[col.Name] = other.Flags[col.Name]
	}
}

// Value returns the cell as plain go value, nil for nulls
func (r *Row) Value(name string) any {
	kind, ok := r.Kind(name)
	if !ok {
		return nil
	}
	switch kind {
	case CellOffset:
		if v, ok := r.Times[name].Get(); ok {
			return v
		}
	case CellNum:
		if v, ok := r.Num[name].Get(); ok {
			return v
		}
	case CellStr:
		if v, ok := r.Str[name].Get(); ok {
			return v
		}
	case CellFlag:
		if v, ok := r.Flags[name].Get(); ok {
			return v
		}
	}
	return nil
}

// Columns returns the columns of the row sorted by name
func (r *Row) Columns() []Column {
	ret := make([]Column, 0, len(r.Times)+len(r.Num)+len(r.Str)+len(r.Flags))
	for k := range r.Times {
		ret = append(ret, Column{Name: k, Kind: CellOffset})
	}
	for k := range r.Num {
		ret = append(ret, Column{Name: k, Kind: CellNum})
	}
	for k := range r.Str {
		ret = append(ret, Column{Name: k, Kind: CellStr})
	}
	for k := range r.Flags {
		ret = append(ret, Column{Name: k, Kind: CellFlag})
	}
	slices.SortFunc(ret, compareColumn)
	return ret
}

func compareColumn(a, b Column) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return cmp.Compare(a.Kind, b.Kind)
}

// SchemaOf returns the sorted union of columns over rows.
// A column name used with two different kinds yields ErrSchemaConflict.
func SchemaOf(rows []*Row) ([]Column, error) {
	seen := map[string]CellKind{}
	for _, r := range rows {
		for _, c := range r.Columns() {
			if k, ok := seen[c.Name]; ok {
				if k != c.Kind {
					return nil, fmt.Errorf("%w: %s (%s vs %s)", ErrSchemaConflict, c.Name, k, c.Kind)
				}
				continue
			}
			seen[c.Name] = c.Kind
		}
	}
	ret := make([]Column, 0, len(seen))
	for name, kind := range seen {
		ret = append(ret, Column{Name: name, Kind: kind})
	}
	slices.SortFunc(ret, compareColumn)
	return ret, nil
}

// CompareTime orders rows by their join time, null times last
func CompareTime(a, b *Row) int {
	ta, okA := a.Time.Get()
	tb, okB := b.Time.Get()
	switch {
	case okA && okB:
		return cmp.Compare(ta, tb)
	case okA:
		return -1
	case okB:
		return 1
	default:
		return 0
	}
}
