package sink

import (
	"strconv"
	"strings"
	"time"

	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

// key columns written before the value columns of every row
const (
	ColSeason      = "session_season"
	ColRound       = "session_round"
	ColSessionType = "session_type"
	ColEntity      = "entity"
)

var keyNames = []string{ColSeason, ColRound, ColSessionType, ColEntity}

// layout fixes the column order of a table. Offsets are written as seconds.
type layout struct {
	columns []model.Column
}

func newLayout(tbl *model.Table) (*layout, error) {
	schema, err := tbl.Schema()
	if err != nil {
		return nil, err
	}
	taken := map[string]bool{}
	for _, k := range keyNames {
		taken[k] = true
	}
	ret := &layout{columns: make([]model.Column, 0, len(schema))}
	for _, c := range schema {
		// database identifiers are case insensitive
		lower := strings.ToLower(c.Name)
		if c.Name == "" || taken[lower] {
			continue
		}
		taken[lower] = true
		ret.columns = append(ret.columns, c)
	}
	return ret, nil
}

func (l *layout) header() []string {
	ret := make([]string, 0, len(keyNames)+len(l.columns))
	ret = append(ret, keyNames...)
	for _, c := range l.columns {
		ret = append(ret, c.Name)
	}
	return ret
}

func keyValues(r *model.Row) []any {
	return []any{r.Session.Season, r.Session.Round, string(r.Session.SessionType), r.Entity}
}

// value returns the cell as float64, string, bool or nil
func value(r *model.Row, c model.Column) any {
	v := r.Value(c.Name)
	if d, ok := v.(time.Duration); ok {
		return d.Seconds()
	}
	return v
}

// values returns key and value cells of r in layout order
func (l *layout) values(r *model.Row) []any {
	ret := keyValues(r)
	for _, c := range l.columns {
		ret = append(ret, value(r, c))
	}
	return ret
}

// record returns the value cells keyed by column name, nulls are omitted
func (l *layout) record(r *model.Row) map[string]any {
	ret := make(map[string]any, len(l.columns))
	for _, c := range l.columns {
		if v := value(r, c); v != nil {
			ret[c.Name] = v
		}
	}
	return ret
}

// text renders a cell for text formats, null is the empty string
func text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	}
	return ""
}
