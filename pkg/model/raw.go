package model

// RawTable is a table as delivered by the acquisition layer: a header and
// positional text records. All rows belong to Session unless the manifest
// declares session columns.
type RawTable struct {
	Name    string
	Session SessionKey
	Header  []string
	Records [][]string
}

func (r *RawTable) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Records)
}

// ColumnLookup maps header names to record positions
type ColumnLookup struct {
	Header []string
	lookup map[string]int
}

func NewColumnLookup(header []string) *ColumnLookup {
	ret := &ColumnLookup{Header: header, lookup: make(map[string]int, len(header))}
	for i, v := range header {
		if _, ok := ret.lookup[v]; !ok {
			ret.lookup[v] = i
		}
	}
	return ret
}

func (c *ColumnLookup) Has(key string) bool {
	_, ok := c.lookup[key]
	return ok
}

func (c *ColumnLookup) Index(key string) (int, bool) {
	idx, ok := c.lookup[key]
	return idx, ok
}

// Extract returns the raw value of key. Unknown keys and short records
// yield an empty string.
func (c *ColumnLookup) Extract(record []string, key string) string {
	idx, ok := c.lookup[key]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}
