package store

import (
	"cmp"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

type (
	Option func(*Store)
	group  struct {
		rows   []*model.Row
		sorted bool
	}
	// Store holds the rows of one table kind partitioned by group key.
	// Series are sorted lazily on first read after an insertion.
	Store struct {
		mutex    sync.Mutex
		byEntity bool
		name     string
		groups   map[model.GroupKey]*group
		seq      int
		schema   map[string]model.CellKind
	}
)

// ByEntity partitions by (session, entity) instead of session only
func ByEntity(arg bool) Option {
	return func(s *Store) {
		s.byEntity = arg
	}
}

func WithName(name string) Option {
	return func(s *Store) {
		s.name = name
	}
}

func New(opts ...Option) *Store {
	ret := &Store{groups: map[model.GroupKey]*group{}, schema: map[string]model.CellKind{}}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// FromTable creates a store and adds all rows of tbl
func FromTable(tbl *model.Table, opts ...Option) *Store {
	ret := New(append([]Option{WithName(tbl.Name)}, opts...)...)
	ret.Add(tbl.Rows...)
	return ret
}

func (s *Store) Name() string {
	return s.name
}

func (s *Store) ByEntity() bool {
	return s.byEntity
}

// Add inserts rows in any order. Insertion order is kept for equal times.
func (s *Store) Add(rows ...*model.Row) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, r := range rows {
		key := r.Group(s.byEntity)
		g, ok := s.groups[key]
		if !ok {
			g = &group{}
			s.groups[key] = g
		}
		g.rows = append(g.rows, r)
		g.sorted = false
		s.seq++
		for _, c := range r.Columns() {
			if _, ok := s.schema[c.Name]; !ok {
				s.schema[c.Name] = c.Kind
			}
		}
	}
}

// Series returns the rows of key sorted ascending by time with null times
// last. A missing group yields an empty slice.
// The returned slice must not be modified by the caller.
func (s *Store) Series(key model.GroupKey) []*model.Row {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	g, ok := s.groups[key]
	if !ok {
		return []*model.Row{}
	}
	if !g.sorted {
		slices.SortStableFunc(g.rows, model.CompareTime)
		g.sorted = true
	}
	return g.rows
}

// Len returns the number of rows in group key
func (s *Store) Len(key model.GroupKey) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if g, ok := s.groups[key]; ok {
		return len(g.rows)
	}
	return 0
}

// Keys returns all group keys in sorted order
func (s *Store) Keys() []model.GroupKey {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	ret := lo.Keys(s.groups)
	slices.SortFunc(ret, model.GroupKey.Compare)
	return ret
}

func (s *Store) SessionKeys() []model.SessionKey {
	ret := lo.Uniq(lo.Map(s.Keys(), func(k model.GroupKey, _ int) model.SessionKey {
		return k.Session
	}))
	slices.SortFunc(ret, model.SessionKey.Compare)
	return ret
}

// Entities returns the entities of a session in sorted order.
// Stores partitioned by session only return an empty slice.
func (s *Store) Entities(session model.SessionKey) []string {
	ret := make([]string, 0)
	for _, k := range s.Keys() {
		if k.Session == session && k.Entity != "" {
			ret = append(ret, k.Entity)
		}
	}
	return ret
}

// Schema returns the first seen kind of every column in the store
func (s *Store) Schema() []model.Column {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	ret := make([]model.Column, 0, len(s.schema))
	for name, kind := range s.schema {
		ret = append(ret, model.Column{Name: name, Kind: kind})
	}
	slices.SortFunc(ret, func(a, b model.Column) int { return cmp.Compare(a.Name, b.Name) })
	return ret
}

func (s *Store) Size() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.seq
}
