// Package source provides the raw per-session tables the merger works on.
package source

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

var ErrSessionNotFound = errors.New("session not found")

// table names as used for files and manifests
const (
	TableLaps    = "laps"
	TableWeather = "weather"
	TableGaps    = "gaps"
	TableCarData = "car_data"
	TablePosData = "pos_data"
)

// Session holds the raw tables of one session. Tables not provided by the
// source are nil.
type Session struct {
	Key     model.SessionKey
	Laps    *model.RawTable
	Weather *model.RawTable
	Gaps    *model.RawTable
	CarData *model.RawTable
	PosData *model.RawTable
}

// Table returns the raw table registered under name or nil
func (s *Session) Table(name string) *model.RawTable {
	switch name {
	case TableLaps:
		return s.Laps
	case TableWeather:
		return s.Weather
	case TableGaps:
		return s.Gaps
	case TableCarData:
		return s.CarData
	case TablePosData:
		return s.PosData
	}
	return nil
}

func (s *Session) setTable(name string, t *model.RawTable) {
	switch name {
	case TableLaps:
		s.Laps = t
	case TableWeather:
		s.Weather = t
	case TableGaps:
		s.Gaps = t
	case TableCarData:
		s.CarData = t
	case TablePosData:
		s.PosData = t
	}
}

// Source delivers raw session data. Fetch returns ErrSessionNotFound (possibly
// wrapped) if the source has no data for the requested key.
type Source interface {
	Open(ctx context.Context) error
	Fetch(ctx context.Context, key model.SessionKey) (*Session, error)
	Close() error
}

// Memory is a Source backed by sessions held in memory.
type Memory struct {
	mu       sync.RWMutex
	sessions map[model.SessionKey]*Session
}

func NewMemory(sessions ...*Session) *Memory {
	ret := &Memory{sessions: make(map[model.SessionKey]*Session)}
	for _, s := range sessions {
		ret.Put(s)
	}
	return ret
}

func (m *Memory) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Key] = s
}

// Keys returns the stored session keys in chronological order
func (m *Memory) Keys() []model.SessionKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := make([]model.SessionKey, 0, len(m.sessions))
	for k := range m.sessions {
		ret = append(ret, k)
	}
	slices.SortFunc(ret, model.SessionKey.Compare)
	return ret
}

func (m *Memory) Open(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }

func (m *Memory) Fetch(ctx context.Context, key model.SessionKey) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}
