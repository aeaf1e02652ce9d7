package model

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ColumnKind is the declared semantic kind of a raw column
type ColumnKind string

const (
	KindAbsoluteTime ColumnKind = "absolute_time" // wall clock, converted to offset
	KindOffset       ColumnKind = "offset"        // timedelta since session start
	KindDuration     ColumnKind = "duration"      // converted to seconds
	KindNumeric      ColumnKind = "numeric"
	KindCategorical  ColumnKind = "categorical"
	KindFlag         ColumnKind = "flag"
	KindGap          ColumnKind = "gap" // timing feed gap text, converted to seconds
)

// Cell returns the storage kind used for values of k
func (k ColumnKind) Cell() CellKind {
	switch k {
	case KindAbsoluteTime, KindOffset:
		return CellOffset
	case KindDuration, KindNumeric, KindGap:
		return CellNum
	case KindFlag:
		return CellFlag
	default:
		return CellStr
	}
}

func (k ColumnKind) valid() bool {
	switch k {
	case KindAbsoluteTime, KindOffset, KindDuration, KindNumeric,
		KindCategorical, KindFlag, KindGap:
		return true
	}
	return false
}

type SessionColumns struct {
	Season      string `yaml:"season"`
	Round       string `yaml:"round"`
	SessionType string `yaml:"sessionType"`
}

// IntervalDecl requests End = Start + Duration
type IntervalDecl struct {
	Start    string `yaml:"start"`
	Duration string `yaml:"duration"`
	End      string `yaml:"end"`
}

// Manifest declares the recognized columns of one table kind.
// Columns not listed are dropped unless Passthrough is set, in which case
// they are kept as categorical values.
type Manifest struct {
	Name        string                `yaml:"name"`
	Entity      string                `yaml:"entity"`
	Time        string                `yaml:"time"`
	Session     *SessionColumns       `yaml:"session,omitempty"`
	Columns     map[string]ColumnKind `yaml:"columns"`
	Intervals   []IntervalDecl        `yaml:"intervals,omitempty"`
	Passthrough bool                  `yaml:"passthrough"`
}

type ManifestSet map[string]*Manifest

type manifestFile struct {
	Manifests []*Manifest `yaml:"manifests"`
}

//go:embed manifests.yml
var defaultManifests []byte

func (m *Manifest) Validate() error {
	if m.Name == "" {
		return errors.New("manifest without name")
	}
	for name, kind := range m.Columns {
		if !kind.valid() {
			return fmt.Errorf("manifest %s: column %s has unknown kind %q", m.Name, name, kind)
		}
	}
	if m.Time != "" {
		kind, ok := m.Columns[m.Time]
		if !ok {
			return fmt.Errorf("manifest %s: time column %s not declared", m.Name, m.Time)
		}
		if kind != KindOffset && kind != KindAbsoluteTime && kind != KindDuration {
			return fmt.Errorf("manifest %s: time column %s has kind %s", m.Name, m.Time, kind)
		}
	}
	for _, iv := range m.Intervals {
		if m.Columns[iv.Start].Cell() != CellOffset || m.Columns[iv.Duration] != KindDuration {
			return fmt.Errorf("manifest %s: interval %s needs offset start and duration",
				m.Name, iv.End)
		}
	}
	return nil
}

func (m *Manifest) Kind(name string) (ColumnKind, bool) {
	k, ok := m.Columns[name]
	return k, ok
}

// ColumnNames returns the declared columns sorted by name
func (m *Manifest) ColumnNames() []string {
	ret := make([]string, 0, len(m.Columns))
	for k := range m.Columns {
		ret = append(ret, k)
	}
	slices.Sort(ret)
	return ret
}

func LoadManifests(r io.Reader) (ManifestSet, error) {
	var f manifestFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode manifests: %w", err)
	}
	ret := ManifestSet{}
	for _, m := range f.Manifests {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		ret[m.Name] = m
	}
	return ret, nil
}

func LoadManifestFile(path string) (ManifestSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadManifests(f)
}

// DefaultManifests returns the built-in declarations for laps, weather, gaps,
// car_data and pos_data
func DefaultManifests() ManifestSet {
	ret, err := LoadManifests(bytes.NewReader(defaultManifests))
	if err != nil {
		panic(fmt.Sprintf("invalid built-in manifests: %v", err))
	}
	return ret
}

// Merge returns a new set where the entries of other replace those of s
func (s ManifestSet) Merge(other ManifestSet) ManifestSet {
	ret := ManifestSet{}
	for k, v := range s {
		ret[k] = v
	}
	for k, v := range other {
		ret[k] = v
	}
	return ret
}
