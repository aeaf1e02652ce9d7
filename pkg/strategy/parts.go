// Package strategy simulates and compares pit stop strategies with a lap time
// predictor.
package strategy

import (
	"fmt"
	"strings"
	"time"
)

type (
	PartType   int
	CalcStints interface {
		Calc() (*Result, error)
	}
	Part interface {
		Type() PartType
		Output() string
	}
	StintPart interface {
		Part
		Compound() string
		Laps() int
		LapStart() int
		LapEnd() int
		StintTime() time.Duration
	}
	PitPart interface {
		Part
		PitTime() time.Duration
	}
	Result struct {
		Parts []Part
	}
)

const (
	PartTypeStint PartType = iota
	PartTypePit
)

type (
	stintPart struct {
		compound  string
		laps      int
		lapStart  int
		lapEnd    int
		stintTime time.Duration
	}
	pitPart struct {
		pitTime time.Duration
	}
)

func (s stintPart) Type() PartType {
	return PartTypeStint
}

func (s stintPart) Compound() string {
	return s.compound
}

func (s stintPart) Laps() int {
	return s.laps
}

func (s stintPart) LapStart() int {
	return s.lapStart
}

func (s stintPart) LapEnd() int {
	return s.lapEnd
}

func (s stintPart) StintTime() time.Duration {
	return s.stintTime
}

func (s stintPart) Output() string {
	return fmt.Sprintf("%s %d-%d (%d): %s", s.compound, s.lapStart, s.lapEnd, s.laps, s.stintTime)
}

func (p pitPart) Type() PartType {
	return PartTypePit
}

func (p pitPart) PitTime() time.Duration {
	return p.pitTime
}

func (p pitPart) Output() string {
	return fmt.Sprintf("Pit %s", p.pitTime)
}

// Total returns the sum of all stint and pit times
func (r *Result) Total() time.Duration {
	var ret time.Duration
	for _, p := range r.Parts {
		switch v := p.(type) {
		case StintPart:
			ret += v.StintTime()
		case PitPart:
			ret += v.PitTime()
		}
	}
	return ret
}

func (r *Result) Output() string {
	lines := make([]string, len(r.Parts))
	for i, p := range r.Parts {
		lines[i] = p.Output()
	}
	return strings.Join(lines, "\n")
}
