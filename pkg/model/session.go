package model

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

type SessionType string

const (
	SessionFP1    SessionType = "FP1"
	SessionFP2    SessionType = "FP2"
	SessionFP3    SessionType = "FP3"
	SessionQ      SessionType = "Q"
	SessionSQ     SessionType = "SQ"
	SessionSprint SessionType = "S"
	SessionRace   SessionType = "R"
)

var sessionTypes = []SessionType{
	SessionFP1, SessionFP2, SessionFP3, SessionQ, SessionSQ, SessionSprint, SessionRace,
}

func ParseSessionType(s string) (SessionType, error) {
	for _, st := range sessionTypes {
		if strings.EqualFold(string(st), strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown session type %q", s)
}

// order returns the position of a session type within a race weekend
func (s SessionType) order() int {
	for i, st := range sessionTypes {
		if st == s {
			return i
		}
	}
	return len(sessionTypes)
}

// SessionKey identifies one independent unit of racing data
type SessionKey struct {
	Season      int
	Round       int
	SessionType SessionType
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%d/%d/%s", k.Season, k.Round, k.SessionType)
}

func (k SessionKey) Compare(o SessionKey) int {
	if c := cmp.Compare(k.Season, o.Season); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Round, o.Round); c != 0 {
		return c
	}
	return cmp.Compare(k.SessionType.order(), o.SessionType.order())
}

// ParseSessionKey parses keys like 2023/6/R
func ParseSessionKey(s string) (SessionKey, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return SessionKey{}, fmt.Errorf("invalid session key %q (want season/round/type)", s)
	}
	season, err := strconv.Atoi(parts[0])
	if err != nil {
		return SessionKey{}, fmt.Errorf("invalid season in %q: %w", s, err)
	}
	round, err := strconv.Atoi(parts[1])
	if err != nil {
		return SessionKey{}, fmt.Errorf("invalid round in %q: %w", s, err)
	}
	st, err := ParseSessionType(parts[2])
	if err != nil {
		return SessionKey{}, err
	}
	return SessionKey{Season: season, Round: round, SessionType: st}, nil
}

// ParseSessionKeys parses a comma separated list of session keys
func ParseSessionKeys(s string) ([]SessionKey, error) {
	ret := make([]SessionKey, 0)
	for _, item := range strings.Split(s, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		k, err := ParseSessionKey(item)
		if err != nil {
			return nil, err
		}
		ret = append(ret, k)
	}
	return ret, nil
}

// GroupKey is the unit of work for joins. Entity is empty when grouping by session only.
type GroupKey struct {
	Session SessionKey
	Entity  string
}

func (g GroupKey) String() string {
	if g.Entity == "" {
		return g.Session.String()
	}
	return fmt.Sprintf("%s/%s", g.Session, g.Entity)
}

func (g GroupKey) Compare(o GroupKey) int {
	if c := g.Session.Compare(o.Session); c != 0 {
		return c
	}
	return compareEntity(g.Entity, o.Entity)
}

// driver numbers compare numerically, everything else lexically
func compareEntity(a, b string) int {
	ai, errA := strconv.Atoi(a)
	bi, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(ai, bi)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
