package store

import (
	"sync"
	"testing"
	"time"

	"github.com/aarondl/opt/null"
	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

var (
	race  = model.SessionKey{Season: 2023, Round: 6, SessionType: model.SessionRace}
	quali = model.SessionKey{Season: 2023, Round: 6, SessionType: model.SessionQ}
)

func row(session model.SessionKey, entity string, secs int, tag string) *model.Row {
	r := model.NewRow(session, entity)
	if secs >= 0 {
		r.Time = null.From(time.Duration(secs) * time.Second)
	}
	r.Str["tag"] = null.From(tag)
	return r
}

func tags(rows []*model.Row) []string {
	ret := make([]string, len(rows))
	for i, r := range rows {
		ret[i], _ = r.Text("tag")
	}
	return ret
}

func TestSeriesSorting(t *testing.T) {
	s := New(ByEntity(true))
	s.Add(
		row(race, "4", 30, "c"),
		row(race, "4", 10, "a"),
		row(race, "4", -1, "null1"),
		row(race, "4", 20, "b1"),
		row(race, "4", 20, "b2"),
		row(race, "16", 5, "x"),
	)
	key := model.GroupKey{Session: race, Entity: "4"}
	assert.Equal(t, []string{"a", "b1", "b2", "c", "null1"}, tags(s.Series(key)))

	// insertion after a read invalidates the cached order
	s.Add(row(race, "4", 20, "b3"), row(race, "4", 0, "start"))
	assert.Equal(t, []string{"start", "a", "b1", "b2", "b3", "c", "null1"}, tags(s.Series(key)))
	assert.Equal(t, 7, s.Len(key))
	assert.Equal(t, 8, s.Size())
}

func TestMissingGroup(t *testing.T) {
	s := New()
	got := s.Series(model.GroupKey{Session: race})
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, 0, s.Len(model.GroupKey{Session: race}))
}

func TestKeys(t *testing.T) {
	s := New(ByEntity(true))
	s.Add(
		row(race, "16", 1, ""),
		row(quali, "4", 1, ""),
		row(race, "4", 1, ""),
		row(race, "1", 1, ""),
	)
	assert.Equal(t, []model.GroupKey{
		{Session: quali, Entity: "4"},
		{Session: race, Entity: "1"},
		{Session: race, Entity: "4"},
		{Session: race, Entity: "16"},
	}, s.Keys())
	assert.Equal(t, []model.SessionKey{quali, race}, s.SessionKeys())
	assert.Equal(t, []string{"1", "4", "16"}, s.Entities(race))

	bySession := FromTable(model.NewTable("weather", row(race, "", 1, ""), row(quali, "", 2, "")))
	assert.Equal(t, "weather", bySession.Name())
	assert.Equal(t, []model.GroupKey{{Session: quali}, {Session: race}}, bySession.Keys())
	assert.Empty(t, bySession.Entities(race))
}

func TestSchema(t *testing.T) {
	r := row(race, "4", 1, "a")
	r.Num["AirTemp"] = null.From(20.0)
	s := New()
	s.Add(r)
	assert.Equal(t, []model.Column{
		{Name: "AirTemp", Kind: model.CellNum},
		{Name: "tag", Kind: model.CellStr},
	}, s.Schema())
}

func TestConcurrentReads(t *testing.T) {
	s := New(ByEntity(true))
	for i := 100; i > 0; i-- {
		s.Add(row(race, "4", i, ""))
	}
	key := model.GroupKey{Session: race, Entity: "4"}
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows := s.Series(key)
			assert.Len(t, rows, 100)
		}()
	}
	wg.Wait()
	first, _ := s.Series(key)[0].Time.Get()
	assert.Equal(t, time.Second, first)
}
