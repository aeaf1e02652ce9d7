package strategy

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/mpapenbr/telemetry-merger/pkg/model"
	"github.com/mpapenbr/telemetry-merger/pkg/tyre"
)

type (
	Simulated struct {
		Strategy Strategy
		Result   *Result
		Total    time.Duration
	}
	Comparison struct {
		Weather  Weather
		RealTime time.Duration
		Stints   int
		Results  []Simulated // fastest first
	}
)

// median of the non null values of a numeric column. Returns 0 for no values.
func median(rows []*model.Row, col string) float64 {
	values := lo.FilterMap(rows, func(r *model.Row, _ int) (float64, bool) {
		return r.Float(col)
	})
	if len(values) == 0 {
		return 0
	}
	slices.Sort(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return (values[mid-1] + values[mid]) / 2
}

// MedianWeather derives constant race conditions from actual laps
func MedianWeather(actual *model.Table) Weather {
	return Weather{
		TrackTemp: median(actual.Rows, model.ColTrackTemp),
		AirTemp:   median(actual.Rows, model.ColAirTemp),
		Pressure:  median(actual.Rows, model.ColPressure),
	}
}

// RealTime sums the recorded lap times and adds pitLoss for every stint change
func RealTime(actual *model.Table, pitLoss time.Duration) (time.Duration, int) {
	var ret time.Duration
	for _, r := range actual.Rows {
		if v, ok := r.Float(model.ColLapTime); ok {
			ret += seconds(v)
		}
	}
	stints := lo.Uniq(lo.FilterMap(actual.Rows, func(r *model.Row, _ int) (float64, bool) {
		return r.Float(model.ColStint)
	}))
	if len(stints) > 1 {
		ret += time.Duration(len(stints)-1) * pitLoss
	}
	return ret, len(stints)
}

// Rank simulates all strategies under constant weather, fastest first. Equal
// totals keep the input order.
//
//nolint:whitespace // can't make both editor and linter happy
func Rank(
	strategies []Strategy,
	predictor tyre.Predictor,
	weather Weather,
	pitLoss time.Duration,
) ([]Simulated, error) {
	ret := make([]Simulated, 0, len(strategies))
	for _, s := range strategies {
		res, err := Simulate(&SimulateParams{
			Strategy:  s,
			Predictor: predictor,
			Weather:   weather,
			PitLoss:   pitLoss,
		})
		if err != nil {
			return nil, fmt.Errorf("simulate %s: %w", s, err)
		}
		ret = append(ret, Simulated{Strategy: s, Result: res, Total: res.Total()})
	}
	slices.SortStableFunc(ret, func(a, b Simulated) int {
		return cmp.Compare(a.Total, b.Total)
	})
	return ret, nil
}

// Compare ranks the strategies under the median weather of the actual laps
//
//nolint:whitespace // can't make both editor and linter happy
func Compare(
	actual *model.Table,
	strategies []Strategy,
	predictor tyre.Predictor,
	pitLoss time.Duration,
) (*Comparison, error) {
	ret := &Comparison{Weather: MedianWeather(actual)}
	ret.RealTime, ret.Stints = RealTime(actual, pitLoss)
	var err error
	if ret.Results, err = Rank(strategies, predictor, ret.Weather, pitLoss); err != nil {
		return nil, err
	}
	return ret, nil
}

// Best returns the fastest simulated strategy
func (c *Comparison) Best() (Simulated, bool) {
	if len(c.Results) == 0 {
		return Simulated{}, false
	}
	return c.Results[0], true
}
