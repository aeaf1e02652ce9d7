package strategy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mpapenbr/telemetry-merger/pkg/tyre"
)

// DefaultPitLoss is the time lost by a pit stop
const DefaultPitLoss = 20 * time.Second

var ErrInvalidStrategy = errors.New("invalid strategy")

type (
	Stint struct {
		Compound string
		Laps     int
	}
	// Strategy is a sequence of stints, a pit stop separates two stints
	Strategy []Stint
	// Weather holds the conditions assumed constant over the race
	Weather struct {
		TrackTemp float64
		AirTemp   float64
		Pressure  float64
		Rainfall  float64
	}
	SimulateParams struct {
		Strategy  Strategy
		Predictor tyre.Predictor
		Weather   Weather
		PitLoss   time.Duration
	}
)

func (s Strategy) String() string {
	parts := make([]string, len(s))
	for i, st := range s {
		parts[i] = fmt.Sprintf("%s(%d)", st.Compound, st.Laps)
	}
	return strings.Join(parts, "-")
}

// Laps returns the race distance covered by the strategy
func (s Strategy) Laps() int {
	ret := 0
	for _, st := range s {
		ret += st.Laps
	}
	return ret
}

// Generate returns all two stint strategies with different compounds where
// the first stint has at least minStint and the second more than minStint laps.
func Generate(totalLaps int, compounds []string, minStint int) []Strategy {
	ret := []Strategy{}
	for i := minStint; i < totalLaps-minStint; i++ {
		for _, c1 := range compounds {
			for _, c2 := range compounds {
				if c2 == c1 {
					continue
				}
				ret = append(ret, Strategy{{c1, i}, {c2, totalLaps - i}})
			}
		}
	}
	return ret
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

type simulator struct {
	param *SimulateParams
	parts []Part
}

func NewSimulator(param *SimulateParams) CalcStints {
	return &simulator{param: param}
}

// Simulate predicts every lap of the strategy and adds the pit loss between stints
func Simulate(param *SimulateParams) (*Result, error) {
	return NewSimulator(param).Calc()
}

func (c *simulator) Calc() (*Result, error) {
	if len(c.param.Strategy) == 0 {
		return nil, fmt.Errorf("%w: no stints", ErrInvalidStrategy)
	}
	c.parts = make([]Part, 0, 2*len(c.param.Strategy)-1)
	curLap := 1
	for idx, st := range c.param.Strategy {
		if st.Laps <= 0 {
			return nil, fmt.Errorf("%w: stint %d has %d laps", ErrInvalidStrategy, idx+1, st.Laps)
		}
		curStint := &stintPart{compound: st.Compound, lapStart: curLap}
		for life := 1; life <= st.Laps; life++ {
			lapTime, err := c.param.Predictor.PredictLap(tyre.Conditions{
				TyreLife:  float64(life),
				TrackTemp: c.param.Weather.TrackTemp,
				AirTemp:   c.param.Weather.AirTemp,
				Pressure:  c.param.Weather.Pressure,
				Rainfall:  c.param.Weather.Rainfall,
				Compound:  st.Compound,
			})
			if err != nil {
				return nil, fmt.Errorf("predict lap %d: %w", curLap+life-1, err)
			}
			curStint.stintTime += seconds(lapTime)
		}
		curStint.laps = st.Laps
		curStint.lapEnd = curLap + st.Laps - 1
		curLap += st.Laps
		c.parts = append(c.parts, curStint)
		if idx < len(c.param.Strategy)-1 {
			c.parts = append(c.parts, &pitPart{pitTime: c.param.PitLoss})
		}
	}
	return &Result{Parts: c.parts}, nil
}
