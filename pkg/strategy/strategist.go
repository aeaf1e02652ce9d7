package strategy

import (
	"fmt"

	"github.com/mpapenbr/telemetry-merger/log"
	"github.com/mpapenbr/telemetry-merger/pkg/tyre"
)

const (
	DegradationThreshold = 1.5 // seconds lost to the previous lap
	RainCheckLap         = 5   // stint lap at which rain forces a stop
	MaxTyreAge           = 25
)

type PitReason int

const (
	NoPit PitReason = iota
	PitDegradation
	PitRain
	PitTyreAge
)

func (r PitReason) String() string {
	switch r {
	case NoPit:
		return "none"
	case PitDegradation:
		return "degradation"
	case PitRain:
		return "rain"
	case PitTyreAge:
		return "tyre age"
	default:
		return fmt.Sprintf("PitReason(%d)", int(r))
	}
}

type (
	StintParams struct {
		StartLap  int
		Length    int
		Compound  string
		Weather   Weather
		Predictor tyre.Predictor
		Logger    *log.Logger
	}
	// Advice is the outcome of a stint evaluation. PitLap is 0 if the stint
	// can be completed.
	Advice struct {
		LapTimes []float64
		PitLap   int
		Reason   PitReason
		Delta    float64
	}
)

// AdviseStint runs a stint lap by lap and stops at the first rule recommending
// a pit stop.
func AdviseStint(p *StintParams) (*Advice, error) {
	l := p.Logger
	if l == nil {
		l = log.Default().Named("strategist")
	}
	ret := &Advice{}
	var prev float64
	for lap := p.StartLap; lap < p.StartLap+p.Length; lap++ {
		lapTime, err := p.Predictor.PredictLap(tyre.Conditions{
			TyreLife:  float64(lap - p.StartLap + 1),
			TrackTemp: p.Weather.TrackTemp,
			AirTemp:   p.Weather.AirTemp,
			Pressure:  p.Weather.Pressure,
			Rainfall:  p.Weather.Rainfall,
			Compound:  p.Compound,
		})
		if err != nil {
			return nil, fmt.Errorf("predict lap %d: %w", lap, err)
		}
		ret.LapTimes = append(ret.LapTimes, lapTime)
		l.Debug("lap predicted", log.Int("lap", lap), log.Float64("time", lapTime))
		if len(ret.LapTimes) > 1 {
			delta := lapTime - prev
			reason := NoPit
			switch {
			case delta > DegradationThreshold:
				reason = PitDegradation
			case p.Weather.Rainfall > 0 && lap == p.StartLap+RainCheckLap:
				reason = PitRain
			case lap-p.StartLap > MaxTyreAge:
				reason = PitTyreAge
			}
			if reason != NoPit {
				ret.PitLap, ret.Reason, ret.Delta = lap, reason, delta
				l.Info("pit stop recommended",
					log.Int("lap", lap),
					log.Stringer("reason", reason),
					log.Float64("delta", delta))
				return ret, nil
			}
		}
		prev = lapTime
	}
	return ret, nil
}

// CrossoverToInters reports whether intermediates are faster than slicks
func CrossoverToInters(trackTemp, rainIntensity float64) bool {
	return trackTemp < 30 && rainIntensity > 0.5
}

// StayOutOnSofts reports whether the rain is light enough to keep slicks
func StayOutOnSofts(rainIntensity float64) bool {
	return rainIntensity < 0.3
}
