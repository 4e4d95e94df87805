package evbattery

import (
	"math"
	"math/rand/v2"

	"github.com/synaptecltd/evbattery/mathfuncs"
)

// SignalEmulation produces one pack-level signal as a slow periodic waveform
// about a mean value, plus independent Gaussian noise at every sample.
type SignalEmulation struct {
	Mean      float64 `mapstructure:"mean"`
	Amplitude float64 `mapstructure:"amplitude"`
	Period    float64 `mapstructure:"period"`    // seconds per waveform cycle
	NoiseStd  float64 `mapstructure:"noise_std"` // standard deviation of the Gaussian noise
	Waveform  string  `mapstructure:"waveform"`  // name of a mathfuncs function, empty defaults to "sine"

	// internal state
	waveform mathfuncs.MathsFunction
}

func (e *SignalEmulation) init() error {
	name := e.Waveform
	if name == "" {
		name = "sine"
	}
	waveform, err := mathfuncs.GetTrendFunctionFromName(name)
	if err != nil {
		return err
	}
	e.waveform = waveform
	return nil
}

func (e *SignalEmulation) step(r *rand.Rand, t float64) float64 {
	return e.Mean + e.waveform(t, e.Amplitude, e.Period) + r.NormFloat64()*e.NoiseStd
}

// CellEmulation derives the extremal cell voltages from the pack voltage,
// assuming SeriesCells identical cells in series with a random spread between
// the weakest and strongest cell.
type CellEmulation struct {
	SeriesCells int     `mapstructure:"series_cells"`
	SpreadMean  float64 `mapstructure:"spread_mean"`
	SpreadStd   float64 `mapstructure:"spread_std"`
	SpreadMin   float64 `mapstructure:"spread_min"` // spread is clipped to [SpreadMin, SpreadMax]
	SpreadMax   float64 `mapstructure:"spread_max"`
}

// step returns cell_v_min and cell_v_max, centred on the mean cell voltage.
func (c *CellEmulation) step(r *rand.Rand, packVoltage float64) (float64, float64) {
	mean := packVoltage / float64(c.SeriesCells)
	spread := r.NormFloat64()*c.SpreadStd + c.SpreadMean
	spread = math.Min(math.Max(spread, c.SpreadMin), c.SpreadMax)
	return mean - spread/2, mean + spread/2
}
