package anomaly

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/synaptecltd/evbattery/mathfuncs"
	"github.com/synaptecltd/evbattery/telemetry"
)

const (
	trendStartIndex = 50  // earliest row a trend episode may start at
	trendRowMargin  = 100 // rows required beyond the episode duration before trends are placed
)

// Adds a slow drift to one column of the series, shaped by a named maths
// function, for example a temperature sensor creeping upwards.
type trendAnomaly struct {
	AnomalyBase

	column       telemetry.Column
	Magnitude    float64 // magnitude of the drift, default 0
	duration     int     // rows in each episode
	magFuncName  string  // name of the function used to vary the drift, defaults to "linear" if empty
	InvertTrend  bool    // true inverts the trend function (multiplies by -1.0)
	ReverseTrend bool    // true subtracts the function from Magnitude (mimicking reversal along horizontal axis)

	// internal state
	magFunction    mathfuncs.MathsFunction
	periodDuration float64 // seconds, if 0 the episode length in seconds is used
}

// Parameters used to request a trend fault. These map onto the fields of trendAnomaly.
type TrendParams struct {
	// Defined in AnomalyBase

	Divisor int  `yaml:"divisor" mapstructure:"divisor"` // one episode per Divisor rows, at least one
	Off     bool `yaml:"off" mapstructure:"off"`         // true: fault deactivated, false: activated

	// Defined in trendAnomaly

	Column         telemetry.Column `yaml:"column" mapstructure:"column"`
	Magnitude      float64          `yaml:"magnitude" mapstructure:"magnitude"`
	Duration       int              `yaml:"duration" mapstructure:"duration"` // rows in each episode
	PeriodDuration float64          `yaml:"period" mapstructure:"period"`     // seconds, 0 for the episode length
	MagFuncName    string           `yaml:"func" mapstructure:"func"`         // empty defaults to "linear"
	InvertTrend    bool             `yaml:"invert" mapstructure:"invert"`
	ReverseTrend   bool             `yaml:"reverse" mapstructure:"reverse"`
}

// Returns a trendAnomaly pointer with the requested parameters, checking for invalid values.
func NewTrendAnomaly(params TrendParams) (*trendAnomaly, error) {
	trendAnomaly := &trendAnomaly{}

	// Invalid values checked by setters
	if err := trendAnomaly.SetDivisor(params.Divisor); err != nil {
		return nil, err
	}
	if err := trendAnomaly.SetColumn(params.Column); err != nil {
		return nil, err
	}
	if err := trendAnomaly.SetDuration(params.Duration); err != nil {
		return nil, err
	}
	if err := trendAnomaly.SetPeriodDuration(params.PeriodDuration); err != nil {
		return nil, err
	}
	if err := trendAnomaly.SetMagFunctionByName(params.MagFuncName); err != nil {
		return nil, err
	}
	if math.IsNaN(params.Magnitude) || math.IsInf(params.Magnitude, 0) {
		return nil, errors.New("magnitude must be finite")
	}

	// Fields that can never be invalid set directly
	trendAnomaly.typeName = "trend"
	trendAnomaly.Magnitude = params.Magnitude
	trendAnomaly.InvertTrend = params.InvertTrend
	trendAnomaly.ReverseTrend = params.ReverseTrend
	trendAnomaly.Off = params.Off

	return trendAnomaly, nil
}

// Inject adds EpisodeCount(rows) drifts at random start rows. Elapsed time
// within an episode is measured from the series' time column, so irregular
// sampling stretches the drift accordingly.
func (t *trendAnomaly) Inject(series *telemetry.Series, r *rand.Rand) []Episode {
	if t.Off {
		return nil
	}

	rows := series.Len()
	if rows <= t.duration+trendRowMargin {
		return nil
	}

	values := series.Values(t.column)
	count := t.EpisodeCount(rows)
	episodes := make([]Episode, 0, count)
	for range count {
		start := trendStartIndex + r.IntN(rows-t.duration-trendStartIndex)
		end := min(start+t.duration, rows)

		period := t.periodDuration
		if period == 0 {
			period = series.TimeS[end-1] - series.TimeS[start]
		}
		for i := start; i < end; i++ {
			values[i] += t.delta(series.TimeS[i]-series.TimeS[start], period)
		}

		episodes = append(episodes, Episode{
			FaultID: t.id,
			Type:    t.typeName,
			Columns: []telemetry.Column{t.column},
			Start:   start,
			End:     end,
		})
	}
	return episodes
}

// delta returns the change in signal caused by the drift at elapsed seconds
// into an episode.
func (t *trendAnomaly) delta(elapsed, period float64) float64 {
	if period <= 0 {
		return 0
	}
	magnitude := t.magFunction(elapsed, t.Magnitude, period)

	// Once we have the magnitude, apply inverting or reversing if required
	switch {
	case t.ReverseTrend && t.InvertTrend:
		return -(t.Magnitude - magnitude)
	case t.ReverseTrend:
		return t.Magnitude - magnitude
	case t.InvertTrend:
		return -magnitude
	default:
		return magnitude
	}
}

// Setters

// Sets the target column if it is a pack voltage, current or temperature.
func (t *trendAnomaly) SetColumn(column telemetry.Column) error {
	if err := checkPackColumn("trend", column); err != nil {
		return err
	}
	t.column = column
	return nil
}

// Sets the number of rows in each episode if duration > 1.
func (t *trendAnomaly) SetDuration(duration int) error {
	if duration <= 1 {
		return errors.New("duration must be greater than 1")
	}
	t.duration = duration
	return nil
}

// Sets the period of the trend function in seconds if periodDuration >= 0.
// If periodDuration=0, the length of each episode is used as the period.
func (t *trendAnomaly) SetPeriodDuration(periodDuration float64) error {
	if periodDuration < 0 || math.IsNaN(periodDuration) || math.IsInf(periodDuration, 0) {
		return errors.New("period must be a finite value >= 0")
	}
	t.periodDuration = periodDuration
	return nil
}

// Sets the function used to shape the drift from the mathfuncs registry.
func (t *trendAnomaly) SetMagFunctionByName(name string) error {
	if name == "" {
		name = "linear" // default to linear if no name is provided
	}
	magFunction, err := mathfuncs.GetTrendFunctionFromName(name)
	if err != nil {
		return fmt.Errorf("%w: %q", err, name)
	}
	t.magFuncName = name
	t.magFunction = magFunction
	return nil
}

// Getters

func (t *trendAnomaly) GetColumn() telemetry.Column {
	return t.column
}

func (t *trendAnomaly) GetDuration() int {
	return t.duration
}

func (t *trendAnomaly) GetMagFuncName() string {
	return t.magFuncName
}
