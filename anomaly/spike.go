package anomaly

import (
	"errors"
	"math"
	"math/rand/v2"

	"github.com/synaptecltd/evbattery/mathfuncs"
	"github.com/synaptecltd/evbattery/telemetry"
)

const (
	spikeStartIndex = 50  // earliest row a spike episode may start at
	spikeRowMargin  = 100 // rows required beyond the pulse width before spikes are placed
)

// Adds triangular pulses to one column of the series. Each pulse is 2*halfWidth
// rows long and peaks at magnitude.
type spikeAnomaly struct {
	AnomalyBase

	// Private fields have setters for invalid value checking

	column    telemetry.Column // the column the pulses are added to
	Magnitude float64          // peak of each pulse, may be negative
	halfWidth int              // rows from pulse start to peak
}

// Parameters used to request a spike fault. These map onto the fields of spikeAnomaly.
type SpikeParams struct {
	// Defined in AnomalyBase

	Divisor int  `yaml:"divisor" mapstructure:"divisor"` // one episode per Divisor rows, at least one
	Off     bool `yaml:"off" mapstructure:"off"`         // true: fault deactivated, false: activated

	// Defined in spikeAnomaly

	Column    telemetry.Column `yaml:"column" mapstructure:"column"`         // the column the pulses are added to
	Magnitude float64          `yaml:"magnitude" mapstructure:"magnitude"`   // peak of each pulse
	HalfWidth int              `yaml:"half_width" mapstructure:"half_width"` // rows from pulse start to peak
}

// Returns a spikeAnomaly pointer with the requested parameters, checking for invalid values.
func NewSpikeAnomaly(params SpikeParams) (*spikeAnomaly, error) {
	spikeAnomaly := &spikeAnomaly{}

	// Invalid values checked by setters
	if err := spikeAnomaly.SetDivisor(params.Divisor); err != nil {
		return nil, err
	}
	if err := spikeAnomaly.SetColumn(params.Column); err != nil {
		return nil, err
	}
	if err := spikeAnomaly.SetHalfWidth(params.HalfWidth); err != nil {
		return nil, err
	}
	if math.IsNaN(params.Magnitude) || math.IsInf(params.Magnitude, 0) {
		return nil, errors.New("magnitude must be finite")
	}

	// Fields that can never be invalid set directly
	spikeAnomaly.typeName = "spike"
	spikeAnomaly.Magnitude = params.Magnitude
	spikeAnomaly.Off = params.Off

	return spikeAnomaly, nil
}

// Inject adds EpisodeCount(rows) pulses at random start rows. Nothing is drawn
// from r, and nothing is injected, if the series is too short to place a pulse
// clear of its start.
func (s *spikeAnomaly) Inject(series *telemetry.Series, r *rand.Rand) []Episode {
	if s.Off {
		return nil
	}

	rows := series.Len()
	width := 2 * s.halfWidth
	if rows <= width+spikeRowMargin {
		return nil
	}

	values := series.Values(s.column)
	count := s.EpisodeCount(rows)
	episodes := make([]Episode, 0, count)
	for range count {
		start := spikeStartIndex + r.IntN(rows-width-spikeStartIndex)
		end := InjectSpike(values, start, s.halfWidth, s.Magnitude)
		if end <= start {
			continue
		}
		episodes = append(episodes, Episode{
			FaultID: s.id,
			Type:    s.typeName,
			Columns: []telemetry.Column{s.column},
			Start:   start,
			End:     end,
		})
	}
	return episodes
}

// InjectSpike adds a triangular pulse of half-width halfWidth and peak
// magnitude to values, starting at row start. The pulse is truncated at the
// end of values, never wrapped or padded. It returns one past the last row
// changed; a return value equal to start means nothing was changed.
func InjectSpike(values []float64, start, halfWidth int, magnitude float64) int {
	if start < 0 || start >= len(values) {
		return start
	}
	end := min(start+2*halfWidth, len(values))
	if end <= start {
		return start
	}

	pulse := mathfuncs.TriangularPulse(halfWidth, magnitude)
	for i, v := range pulse[:end-start] {
		values[start+i] += v
	}
	return end
}

// Setters

// Sets the target column if it is a pack voltage, current or temperature.
func (s *spikeAnomaly) SetColumn(column telemetry.Column) error {
	if err := checkPackColumn("spike", column); err != nil {
		return err
	}
	s.column = column
	return nil
}

// Sets the pulse half-width in rows if halfWidth > 0.
func (s *spikeAnomaly) SetHalfWidth(halfWidth int) error {
	if halfWidth <= 0 {
		return errors.New("half-width must be greater than 0")
	}
	s.halfWidth = halfWidth
	return nil
}

// Getters

func (s *spikeAnomaly) GetColumn() telemetry.Column {
	return s.column
}

func (s *spikeAnomaly) GetHalfWidth() int {
	return s.halfWidth
}
