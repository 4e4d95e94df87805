package anomaly

import (
	"errors"
	"math"
	"math/rand/v2"

	"github.com/synaptecltd/evbattery/telemetry"
)

const (
	imbalanceStartIndex = 100 // earliest row an imbalance episode may start at
	imbalanceMinRows    = 200 // series of this length or shorter get no imbalance episodes
)

// Widens the cell voltage spread over random windows by moving cell_v_min down
// and cell_v_max up by the same offset, leaving the mean cell voltage unchanged.
type imbalanceAnomaly struct {
	AnomalyBase

	offset  float64 // volts subtracted from cell_v_min and added to cell_v_max
	minSpan int     // shortest episode in rows
	maxSpan int     // episodes are shorter than maxSpan rows
}

// Parameters used to request an imbalance fault. These map onto the fields of imbalanceAnomaly.
type ImbalanceParams struct {
	Divisor int  `yaml:"divisor" mapstructure:"divisor"` // one episode per Divisor rows, at least one
	Off     bool `yaml:"off" mapstructure:"off"`         // true: fault deactivated, false: activated

	Offset  float64 `yaml:"offset" mapstructure:"offset"`     // volts moved on each side of the spread, >= 0
	MinSpan int     `yaml:"min_span" mapstructure:"min_span"` // shortest episode in rows
	MaxSpan int     `yaml:"max_span" mapstructure:"max_span"` // episodes are shorter than MaxSpan rows
}

// Returns an imbalanceAnomaly pointer with the requested parameters, checking for invalid values.
func NewImbalanceAnomaly(params ImbalanceParams) (*imbalanceAnomaly, error) {
	imbalanceAnomaly := &imbalanceAnomaly{}

	if err := imbalanceAnomaly.SetDivisor(params.Divisor); err != nil {
		return nil, err
	}
	if err := imbalanceAnomaly.SetOffset(params.Offset); err != nil {
		return nil, err
	}
	if err := imbalanceAnomaly.SetSpan(params.MinSpan, params.MaxSpan); err != nil {
		return nil, err
	}

	imbalanceAnomaly.typeName = "imbalance"
	imbalanceAnomaly.Off = params.Off

	return imbalanceAnomaly, nil
}

// Inject widens the cell spread over EpisodeCount(rows) random windows.
// Windows are truncated at the series end.
func (a *imbalanceAnomaly) Inject(series *telemetry.Series, r *rand.Rand) []Episode {
	if a.Off {
		return nil
	}

	rows := series.Len()
	if rows <= max(imbalanceMinRows, imbalanceStartIndex+a.maxSpan) {
		return nil
	}

	count := a.EpisodeCount(rows)
	episodes := make([]Episode, 0, count)
	for range count {
		start := imbalanceStartIndex + r.IntN(rows-a.maxSpan-imbalanceStartIndex)
		span := a.minSpan + r.IntN(a.maxSpan-a.minSpan)
		end := min(start+span, rows)
		if end <= start {
			continue
		}

		for i := start; i < end; i++ {
			series.CellVMin[i] -= a.offset
			series.CellVMax[i] += a.offset
		}
		episodes = append(episodes, Episode{
			FaultID: a.id,
			Type:    a.typeName,
			Columns: []telemetry.Column{telemetry.CellVMin, telemetry.CellVMax},
			Start:   start,
			End:     end,
		})
	}
	return episodes
}

// Setters

// Sets the voltage offset if it is finite and offset >= 0. A negative offset
// could push cell_v_min above cell_v_max.
func (a *imbalanceAnomaly) SetOffset(offset float64) error {
	if math.IsNaN(offset) || math.IsInf(offset, 0) || offset < 0 {
		return errors.New("offset must be a finite value greater than or equal to 0")
	}
	a.offset = offset
	return nil
}

// Sets the episode span range [minSpan, maxSpan) if 0 < minSpan < maxSpan.
func (a *imbalanceAnomaly) SetSpan(minSpan, maxSpan int) error {
	if minSpan <= 0 {
		return errors.New("minimum span must be greater than 0")
	}
	if maxSpan <= minSpan {
		return errors.New("maximum span must be greater than minimum span")
	}
	a.minSpan = minSpan
	a.maxSpan = maxSpan
	return nil
}

// Getters

func (a *imbalanceAnomaly) GetOffset() float64 {
	return a.offset
}

func (a *imbalanceAnomaly) GetSpan() (int, int) {
	return a.minSpan, a.maxSpan
}
