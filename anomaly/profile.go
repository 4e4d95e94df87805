package anomaly

import (
	"fmt"
	"io"

	"github.com/synaptecltd/evbattery/telemetry"
	"gopkg.in/yaml.v2"
)

// Default fault parameters for battery pack telemetry.
var (
	DefaultTempSpike = SpikeParams{
		Column:    telemetry.PackTemp,
		Divisor:   1200,
		Magnitude: 20,
		HalfWidth: 8,
	}
	DefaultCurrentSurge = SpikeParams{
		Column:    telemetry.PackCurrent,
		Divisor:   1000,
		Magnitude: 200,
		HalfWidth: 5,
	}
	DefaultImbalance = ImbalanceParams{
		Divisor: 900,
		Offset:  0.15,
		MinSpan: 20,
		MaxSpan: 60,
	}
)

// DefaultProfile returns thermal spikes, current surges and cell imbalance
// windows, in that order.
func DefaultProfile() Container {
	temp, err := NewSpikeAnomaly(DefaultTempSpike)
	if err != nil {
		panic(err)
	}
	current, err := NewSpikeAnomaly(DefaultCurrentSurge)
	if err != nil {
		panic(err)
	}
	imbalance, err := NewImbalanceAnomaly(DefaultImbalance)
	if err != nil {
		panic(err)
	}

	c := make(Container, 0, 3)
	c.AddAnomaly(temp)
	c.AddAnomaly(current)
	c.AddAnomaly(imbalance)
	return c
}

// LoadProfile reads a yaml list of fault entries, for example:
//
//	# faults.yaml
//	- type: spike
//	  column: pack_temp
//	  divisor: 1200
//	  magnitude: 20
//	  half_width: 8
//	- type: imbalance
//	  divisor: 900
//	  offset: 0.15
//	  min_span: 20
//	  max_span: 60
func LoadProfile(r io.Reader) (Container, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read fault profile: %w", err)
	}
	var c Container
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse fault profile: %w", err)
	}
	return c, nil
}
