// Package rules flags telemetry samples that break fixed engineering limits.
package rules

import (
	"errors"
	"fmt"
	"math"

	"github.com/synaptecltd/evbattery/telemetry"
)

var ErrInvalidThreshold = errors.New("threshold must be finite")

// Rule names, as written in annotated reports.
const (
	TempHigh     = "r_temp_high"
	OverCurrent  = "r_over_current"
	VImbalance   = "r_v_imbalance"
	FastTempRise = "r_fast_temp_rise"
	Any          = "rule_any"
)

// Names lists the individual rules in report order, excluding Any.
var Names = []string{TempHigh, OverCurrent, VImbalance, FastTempRise}

// Thresholds holds the limits applied by Evaluate. A sample is flagged when it
// strictly exceeds a limit.
type Thresholds struct {
	MaxTempC       float64 `mapstructure:"max_temp_c" yaml:"max_temp_c"`               // pack temperature, °C
	MaxAbsCurrentA float64 `mapstructure:"max_abs_current_a" yaml:"max_abs_current_a"` // magnitude of pack current, A
	MaxCellDeltaV  float64 `mapstructure:"max_cell_delta_v" yaml:"max_cell_delta_v"`   // cell_v_max - cell_v_min, V
	MaxDTRiseC     float64 `mapstructure:"max_dt_rise_c" yaml:"max_dt_rise_c"`         // temperature rise rate, °C/s
}

// DefaultThresholds returns the limits used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxTempC:       55.0,
		MaxAbsCurrentA: 160.0,
		MaxCellDeltaV:  0.25,
		MaxDTRiseC:     0.6,
	}
}

// Validate rejects NaN and infinite limits.
func (th Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"max_temp_c":        th.MaxTempC,
		"max_abs_current_a": th.MaxAbsCurrentA,
		"max_cell_delta_v":  th.MaxCellDeltaV,
		"max_dt_rise_c":     th.MaxDTRiseC,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is %v", ErrInvalidThreshold, name, v)
		}
	}
	return nil
}

// Flags holds one boolean per rule per sample, all of the series' length.
type Flags struct {
	TempHigh     []bool
	OverCurrent  []bool
	VImbalance   []bool
	FastTempRise []bool
	Any          []bool
}

// Len returns the number of rows.
func (f *Flags) Len() int {
	return len(f.Any)
}

// Column returns the flags for the named rule, or nil for an unknown name.
func (f *Flags) Column(name string) []bool {
	switch name {
	case TempHigh:
		return f.TempHigh
	case OverCurrent:
		return f.OverCurrent
	case VImbalance:
		return f.VImbalance
	case FastTempRise:
		return f.FastTempRise
	case Any:
		return f.Any
	}
	return nil
}

// Count returns the number of rows flagged by the named rule.
func (f *Flags) Count(name string) int {
	n := 0
	for _, v := range f.Column(name) {
		if v {
			n++
		}
	}
	return n
}

// Evaluate applies th to every sample of s. The series is not modified.
//
// The temperature rise rate at row i is (T[i]-T[i-1])/(t[i]-t[i-1]). Row 0 has
// no predecessor and is given a rise of 0 over 1 s. A zero time step is
// replaced by 1 s, so duplicate timestamps compare the raw temperature
// difference against the limit.
func Evaluate(s *telemetry.Series, th Thresholds) Flags {
	n := s.Len()
	f := Flags{
		TempHigh:     make([]bool, n),
		OverCurrent:  make([]bool, n),
		VImbalance:   make([]bool, n),
		FastTempRise: make([]bool, n),
		Any:          make([]bool, n),
	}

	for i := range n {
		f.TempHigh[i] = s.PackTemp[i] > th.MaxTempC
		f.OverCurrent[i] = math.Abs(s.PackCurrent[i]) > th.MaxAbsCurrentA
		f.VImbalance[i] = s.CellVMax[i]-s.CellVMin[i] > th.MaxCellDeltaV
		f.FastTempRise[i] = riseRate(s, i) > th.MaxDTRiseC
		f.Any[i] = f.TempHigh[i] || f.OverCurrent[i] || f.VImbalance[i] || f.FastTempRise[i]
	}
	return f
}

func riseRate(s *telemetry.Series, i int) float64 {
	if i == 0 {
		return 0
	}
	dt := s.TimeS[i] - s.TimeS[i-1]
	if dt == 0 {
		dt = 1
	}
	return (s.PackTemp[i] - s.PackTemp[i-1]) / dt
}
