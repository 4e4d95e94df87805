package telemetry

import (
	"fmt"
	"math"
	"slices"
)

// Sample is one row of a Series.
type Sample struct {
	TimeS       float64
	PackVoltage float64
	PackCurrent float64
	PackTemp    float64
	CellVMin    float64
	CellVMax    float64
}

// ExtraColumn holds a column of an uploaded table that the core does not use.
// Values are kept verbatim so they can be written back unchanged.
type ExtraColumn struct {
	Name   string
	Values []string
}

// Series is an ordered, column-wise table of telemetry samples indexed 0..N-1.
type Series struct {
	TimeS       []float64
	PackVoltage []float64
	PackCurrent []float64
	PackTemp    []float64
	CellVMin    []float64
	CellVMax    []float64

	Extra []ExtraColumn
}

// NewSeries returns a zero-valued series of n rows.
func NewSeries(n int) *Series {
	return &Series{
		TimeS:       make([]float64, n),
		PackVoltage: make([]float64, n),
		PackCurrent: make([]float64, n),
		PackTemp:    make([]float64, n),
		CellVMin:    make([]float64, n),
		CellVMax:    make([]float64, n),
	}
}

// Len returns the number of rows.
func (s *Series) Len() int {
	return len(s.TimeS)
}

// Values returns the backing slice of column c, so writes are visible in the
// series. Unknown columns return nil.
func (s *Series) Values(c Column) []float64 {
	switch c {
	case TimeS:
		return s.TimeS
	case PackVoltage:
		return s.PackVoltage
	case PackCurrent:
		return s.PackCurrent
	case PackTemp:
		return s.PackTemp
	case CellVMin:
		return s.CellVMin
	case CellVMax:
		return s.CellVMax
	}
	return nil
}

// Sample returns row i.
func (s *Series) Sample(i int) Sample {
	return Sample{
		TimeS:       s.TimeS[i],
		PackVoltage: s.PackVoltage[i],
		PackCurrent: s.PackCurrent[i],
		PackTemp:    s.PackTemp[i],
		CellVMin:    s.CellVMin[i],
		CellVMax:    s.CellVMax[i],
	}
}

// Append adds a sample to the end of the series. Extra columns get an empty cell.
func (s *Series) Append(smp Sample) {
	s.TimeS = append(s.TimeS, smp.TimeS)
	s.PackVoltage = append(s.PackVoltage, smp.PackVoltage)
	s.PackCurrent = append(s.PackCurrent, smp.PackCurrent)
	s.PackTemp = append(s.PackTemp, smp.PackTemp)
	s.CellVMin = append(s.CellVMin, smp.CellVMin)
	s.CellVMax = append(s.CellVMax, smp.CellVMax)
	for i := range s.Extra {
		s.Extra[i].Values = append(s.Extra[i].Values, "")
	}
}

// Clone returns a deep copy.
func (s *Series) Clone() *Series {
	out := &Series{
		TimeS:       slices.Clone(s.TimeS),
		PackVoltage: slices.Clone(s.PackVoltage),
		PackCurrent: slices.Clone(s.PackCurrent),
		PackTemp:    slices.Clone(s.PackTemp),
		CellVMin:    slices.Clone(s.CellVMin),
		CellVMax:    slices.Clone(s.CellVMax),
	}
	for _, e := range s.Extra {
		out.Extra = append(out.Extra, ExtraColumn{Name: e.Name, Values: slices.Clone(e.Values)})
	}
	return out
}

// Validate checks that every column, including extra columns, has the same length.
func (s *Series) Validate() error {
	n := s.Len()
	for _, c := range RequiredColumns {
		if len(s.Values(c)) != n {
			return fmt.Errorf("%w: %s has %d rows, %s has %d", ErrLengthMismatch, c, len(s.Values(c)), TimeS, n)
		}
	}
	for _, e := range s.Extra {
		if len(e.Values) != n {
			return fmt.Errorf("%w: %s has %d rows, %s has %d", ErrLengthMismatch, e.Name, len(e.Values), TimeS, n)
		}
	}
	return nil
}

// Features returns the row-major feature matrix used by the outlier detector,
// with columns in FeatureColumns order.
func (s *Series) Features() [][]float64 {
	cols := make([][]float64, len(FeatureColumns))
	for j, c := range FeatureColumns {
		cols[j] = s.Values(c)
	}
	x := make([][]float64, s.Len())
	for i := range x {
		row := make([]float64, len(cols))
		for j, col := range cols {
			row[j] = col[i]
		}
		x[i] = row
	}
	return x
}

// HasNonFinite reports the first required column containing NaN or Inf.
func (s *Series) HasNonFinite() (Column, bool) {
	for _, c := range RequiredColumns {
		for _, v := range s.Values(c) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return c, true
			}
		}
	}
	return "", false
}
