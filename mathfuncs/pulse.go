package mathfuncs

import "gonum.org/v1/gonum/floats"

// Linspace returns n evenly spaced values from start to stop. When endpoint is
// false, stop is excluded and the spacing is (stop-start)/n.
func Linspace(n int, start, stop float64, endpoint bool) []float64 {
	switch {
	case n <= 0:
		return []float64{}
	case n == 1:
		return []float64{start}
	}

	if endpoint {
		return floats.Span(make([]float64, n), start, stop)
	}
	return floats.Span(make([]float64, n+1), start, stop)[:n]
}

// TriangularPulse returns a symmetric pulse of length 2*halfWidth which rises
// linearly from 0 towards magnitude over the first half and falls from
// magnitude back to exactly 0 over the second half.
func TriangularPulse(halfWidth int, magnitude float64) []float64 {
	if halfWidth <= 0 {
		return []float64{}
	}
	pulse := make([]float64, 0, 2*halfWidth)
	pulse = append(pulse, Linspace(halfWidth, 0, magnitude, false)...)
	pulse = append(pulse, Linspace(halfWidth, magnitude, 0, true)...)
	return pulse
}
