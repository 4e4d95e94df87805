package outlier

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// minScale is the population standard deviation below which a feature is
// treated as constant.
var minScale = 10 * (math.Nextafter(1, 2) - 1)

// Scaler holds per-feature centring and scaling factors.
type Scaler struct {
	Mean  []float64
	Scale []float64 // 1 for features treated as constant
}

// FitScaler computes the population mean and standard deviation of every
// column of x, a row-major matrix with at least one row.
func FitScaler(x [][]float64) *Scaler {
	d := len(x[0])
	sc := &Scaler{
		Mean:  make([]float64, d),
		Scale: make([]float64, d),
	}
	col := make([]float64, len(x))
	for j := range d {
		for i, row := range x {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		sc.Mean[j] = mean
		if std < minScale {
			std = 1
		}
		sc.Scale[j] = std
	}
	return sc
}

// Transform returns a standardised copy of x.
func (sc *Scaler) Transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		z := make([]float64, len(row))
		for j, v := range row {
			z[j] = (v - sc.Mean[j]) / sc.Scale[j]
		}
		out[i] = z
	}
	return out
}

// Standardize centres every column of x on zero and scales it to unit
// population variance. Constant columns are centred only, so they become zero.
func Standardize(x [][]float64) [][]float64 {
	if len(x) == 0 {
		return [][]float64{}
	}
	return FitScaler(x).Transform(x)
}
