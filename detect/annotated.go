// Package detect joins rule flags and outlier scores with the telemetry they
// were computed from and runs the full detection pipeline.
package detect

import (
	"errors"
	"fmt"

	"github.com/synaptecltd/evbattery/rules"
	"github.com/synaptecltd/evbattery/telemetry"
)

var ErrLengthMismatch = errors.New("result length does not match series length")

// Annotation column names, appended after the telemetry columns in reports.
const (
	MLAnomaly = "ml_anomaly"
	MLScore   = "ml_score"
)

// AnnotationColumns lists the columns appended to every annotated row, in order.
var AnnotationColumns = []string{
	rules.TempHigh, rules.OverCurrent, rules.VImbalance, rules.FastTempRise, rules.Any,
	MLAnomaly, MLScore,
}

// AnnotatedSeries is a series with its rule flags and outlier results, aligned
// by row index.
type AnnotatedSeries struct {
	Series   *telemetry.Series
	Rules    rules.Flags
	MLFlags  []bool
	MLScores []float64
}

// Row is one annotated sample.
type Row struct {
	Index int
	telemetry.Sample

	TempHigh     bool
	OverCurrent  bool
	VImbalance   bool
	FastTempRise bool
	RuleAny      bool
	MLAnomaly    bool
	MLScore      float64
}

// Summary counts flagged rows.
type Summary struct {
	RuleAnomalies int `json:"rule_anomalies" yaml:"rule_anomalies"`
	MLAnomalies   int `json:"ml_anomalies" yaml:"ml_anomalies"`
	TotalPoints   int `json:"total_points" yaml:"total_points"`
}

// Merge joins the rule flags and outlier results with s. Every input must have
// one entry per row of s.
func Merge(s *telemetry.Series, flags rules.Flags, mlFlags []bool, mlScores []float64) (*AnnotatedSeries, error) {
	n := s.Len()
	lengths := map[string]int{
		rules.TempHigh:     len(flags.TempHigh),
		rules.OverCurrent:  len(flags.OverCurrent),
		rules.VImbalance:   len(flags.VImbalance),
		rules.FastTempRise: len(flags.FastTempRise),
		rules.Any:          len(flags.Any),
		MLAnomaly:          len(mlFlags),
		MLScore:            len(mlScores),
	}
	for _, name := range AnnotationColumns {
		if lengths[name] != n {
			return nil, fmt.Errorf("%w: %s has %d rows, series has %d", ErrLengthMismatch, name, lengths[name], n)
		}
	}

	return &AnnotatedSeries{
		Series:   s,
		Rules:    flags,
		MLFlags:  mlFlags,
		MLScores: mlScores,
	}, nil
}

// Len returns the number of rows.
func (a *AnnotatedSeries) Len() int {
	return a.Series.Len()
}

// AnyAnomaly reports whether row i is flagged by any rule or by the outlier
// detector.
func (a *AnnotatedSeries) AnyAnomaly(i int) bool {
	return a.Rules.Any[i] || a.MLFlags[i]
}

// Anomalies returns the indices of rows for which AnyAnomaly holds, ascending.
func (a *AnnotatedSeries) Anomalies() []int {
	var idx []int
	for i := range a.Len() {
		if a.AnyAnomaly(i) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Row returns the annotated row i.
func (a *AnnotatedSeries) Row(i int) Row {
	return Row{
		Index:        i,
		Sample:       a.Series.Sample(i),
		TempHigh:     a.Rules.TempHigh[i],
		OverCurrent:  a.Rules.OverCurrent[i],
		VImbalance:   a.Rules.VImbalance[i],
		FastTempRise: a.Rules.FastTempRise[i],
		RuleAny:      a.Rules.Any[i],
		MLAnomaly:    a.MLFlags[i],
		MLScore:      a.MLScores[i],
	}
}

// Summary counts the rows flagged by rules and by the outlier detector.
func (a *AnnotatedSeries) Summary() Summary {
	summary := Summary{
		RuleAnomalies: a.Rules.Count(rules.Any),
		TotalPoints:   a.Len(),
	}
	for _, f := range a.MLFlags {
		if f {
			summary.MLAnomalies++
		}
	}
	return summary
}

// Top returns the first n anomalous rows in series order. A negative n returns
// every anomalous row.
func (a *AnnotatedSeries) Top(n int) []Row {
	var rows []Row
	for i := range a.Len() {
		if n >= 0 && len(rows) >= n {
			break
		}
		if a.AnyAnomaly(i) {
			rows = append(rows, a.Row(i))
		}
	}
	return rows
}
