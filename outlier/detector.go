// Package outlier scores telemetry samples with an isolation forest fitted on
// the standardised pack and cell features of the whole series.
package outlier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/synaptecltd/evbattery/telemetry"
)

var (
	ErrInvalidContamination = errors.New("contamination must be in (0, 0.5)")
	ErrInvalidTrees         = errors.New("tree count must be greater than 0")
	ErrInvalidMaxSamples    = errors.New("max samples must be greater than 0")
	ErrTooFewSamples        = errors.New("too few samples to fit")
	ErrNonFinite            = errors.New("feature values must be finite")
	ErrNotFitted            = errors.New("forest is not fitted")
)

// Config parameterises Score.
type Config struct {
	Contamination float64 `mapstructure:"contamination" yaml:"contamination"` // expected fraction of anomalous rows
	Trees         int     `mapstructure:"trees" yaml:"trees"`
	MaxSamples    int     `mapstructure:"max_samples" yaml:"max_samples"` // sub-sample size per tree
	Seed          int64   `mapstructure:"seed" yaml:"seed"`
	Workers       int     `mapstructure:"workers" yaml:"workers"` // 0 for GOMAXPROCS, does not affect results
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Contamination: 0.03,
		Trees:         200,
		MaxSamples:    256,
		Seed:          7,
	}
}

// Validate checks the parameters that do not depend on the data.
func (c Config) Validate() error {
	if !(c.Contamination > 0 && c.Contamination < 0.5) {
		return fmt.Errorf("%w: got %v", ErrInvalidContamination, c.Contamination)
	}
	if c.Trees <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTrees, c.Trees)
	}
	if c.MaxSamples <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxSamples, c.MaxSamples)
	}
	return nil
}

// Result holds one flag and one score per row of the scored series.
type Result struct {
	Flags  []bool
	Scores []float64 // higher is more normal, negative for flagged rows
	Offset float64   // raw score at the contamination quantile
}

// Count returns the number of flagged rows.
func (r *Result) Count() int {
	n := 0
	for _, f := range r.Flags {
		if f {
			n++
		}
	}
	return n
}

// Score is ScoreContext with a background context.
func Score(s *telemetry.Series, cfg Config) (*Result, error) {
	return ScoreContext(context.Background(), s, cfg)
}

// ScoreContext standardises the features of s, fits an isolation forest to
// them and scores every row. The raw score of a row is the negated anomaly
// score of the forest; the reported score subtracts the raw score at the
// contamination quantile, so roughly a contamination fraction of rows falls
// below zero and is flagged.
//
// The result depends only on s and cfg. Contamination only moves the offset,
// so raising it never unflags a row.
func ScoreContext(ctx context.Context, s *telemetry.Series, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if n := s.Len(); n < len(telemetry.FeatureColumns) {
		return nil, fmt.Errorf("%w: got %d rows, need at least %d", ErrTooFewSamples, n, len(telemetry.FeatureColumns))
	}
	for _, c := range telemetry.FeatureColumns {
		for i, v := range s.Values(c) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: %s at row %d is %v", ErrNonFinite, c, i, v)
			}
		}
	}

	x := Standardize(s.Features())

	forest := NewForest(cfg.Trees, cfg.MaxSamples)
	forest.Workers = cfg.Workers
	r := rand.New(rand.NewPCG(uint64(cfg.Seed), 0))
	if err := forest.Fit(ctx, x, r); err != nil {
		return nil, fmt.Errorf("fit isolation forest: %w", err)
	}
	raw, err := forest.ScoreSamples(ctx, x)
	if err != nil {
		return nil, fmt.Errorf("score samples: %w", err)
	}

	sorted := slices.Clone(raw)
	slices.Sort(sorted)
	offset := percentile(sorted, cfg.Contamination)

	res := &Result{
		Flags:  make([]bool, len(raw)),
		Scores: make([]float64, len(raw)),
		Offset: offset,
	}
	for i, v := range raw {
		res.Scores[i] = v - offset
		res.Flags[i] = res.Scores[i] < 0
	}
	return res, nil
}

// percentile returns the p-quantile of sorted, interpolating linearly between
// the order statistics at positions k/(n-1).
func percentile(sorted []float64, p float64) float64 {
	h := p * float64(len(sorted)-1)
	lo := int(math.Floor(h))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
