package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/synaptecltd/evbattery/metrics"
	"github.com/synaptecltd/evbattery/outlier"
	"github.com/synaptecltd/evbattery/rules"
	"github.com/synaptecltd/evbattery/telemetry"
	"go.uber.org/zap"
)

// Detector runs the rule evaluator and, when UseML is set, the outlier
// detector over a series and merges their results.
type Detector struct {
	Thresholds rules.Thresholds
	Outlier    outlier.Config
	UseML      bool // when false, every row gets ml_anomaly false and ml_score 0

	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewDetector returns a detector with default thresholds and outlier settings.
func NewDetector() *Detector {
	return &Detector{
		Thresholds: rules.DefaultThresholds(),
		Outlier:    outlier.DefaultConfig(),
		UseML:      true,
		logger:     zap.NewNop(),
	}
}

// SetLogger sets the logger used to report runs.
func (d *Detector) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d.logger = logger
}

// SetMetrics sets the collector updated after every run. A nil collector
// disables metrics.
func (d *Detector) SetMetrics(c *metrics.Collector) {
	d.metrics = c
}

// Run validates the configuration, evaluates the rules and scores the series,
// then merges the results. The series is not modified.
func (d *Detector) Run(ctx context.Context, s *telemetry.Series) (*AnnotatedSeries, error) {
	start := time.Now()
	annotated, err := d.run(ctx, s)
	if err != nil {
		d.metrics.RunFailed(time.Since(start))
		d.log().Error("detection failed", zap.Int("rows", s.Len()), zap.Error(err))
		return nil, err
	}

	summary := annotated.Summary()
	ruleCounts := make(map[string]int, len(rules.Names)+1)
	for _, name := range rules.Names {
		ruleCounts[name] = annotated.Rules.Count(name)
	}
	ruleCounts[rules.Any] = summary.RuleAnomalies
	d.metrics.RunSucceeded(summary.TotalPoints, ruleCounts, summary.MLAnomalies, len(annotated.Anomalies()), time.Since(start))

	d.log().Info("detection finished",
		zap.Int("rows", summary.TotalPoints),
		zap.Int("rule_anomalies", summary.RuleAnomalies),
		zap.Int("ml_anomalies", summary.MLAnomalies),
		zap.Bool("ml", d.UseML),
		zap.Duration("elapsed", time.Since(start)),
	)
	return annotated, nil
}

func (d *Detector) run(ctx context.Context, s *telemetry.Series) (*AnnotatedSeries, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := d.Thresholds.Validate(); err != nil {
		return nil, err
	}
	d.log().Info("detection started", zap.Int("rows", s.Len()), zap.Bool("ml", d.UseML))

	flags := rules.Evaluate(s, d.Thresholds)

	mlFlags := make([]bool, s.Len())
	mlScores := make([]float64, s.Len())
	if d.UseML {
		res, err := outlier.ScoreContext(ctx, s, d.Outlier)
		if err != nil {
			return nil, fmt.Errorf("outlier detection: %w", err)
		}
		mlFlags, mlScores = res.Flags, res.Scores
		d.log().Debug("outlier offset", zap.Float64("offset", res.Offset))
	}

	return Merge(s, flags, mlFlags, mlScores)
}

func (d *Detector) log() *zap.Logger {
	if d.logger == nil {
		return zap.NewNop()
	}
	return d.logger
}
