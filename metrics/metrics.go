// Package metrics provides Prometheus metrics for detection runs.
// All metrics use the "evbattery" namespace and the "detect" subsystem.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "evbattery"
	subsystem = "detect"
)

// Collector records the outcome of detection runs.
type Collector struct {
	RunsTotal      *prometheus.CounterVec // outcome: success | failed
	SamplesTotal   prometheus.Counter
	RuleFlagsTotal *prometheus.CounterVec // rule: r_temp_high | r_over_current | ... | rule_any
	MLFlagsTotal   prometheus.Counter
	RunDuration    prometheus.Histogram
	LastRunAnomaly prometheus.Gauge
}

// NewCollector creates the detection metrics and registers them with reg.
// A nil reg creates unregistered metrics.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "runs_total",
				Help:      "Total number of detection runs by outcome.",
			},
			[]string{"outcome"},
		),
		SamplesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "samples_total",
				Help:      "Total number of telemetry samples evaluated.",
			},
		),
		RuleFlagsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rule_flags_total",
				Help:      "Total number of samples flagged, by rule.",
			},
			[]string{"rule"},
		),
		MLFlagsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "ml_flags_total",
				Help:      "Total number of samples flagged by the outlier detector.",
			},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "run_duration_seconds",
				Help:      "Duration of detection runs in seconds.",
				// 1ms → 2ms → ... → ~16s
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
		),
		LastRunAnomaly: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "last_run_anomalous_samples",
				Help:      "Samples flagged by any detector in the most recent run.",
			},
		),
	}
}

// RunSucceeded records a completed run.
func (c *Collector) RunSucceeded(samples int, ruleCounts map[string]int, mlCount, anyCount int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.RunsTotal.WithLabelValues("success").Inc()
	c.SamplesTotal.Add(float64(samples))
	for rule, n := range ruleCounts {
		c.RuleFlagsTotal.WithLabelValues(rule).Add(float64(n))
	}
	c.MLFlagsTotal.Add(float64(mlCount))
	c.RunDuration.Observe(elapsed.Seconds())
	c.LastRunAnomaly.Set(float64(anyCount))
}

// RunFailed records a run that returned an error.
func (c *Collector) RunFailed(elapsed time.Duration) {
	if c == nil {
		return
	}
	c.RunsTotal.WithLabelValues("failed").Inc()
	c.RunDuration.Observe(elapsed.Seconds())
}
