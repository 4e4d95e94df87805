package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSucceeded(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RunSucceeded(2000, map[string]int{"r_temp_high": 12, "rule_any": 30}, 60, 75, 20*time.Millisecond)
	c.RunSucceeded(1000, map[string]int{"r_temp_high": 3, "rule_any": 5}, 30, 33, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.RunsTotal.WithLabelValues("success")))
	assert.Equal(t, 3000.0, testutil.ToFloat64(c.SamplesTotal))
	assert.Equal(t, 15.0, testutil.ToFloat64(c.RuleFlagsTotal.WithLabelValues("r_temp_high")))
	assert.Equal(t, 35.0, testutil.ToFloat64(c.RuleFlagsTotal.WithLabelValues("rule_any")))
	assert.Equal(t, 90.0, testutil.ToFloat64(c.MLFlagsTotal))
	assert.Equal(t, 33.0, testutil.ToFloat64(c.LastRunAnomaly))

	expected := `
# HELP evbattery_detect_samples_total Total number of telemetry samples evaluated.
# TYPE evbattery_detect_samples_total counter
evbattery_detect_samples_total 3000
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "evbattery_detect_samples_total"))
}

func TestRunFailed(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RunFailed(time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.RunsTotal.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.RunsTotal.WithLabelValues("success")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.RunDuration))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RunSucceeded(1, nil, 0, 0, time.Second)
		c.RunFailed(time.Second)
	})
}

func TestDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
	assert.NotPanics(t, func() { NewCollector(nil) })
}
