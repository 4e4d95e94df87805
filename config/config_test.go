package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptecltd/evbattery/outlier"
	"github.com/synaptecltd/evbattery/rules"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evbattery.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	v, err := Load("")
	require.NoError(t, err)
	cfg, err := Decode(v)
	require.NoError(t, err)

	assert.Equal(t, 2000, cfg.Generator.Rows)
	assert.Equal(t, int64(7), cfg.Generator.Seed)
	assert.Equal(t, "data/sample_can.csv", cfg.Generator.Out)
	assert.Nil(t, cfg.Generator.Faults)
	assert.Equal(t, rules.DefaultThresholds(), cfg.Rules)
	assert.True(t, cfg.Outlier.Enabled)
	assert.Equal(t, outlier.DefaultConfig(), cfg.Outlier.Config)
	assert.Empty(t, cfg.Store.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
generator:
  rows: 5000
  seed: 11
  faults:
    - type: spike
      column: pack_voltage
      divisor: 500
      magnitude: -30
      half_width: 4
    - type: imbalance
      divisor: 900
      offset: 0.2
      min_span: 10
      max_span: 30
rules:
  max_temp_c: 50
outlier:
  enabled: false
  contamination: 0.05
store:
  path: runs.db
`)

	v, err := Load(path)
	require.NoError(t, err)
	cfg, err := Decode(v)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Generator.Rows)
	assert.Equal(t, int64(11), cfg.Generator.Seed)
	require.Len(t, cfg.Generator.Faults, 2)
	assert.Equal(t, "spike", cfg.Generator.Faults[0].TypeAsString())
	assert.Equal(t, "imbalance", cfg.Generator.Faults[1].TypeAsString())

	assert.Equal(t, 50.0, cfg.Rules.MaxTempC)
	assert.Equal(t, 160.0, cfg.Rules.MaxAbsCurrentA)
	assert.False(t, cfg.Outlier.Enabled)
	assert.Equal(t, 0.05, cfg.Outlier.Contamination)
	assert.Equal(t, 200, cfg.Outlier.Trees)
	assert.Equal(t, "runs.db", cfg.Store.Path)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("EVBATTERY_OUTLIER_CONTAMINATION", "0.1")
	t.Setenv("EVBATTERY_GENERATOR_ROWS", "300")

	v, err := Load(writeConfig(t, "generator:\n  rows: 5000\n"))
	require.NoError(t, err)
	cfg, err := Decode(v)
	require.NoError(t, err)

	assert.Equal(t, 0.1, cfg.Outlier.Contamination)
	assert.Equal(t, 300, cfg.Generator.Rows)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "generator: [\n"))
	assert.Error(t, err)
}

func TestDecode_Invalid(t *testing.T) {
	testcases := map[string]string{
		"zero rows":         "generator:\n  rows: 0\n",
		"contamination":     "outlier:\n  contamination: 0.7\n",
		"unknown fault":     "generator:\n  faults:\n    - type: sag\n",
		"invalid fault":     "generator:\n  faults:\n    - type: spike\n      column: time_s\n      divisor: 10\n      half_width: 2\n",
		"non-numeric trees": "outlier:\n  trees: many\n",
	}
	for name, content := range testcases {
		t.Run(name, func(t *testing.T) {
			v, err := Load(writeConfig(t, content))
			require.NoError(t, err)
			_, err = Decode(v)
			assert.Error(t, err)
		})
	}
}

func TestDecode_DisabledOutlierSkipsValidation(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("outlier.enabled", false)
	v.Set("outlier.contamination", 0.9)

	cfg, err := Decode(v)
	require.NoError(t, err)
	assert.False(t, cfg.Outlier.Enabled)
}
