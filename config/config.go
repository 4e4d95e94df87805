// Package config loads the generator, detector, archive and logging settings
// from defaults, an optional YAML file and EVBATTERY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/synaptecltd/evbattery/anomaly"
	"github.com/synaptecltd/evbattery/outlier"
	"github.com/synaptecltd/evbattery/rules"
)

const envPrefix = "EVBATTERY"

// Config holds every setting read by the command line tool.
type Config struct {
	Generator GeneratorConfig  `mapstructure:"generator"`
	Rules     rules.Thresholds `mapstructure:"rules"`
	Outlier   OutlierConfig    `mapstructure:"outlier"`
	Store     StoreConfig      `mapstructure:"store"`
	Logging   LoggingConfig    `mapstructure:"logging"`
}

// GeneratorConfig holds the telemetry generator settings. A nil Faults
// selects the default fault profile; an empty list disables faults.
type GeneratorConfig struct {
	Rows   int               `mapstructure:"rows"`
	Seed   int64             `mapstructure:"seed"`
	Out    string            `mapstructure:"out"`
	Faults anomaly.Container `mapstructure:"faults"`
}

// OutlierConfig holds the outlier detector settings.
type OutlierConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	outlier.Config `mapstructure:",squash"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"` // SQLite archive file, empty disables archiving
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// With an empty path, evbattery.yaml is looked up in the working directory
// and ./configs; a missing file is not an error.
func Load(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("evbattery")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// Environment variable support: EVBATTERY_OUTLIER_CONTAMINATION=0.05
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return v, nil
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	th := rules.DefaultThresholds()
	oc := outlier.DefaultConfig()

	v.SetDefault("generator.rows", 2000)
	v.SetDefault("generator.seed", 7)
	v.SetDefault("generator.out", "data/sample_can.csv")

	v.SetDefault("rules.max_temp_c", th.MaxTempC)
	v.SetDefault("rules.max_abs_current_a", th.MaxAbsCurrentA)
	v.SetDefault("rules.max_cell_delta_v", th.MaxCellDeltaV)
	v.SetDefault("rules.max_dt_rise_c", th.MaxDTRiseC)

	v.SetDefault("outlier.enabled", true)
	v.SetDefault("outlier.contamination", oc.Contamination)
	v.SetDefault("outlier.trees", oc.Trees)
	v.SetDefault("outlier.max_samples", oc.MaxSamples)
	v.SetDefault("outlier.seed", oc.Seed)
	v.SetDefault("outlier.workers", oc.Workers)

	v.SetDefault("store.path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Decode unmarshals v into a Config. A generator.faults list is decoded
// into fault objects.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		anomaly.GetDecodeHook(),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that can be checked without data.
func (c *Config) Validate() error {
	if c.Generator.Rows <= 0 {
		return fmt.Errorf("generator.rows must be greater than 0, got %d", c.Generator.Rows)
	}
	if err := c.Rules.Validate(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	if c.Outlier.Enabled {
		if err := c.Outlier.Config.Validate(); err != nil {
			return fmt.Errorf("outlier: %w", err)
		}
	}
	return nil
}
