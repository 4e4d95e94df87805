// Package cli implements the evbattery command line tool.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/synaptecltd/evbattery/config"
	"go.uber.org/zap"
)

// Build information, set with -ldflags "-X".
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

type app struct {
	configPath string

	v      *viper.Viper
	cfg    *config.Config
	logger *zap.Logger

	stdout io.Writer
	stderr io.Writer
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdout, os.Stderr)
}

func NewRootCommandWithIO(out, errOut io.Writer) *cobra.Command {
	return newRootCommand(out, errOut)
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{
		stdout: out,
		stderr: errOut,
	}

	cmd := &cobra.Command{
		Use:           "evbattery",
		Short:         "EV battery telemetry emulator and anomaly detector",
		Long:          "evbattery generates synthetic battery pack telemetry with injected faults and flags anomalous samples with threshold rules and an isolation forest.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetVersionTemplate(fmt.Sprintf("evbattery {{.Version}} (commit %s, built %s)\n", Commit, BuildDate))

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file (default ./evbattery.yaml if present)")
	cmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return a.load(cmd)
	}
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if a.logger != nil {
			_ = a.logger.Sync()
		}
	}

	cmd.AddCommand(
		newGenerateCmd(a),
		newDetectCmd(a),
		newRunsCmd(a),
		newVersionCmd(a),
	)
	return cmd
}

// load reads the configuration, binding the flags of cmd that have a
// matching key, and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	v, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	for key, flag := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(v)
	if err != nil {
		return err
	}

	a.v, a.cfg, a.logger = v, cfg, logger
	return nil
}

// flagKeys maps configuration keys to the flags that override them.
var flagKeys = map[string]string{
	"logging.level":         "log-level",
	"generator.rows":        "rows",
	"generator.seed":        "seed",
	"generator.out":         "out",
	"outlier.contamination": "contamination",
	"outlier.trees":         "trees",
	"store.path":            "db",
}
