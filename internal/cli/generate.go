package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/synaptecltd/evbattery"
	"github.com/synaptecltd/evbattery/anomaly"
	"github.com/synaptecltd/evbattery/telemetry"
)

func newGenerateCmd(a *app) *cobra.Command {
	var faultsPath string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate synthetic pack telemetry with injected faults",
		Long: `Generate a synthetic battery pack time series and write it as CSV.

Thermal spikes, current surges and cell imbalance windows are injected at
pseudo-random positions. The same --rows and --seed always produce the same
file.

Examples:

  evbattery generate
  evbattery generate --rows 5000 --seed 42 --out data/run.csv
  evbattery generate --faults faults.yaml --out -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			emu, err := a.newEmulator(faultsPath)
			if err != nil {
				return err
			}
			series, err := emu.Run(a.cfg.Generator.Rows)
			if err != nil {
				return err
			}

			out := a.cfg.Generator.Out
			if out == "-" {
				return telemetry.WriteCSV(a.stdout, series)
			}
			if err := writeFile(out, func(f *os.File) error { return telemetry.WriteCSV(f, series) }); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Generated %d rows -> %s\n", series.Len(), out)
			return nil
		},
	}

	cmd.Flags().Int("rows", 2000, "number of samples to generate")
	cmd.Flags().Int64("seed", 7, "random seed")
	cmd.Flags().String("out", "data/sample_can.csv", "output CSV path, - for stdout")
	cmd.Flags().StringVar(&faultsPath, "faults", "", "YAML fault profile replacing the configured faults")
	return cmd
}

// newEmulator returns an emulator seeded from the configuration, with faults
// from faultsPath, the configuration or the default profile, in that order.
func (a *app) newEmulator(faultsPath string) (*evbattery.Emulator, error) {
	emu := evbattery.NewEmulator(a.cfg.Generator.Seed)
	emu.SetLogger(a.logger.Named("generator"))

	switch {
	case faultsPath != "":
		f, err := os.Open(faultsPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		faults, err := anomaly.LoadProfile(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", faultsPath, err)
		}
		emu.Faults = faults
	case a.cfg.Generator.Faults != nil:
		emu.Faults = a.cfg.Generator.Faults
	}
	return emu, nil
}

// writeFile creates path and its parent directories and calls write with the
// open file.
func writeFile(path string, write func(*os.File) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
