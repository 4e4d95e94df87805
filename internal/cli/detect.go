package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/synaptecltd/evbattery/detect"
	"github.com/synaptecltd/evbattery/metrics"
	"github.com/synaptecltd/evbattery/store"
	"github.com/synaptecltd/evbattery/telemetry"
)

const autoReport = "auto"

type detectOptions struct {
	in            string
	faults        string
	noML          bool
	report        string
	anomaliesOnly bool
	top           int
	archive       bool
	metricsFile   string
}

func newDetectCmd(a *app) *cobra.Command {
	var o detectOptions

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Flag anomalous samples in pack telemetry",
		Long: `Run the threshold rules and the isolation forest over a telemetry series
and print a summary with the first anomalous rows.

The series is read from --in, or generated with --rows and --seed when no
input is given. The input must carry the columns time_s, pack_voltage,
pack_current, pack_temp, cell_v_min and cell_v_max; other columns are kept
in the report.

Examples:

  evbattery detect --in data/sample_can.csv
  evbattery detect --rows 5000 --contamination 0.05 --report
  evbattery detect --in log.csv --no-ml --report=out.csv --anomalies-only
  evbattery detect --in log.csv --archive --db runs.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDetect(cmd, o)
		},
	}

	cmd.Flags().StringVar(&o.in, "in", "", "input CSV, - for stdin (default: generate a series)")
	cmd.Flags().Int("rows", 2000, "rows to generate when no input is given")
	cmd.Flags().Int64("seed", 7, "generator seed when no input is given")
	cmd.Flags().StringVar(&o.faults, "faults", "", "YAML fault profile for the generated series")
	cmd.Flags().Float64("contamination", 0.03, "expected fraction of anomalous samples, in (0, 0.5)")
	cmd.Flags().Int("trees", 200, "isolation forest size")
	cmd.Flags().BoolVar(&o.noML, "no-ml", false, "skip the isolation forest")
	cmd.Flags().StringVar(&o.report, "report", "", "write the annotated series as CSV (default name anomaly_report_<time>.csv)")
	cmd.Flags().Lookup("report").NoOptDefVal = autoReport
	cmd.Flags().BoolVar(&o.anomaliesOnly, "anomalies-only", false, "report only anomalous rows")
	cmd.Flags().IntVar(&o.top, "top", 10, "anomalous rows to print, -1 for all")
	cmd.Flags().BoolVar(&o.archive, "archive", false, "save the run to the SQLite archive")
	cmd.Flags().String("db", "", "SQLite archive path (default from store.path)")
	cmd.Flags().StringVar(&o.metricsFile, "metrics-file", "", "write run metrics in Prometheus text format")
	return cmd
}

func (a *app) runDetect(cmd *cobra.Command, o detectOptions) error {
	series, source, seed, err := a.loadSeries(o)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	d := detect.NewDetector()
	d.Thresholds = a.cfg.Rules
	d.Outlier = a.cfg.Outlier.Config
	d.UseML = a.cfg.Outlier.Enabled && !o.noML
	d.SetLogger(a.logger.Named("detect"))
	d.SetMetrics(metrics.NewCollector(registry))

	annotated, err := d.Run(cmd.Context(), series)
	if err != nil {
		return err
	}

	printSummary(a.stdout, annotated, o.top)

	if o.report != "" {
		path := o.report
		if path == autoReport {
			path = detect.ReportFileName(time.Now())
		}
		write := detect.WriteCSV
		if o.anomaliesOnly {
			write = detect.WriteAnomaliesCSV
		}
		if err := writeFile(path, func(f *os.File) error { return write(f, annotated) }); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(a.stdout, "Report written to %s\n", path)
	}

	if o.archive {
		id, err := a.archive(cmd, annotated, store.RunRecord{
			Source:        source,
			Seed:          seed,
			Thresholds:    d.Thresholds,
			UseML:         d.UseML,
			Contamination: d.Outlier.Contamination,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Archived run %s\n", id)
	}

	if o.metricsFile != "" {
		if err := prometheus.WriteToTextfile(o.metricsFile, registry); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// loadSeries reads the input CSV or generates a series. It returns the series
// with its source name and the generator seed, 0 for read input.
func (a *app) loadSeries(o detectOptions) (*telemetry.Series, string, int64, error) {
	switch o.in {
	case "":
		emu, err := a.newEmulator(o.faults)
		if err != nil {
			return nil, "", 0, err
		}
		series, err := emu.Run(a.cfg.Generator.Rows)
		return series, "generated", a.cfg.Generator.Seed, err
	case "-":
		series, err := telemetry.ReadCSV(os.Stdin)
		return series, "stdin", 0, err
	}

	f, err := os.Open(o.in)
	if err != nil {
		return nil, "", 0, err
	}
	defer f.Close()
	series, err := telemetry.ReadCSV(f)
	if err != nil {
		return nil, "", 0, fmt.Errorf("%s: %w", o.in, err)
	}
	return series, o.in, 0, nil
}

func printSummary(w io.Writer, a *detect.AnnotatedSeries, top int) {
	summary := a.Summary()
	fmt.Fprintf(w, "Total points:   %d\n", summary.TotalPoints)
	fmt.Fprintf(w, "Rule anomalies: %d\n", summary.RuleAnomalies)
	fmt.Fprintf(w, "ML anomalies:   %d\n", summary.MLAnomalies)

	rows := a.Top(top)
	if len(rows) == 0 {
		return
	}
	fmt.Fprintln(w)
	printRows(w, rows)
}

func printRows(w io.Writer, rows []detect.Row) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tTIME_S\tVOLTAGE\tCURRENT\tTEMP\tCELL_DELTA\tRULES\tML_SCORE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%.0f\t%.2f\t%.2f\t%.2f\t%.3f\t%s\t%.4f\n",
			r.Index, r.TimeS, r.PackVoltage, r.PackCurrent, r.PackTemp, r.CellVMax-r.CellVMin, ruleList(r), r.MLScore)
	}
	tw.Flush()
}

func ruleList(r detect.Row) string {
	var s string
	add := func(set bool, name string) {
		if !set {
			return
		}
		if s != "" {
			s += ","
		}
		s += name
	}
	add(r.TempHigh, "temp")
	add(r.OverCurrent, "current")
	add(r.VImbalance, "imbalance")
	add(r.FastTempRise, "rise")
	add(r.MLAnomaly, "ml")
	if s == "" {
		return "-"
	}
	return s
}
