package detect

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/synaptecltd/evbattery/telemetry"
)

// ReportFileName returns the default name of a report written at t.
func ReportFileName(t time.Time) string {
	return "anomaly_report_" + t.Format("20060102_150405") + ".csv"
}

// Header returns the telemetry header followed by AnnotationColumns.
func (a *AnnotatedSeries) Header() []string {
	return append(a.Series.Header(), AnnotationColumns...)
}

// Record returns row i formatted in Header order.
func (a *AnnotatedSeries) Record(i int) []string {
	return append(a.Series.Record(i),
		strconv.FormatBool(a.Rules.TempHigh[i]),
		strconv.FormatBool(a.Rules.OverCurrent[i]),
		strconv.FormatBool(a.Rules.VImbalance[i]),
		strconv.FormatBool(a.Rules.FastTempRise[i]),
		strconv.FormatBool(a.Rules.Any[i]),
		strconv.FormatBool(a.MLFlags[i]),
		telemetry.FormatFloat(a.MLScores[i]),
	)
}

// WriteCSV writes every row of a with its annotations.
func WriteCSV(w io.Writer, a *AnnotatedSeries) error {
	idx := make([]int, a.Len())
	for i := range idx {
		idx[i] = i
	}
	return write(w, a, idx)
}

// WriteAnomaliesCSV writes only the rows for which AnyAnomaly holds.
func WriteAnomaliesCSV(w io.Writer, a *AnnotatedSeries) error {
	return write(w, a, a.Anomalies())
}

// write writes the header and the rows listed in idx.
func write(w io.Writer, a *AnnotatedSeries, idx []int) error {
	if err := a.Series.Validate(); err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(a.Header()); err != nil {
		return err
	}
	for _, i := range idx {
		if err := writer.Write(a.Record(i)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
