package telemetry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadCSV parses a delimited table with a header row into a Series.
// The header is checked for every required column before any row is read,
// so a table missing a column is rejected with a *SchemaError and nothing else.
// Columns that are not required are preserved in Series.Extra.
func ReadCSV(r io.Reader) (*Series, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &SchemaError{Missing: RequiredColumns}
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index, extra, err := mapHeader(header)
	if err != nil {
		return nil, err
	}

	s := NewSeries(0)
	for _, i := range extra {
		s.Extra = append(s.Extra, ExtraColumn{Name: header[i]})
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line+1, err)
		}
		line++

		for _, c := range RequiredColumns {
			raw := strings.TrimSpace(record[index[c]])
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, &ParseError{Line: line, Column: string(c), Value: raw, Err: err}
			}
			col := s.Values(c)
			col = append(col, v)
			s.setValues(c, col)
		}
		for j, i := range extra {
			s.Extra[j].Values = append(s.Extra[j].Values, record[i])
		}
	}

	return s, nil
}

// WriteCSV writes the series with the required columns first, followed by any
// extra columns in their original order.
func WriteCSV(w io.Writer, s *Series) error {
	if err := s.Validate(); err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(s.Header()); err != nil {
		return err
	}
	for i := 0; i < s.Len(); i++ {
		if err := writer.Write(s.Record(i)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Header returns the column names written by WriteCSV.
func (s *Series) Header() []string {
	header := make([]string, 0, len(RequiredColumns)+len(s.Extra))
	for _, c := range RequiredColumns {
		header = append(header, string(c))
	}
	for _, e := range s.Extra {
		header = append(header, e.Name)
	}
	return header
}

// Record returns row i formatted in Header order.
func (s *Series) Record(i int) []string {
	record := make([]string, 0, len(RequiredColumns)+len(s.Extra))
	for _, c := range RequiredColumns {
		record = append(record, FormatFloat(s.Values(c)[i]))
	}
	for _, e := range s.Extra {
		record = append(record, e.Values[i])
	}
	return record
}

// FormatFloat formats v with the fewest digits that round-trip.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func mapHeader(header []string) (map[Column]int, []int, error) {
	index := make(map[Column]int, len(RequiredColumns))
	known := make(map[string]bool, len(RequiredColumns))
	for _, c := range RequiredColumns {
		known[string(c)] = true
	}

	var extra []int
	for i, name := range header {
		name = strings.TrimSpace(name)
		if known[name] {
			if _, dup := index[Column(name)]; !dup {
				index[Column(name)] = i
				continue
			}
		}
		extra = append(extra, i)
	}

	var missing []Column
	for _, c := range RequiredColumns {
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, nil, &SchemaError{Missing: missing}
	}
	return index, extra, nil
}

func (s *Series) setValues(c Column, v []float64) {
	switch c {
	case TimeS:
		s.TimeS = v
	case PackVoltage:
		s.PackVoltage = v
	case PackCurrent:
		s.PackCurrent = v
	case PackTemp:
		s.PackTemp = v
	case CellVMin:
		s.CellVMin = v
	case CellVMax:
		s.CellVMax = v
	}
}
