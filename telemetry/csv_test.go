package telemetry_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptecltd/evbattery/telemetry"
)

const sampleCSV = `time_s,pack_voltage,pack_current,pack_temp,cell_v_min,cell_v_max,vin
0,360.5,12.25,30.1,3.59,3.62,WVW1
1,361,-4,30.2,3.6,3.63,WVW1
2,359.75,150,31,3.58,3.61,WVW1
`

func TestReadCSV(t *testing.T) {
	s, err := telemetry.ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []float64{0, 1, 2}, s.TimeS)
	assert.Equal(t, []float64{12.25, -4, 150}, s.PackCurrent)
	assert.Equal(t, telemetry.Sample{TimeS: 1, PackVoltage: 361, PackCurrent: -4, PackTemp: 30.2, CellVMin: 3.6, CellVMax: 3.63}, s.Sample(1))

	require.Len(t, s.Extra, 1)
	assert.Equal(t, "vin", s.Extra[0].Name)
	assert.Equal(t, []string{"WVW1", "WVW1", "WVW1"}, s.Extra[0].Values)
}

func TestReadCSV_ColumnOrderIndependent(t *testing.T) {
	in := "cell_v_max,cell_v_min,pack_temp,pack_current,pack_voltage,time_s\n3.7,3.6,25,10,360,0\n"
	s, err := telemetry.ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, telemetry.Sample{TimeS: 0, PackVoltage: 360, PackCurrent: 10, PackTemp: 25, CellVMin: 3.6, CellVMax: 3.7}, s.Sample(0))
	assert.Empty(t, s.Extra)
}

func TestReadCSV_MissingColumn(t *testing.T) {
	in := "time_s,pack_voltage,pack_current,pack_temp,cell_v_min\n0,360,10,25,3.6\n"
	s, err := telemetry.ReadCSV(strings.NewReader(in))
	assert.Nil(t, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, telemetry.ErrSchema))

	var schemaErr *telemetry.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, []telemetry.Column{telemetry.CellVMax}, schemaErr.Missing)
	assert.Contains(t, err.Error(), "cell_v_max")
}

func TestReadCSV_MissingColumnRejectedBeforeRows(t *testing.T) {
	// rows that would fail to parse must not be reached
	in := "time_s,pack_voltage\nnot-a-number,also-bad\n"
	_, err := telemetry.ReadCSV(strings.NewReader(in))

	var schemaErr *telemetry.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Len(t, schemaErr.Missing, 4)
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := telemetry.ReadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, telemetry.ErrSchema)
}

func TestReadCSV_BadNumber(t *testing.T) {
	in := "time_s,pack_voltage,pack_current,pack_temp,cell_v_min,cell_v_max\n0,360,10,hot,3.6,3.7\n"
	_, err := telemetry.ReadCSV(strings.NewReader(in))

	var parseErr *telemetry.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 2, parseErr.Line)
	assert.Equal(t, "pack_temp", parseErr.Column)
	assert.Equal(t, "hot", parseErr.Value)
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	s, err := telemetry.ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, telemetry.WriteCSV(&buf, s))

	back, err := telemetry.ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}

func TestWriteCSV_LengthMismatch(t *testing.T) {
	s := telemetry.NewSeries(3)
	s.PackTemp = s.PackTemp[:2]
	err := telemetry.WriteCSV(&bytes.Buffer{}, s)
	assert.ErrorIs(t, err, telemetry.ErrLengthMismatch)
}
