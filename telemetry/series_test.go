package telemetry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesValuesAliasesColumns(t *testing.T) {
	s := NewSeries(4)
	s.Values(PackTemp)[2] = 42
	assert.Equal(t, 42.0, s.PackTemp[2])
	assert.Nil(t, s.Values(Column("soc")))
}

func TestSeriesCloneIsDeep(t *testing.T) {
	s := NewSeries(2)
	s.Extra = []ExtraColumn{{Name: "note", Values: []string{"a", "b"}}}

	c := s.Clone()
	c.PackCurrent[0] = 99
	c.Extra[0].Values[0] = "z"

	assert.Equal(t, 0.0, s.PackCurrent[0])
	assert.Equal(t, "a", s.Extra[0].Values[0])
}

func TestSeriesAppend(t *testing.T) {
	s := NewSeries(0)
	s.Extra = []ExtraColumn{{Name: "note"}}
	s.Append(Sample{TimeS: 3, PackTemp: 21})

	require.NoError(t, s.Validate())
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []string{""}, s.Extra[0].Values)
}

func TestSeriesFeatures(t *testing.T) {
	s := NewSeries(0)
	s.Append(Sample{TimeS: 0, PackVoltage: 1, PackCurrent: 2, PackTemp: 3, CellVMin: 4, CellVMax: 5})
	assert.Equal(t, [][]float64{{1, 2, 3, 4, 5}}, s.Features())
}

func TestSeriesHasNonFinite(t *testing.T) {
	s := NewSeries(3)
	_, bad := s.HasNonFinite()
	assert.False(t, bad)

	s.CellVMin[1] = math.NaN()
	c, bad := s.HasNonFinite()
	assert.True(t, bad)
	assert.Equal(t, CellVMin, c)
}

func TestParseColumn(t *testing.T) {
	c, err := ParseColumn("pack_current")
	require.NoError(t, err)
	assert.Equal(t, PackCurrent, c)

	var col Column
	assert.Error(t, col.UnmarshalText([]byte("soc")))
	require.NoError(t, col.UnmarshalText([]byte("pack_temp")))
	assert.Equal(t, PackTemp, col)
}
