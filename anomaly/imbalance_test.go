package anomaly

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptecltd/evbattery/telemetry"
)

func flatCells(rows int) *telemetry.Series {
	s := telemetry.NewSeries(rows)
	for i := range rows {
		s.CellVMin[i] = 3.59
		s.CellVMax[i] = 3.61
	}
	return s
}

func TestImbalanceInject_WidensSpreadKeepsMean(t *testing.T) {
	imbalance, err := NewImbalanceAnomaly(DefaultImbalance)
	require.NoError(t, err)

	series := flatCells(3000)
	episodes := imbalance.Inject(series, rand.New(rand.NewPCG(7, 0)))
	require.Len(t, episodes, 3)

	inEpisode := make([]bool, series.Len())
	for _, e := range episodes {
		assert.GreaterOrEqual(t, e.Start, imbalanceStartIndex)
		assert.GreaterOrEqual(t, e.Len(), 20)
		assert.Less(t, e.Len(), 60)
		for i := e.Start; i < e.End; i++ {
			inEpisode[i] = true
		}
	}

	for i := range series.Len() {
		assert.LessOrEqual(t, series.CellVMin[i], series.CellVMax[i])
		assert.InDelta(t, 3.60, (series.CellVMin[i]+series.CellVMax[i])/2, 1e-9)
		if inEpisode[i] {
			assert.Greater(t, series.CellVMax[i]-series.CellVMin[i], 0.3-1e-9)
		} else {
			assert.InDelta(t, 0.02, series.CellVMax[i]-series.CellVMin[i], 1e-9)
		}
	}
}

func TestImbalanceInject_ShortSeriesSkipped(t *testing.T) {
	imbalance, err := NewImbalanceAnomaly(DefaultImbalance)
	require.NoError(t, err)

	assert.Empty(t, imbalance.Inject(flatCells(200), rand.New(rand.NewPCG(7, 0))))
	assert.Len(t, imbalance.Inject(flatCells(201), rand.New(rand.NewPCG(7, 0))), 1)
}

func TestNewImbalanceAnomaly_InvalidParams(t *testing.T) {
	testcases := map[string]ImbalanceParams{
		"negative offset": {Divisor: 900, Offset: -0.1, MinSpan: 20, MaxSpan: 60},
		"zero min span":   {Divisor: 900, Offset: 0.1, MinSpan: 0, MaxSpan: 60},
		"inverted span":   {Divisor: 900, Offset: 0.1, MinSpan: 60, MaxSpan: 20},
		"zero divisor":    {Divisor: 0, Offset: 0.1, MinSpan: 20, MaxSpan: 60},
	}
	for name, params := range testcases {
		t.Run(name, func(t *testing.T) {
			_, err := NewImbalanceAnomaly(params)
			assert.Error(t, err)
		})
	}
}
