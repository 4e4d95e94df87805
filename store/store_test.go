package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptecltd/evbattery/detect"
	"github.com/synaptecltd/evbattery/rules"
	"github.com/synaptecltd/evbattery/telemetry"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func annotated(t *testing.T) *detect.AnnotatedSeries {
	t.Helper()
	s := telemetry.NewSeries(5)
	for i := range 5 {
		s.TimeS[i] = float64(i)
		s.PackVoltage[i] = 360
		s.PackTemp[i] = 25
		s.CellVMin[i] = 3.59
		s.CellVMax[i] = 3.61
	}
	s.PackCurrent[1] = 180
	flags := rules.Evaluate(s, rules.DefaultThresholds())
	a, err := detect.Merge(s, flags,
		[]bool{false, false, false, true, false},
		[]float64{0.1, 0.05, 0.08, -0.02, 0.09},
	)
	require.NoError(t, err)
	return a
}

func TestSaveRunAndReadBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 7, 9, 5, 4, 123000000, time.UTC)

	id, err := s.SaveRun(ctx, RunRecord{
		CreatedAt:     created,
		Source:        "generated",
		Seed:          7,
		Thresholds:    rules.DefaultThresholds(),
		UseML:         true,
		Contamination: 0.03,
	}, annotated(t))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	rec, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.True(t, created.Equal(rec.CreatedAt))
	assert.Equal(t, "generated", rec.Source)
	assert.Equal(t, int64(7), rec.Seed)
	assert.Equal(t, rules.DefaultThresholds(), rec.Thresholds)
	assert.True(t, rec.UseML)
	assert.Equal(t, 0.03, rec.Contamination)
	assert.Equal(t, detect.Summary{RuleAnomalies: 1, MLAnomalies: 1, TotalPoints: 5}, rec.Summary)

	rows, err := s.RunAnomalies(ctx, id)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Index)
	assert.Equal(t, 180.0, rows[0].PackCurrent)
	assert.True(t, rows[0].OverCurrent)
	assert.True(t, rows[0].RuleAny)
	assert.False(t, rows[0].MLAnomaly)
	assert.Equal(t, 3, rows[1].Index)
	assert.True(t, rows[1].MLAnomaly)
	assert.Equal(t, -0.02, rows[1].MLScore)
}

func TestListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := range 3 {
		id, err := s.SaveRun(ctx, RunRecord{CreatedAt: base.Add(time.Duration(i) * 100 * time.Millisecond)}, annotated(t))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[0], runs[2].ID)

	runs, err = s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSaveRun_KeepsGivenID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	want := uuid.New()

	id, err := s.SaveRun(ctx, RunRecord{ID: want}, annotated(t))
	require.NoError(t, err)
	assert.Equal(t, want, id)

	_, err = s.SaveRun(ctx, RunRecord{ID: want}, annotated(t))
	assert.Error(t, err, "duplicate run id")

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1, "failed insert rolled back")
}

func TestDeleteRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.SaveRun(ctx, RunRecord{}, annotated(t))
	require.NoError(t, err)
	require.NoError(t, s.DeleteRun(ctx, id))

	_, err = s.GetRun(ctx, id)
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = s.RunAnomalies(ctx, id)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.DeleteRun(ctx, id), ErrRunNotFound)

	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM anomalies").Scan(&n))
	assert.Zero(t, n)
}

func TestNew_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := New(path)
	require.NoError(t, err)
	id, err := s.SaveRun(context.Background(), RunRecord{Source: "a.csv"}, annotated(t))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()
	rec, err := s.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "a.csv", rec.Source)
}
