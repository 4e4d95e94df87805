// Package store archives detection runs and their anomalous rows in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/synaptecltd/evbattery/detect"
	"github.com/synaptecltd/evbattery/rules"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

var ErrRunNotFound = errors.New("run not found")

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// RunRecord describes one archived detection run.
type RunRecord struct {
	ID            uuid.UUID
	CreatedAt     time.Time
	Source        string // input file, or "generated"
	Seed          int64  // generator seed, 0 for uploaded data
	Thresholds    rules.Thresholds
	UseML         bool
	Contamination float64
	Summary       detect.Summary
}

// SQLiteStore is a run archive backed by SQLite via modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path, applies
// pragmas for WAL mode and foreign keys, and creates the archive tables.
func New(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// SQLite performs best with a single write connection. WAL enables concurrent readers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	// modernc.org/sqlite requires SQL statements, not DSN params.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Tx executes fn within a database transaction. The transaction is
// committed if fn returns nil, rolled back otherwise.
func (s *SQLiteStore) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id                 TEXT     PRIMARY KEY,
			created_at         TEXT     NOT NULL,
			source             TEXT     NOT NULL,
			seed               INTEGER  NOT NULL,
			max_temp_c         REAL     NOT NULL,
			max_abs_current_a  REAL     NOT NULL,
			max_cell_delta_v   REAL     NOT NULL,
			max_dt_rise_c      REAL     NOT NULL,
			use_ml             INTEGER  NOT NULL,
			contamination      REAL     NOT NULL,
			rule_anomalies     INTEGER  NOT NULL,
			ml_anomalies       INTEGER  NOT NULL,
			total_points       INTEGER  NOT NULL
		);
		CREATE TABLE IF NOT EXISTS anomalies (
			run_id            TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			row_index         INTEGER NOT NULL,
			time_s            REAL    NOT NULL,
			pack_voltage      REAL    NOT NULL,
			pack_current      REAL    NOT NULL,
			pack_temp         REAL    NOT NULL,
			cell_v_min        REAL    NOT NULL,
			cell_v_max        REAL    NOT NULL,
			r_temp_high       INTEGER NOT NULL,
			r_over_current    INTEGER NOT NULL,
			r_v_imbalance     INTEGER NOT NULL,
			r_fast_temp_rise  INTEGER NOT NULL,
			rule_any          INTEGER NOT NULL,
			ml_anomaly        INTEGER NOT NULL,
			ml_score          REAL    NOT NULL,
			PRIMARY KEY (run_id, row_index)
		);
		CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`)
	return err
}

// SaveRun records the run and every row of a for which AnyAnomaly holds.
// A zero rec.ID is replaced by a new UUID and a zero rec.CreatedAt by the
// current time. The summary is taken from a. Returns the run ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec RunRecord, a *detect.AnnotatedSeries) (uuid.UUID, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.Summary = a.Summary()

	err := s.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, created_at, source, seed,
				max_temp_c, max_abs_current_a, max_cell_delta_v, max_dt_rise_c,
				use_ml, contamination, rule_anomalies, ml_anomalies, total_points)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID.String(), rec.CreatedAt.UTC().Format(timeLayout), rec.Source, rec.Seed,
			rec.Thresholds.MaxTempC, rec.Thresholds.MaxAbsCurrentA, rec.Thresholds.MaxCellDeltaV, rec.Thresholds.MaxDTRiseC,
			rec.UseML, rec.Contamination, rec.Summary.RuleAnomalies, rec.Summary.MLAnomalies, rec.Summary.TotalPoints,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO anomalies (run_id, row_index, time_s, pack_voltage, pack_current, pack_temp,
				cell_v_min, cell_v_max, r_temp_high, r_over_current, r_v_imbalance, r_fast_temp_rise,
				rule_any, ml_anomaly, ml_score)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare anomaly insert: %w", err)
		}
		defer stmt.Close()

		for _, i := range a.Anomalies() {
			r := a.Row(i)
			_, err := stmt.ExecContext(ctx,
				rec.ID.String(), r.Index, r.TimeS, r.PackVoltage, r.PackCurrent, r.PackTemp,
				r.CellVMin, r.CellVMax, r.TempHigh, r.OverCurrent, r.VImbalance, r.FastTempRise,
				r.RuleAny, r.MLAnomaly, r.MLScore,
			)
			if err != nil {
				return fmt.Errorf("insert anomaly row %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return rec.ID, nil
}

// ListRuns returns up to limit runs, most recent first. A limit of 0 or less
// returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT id, created_at, source, seed,
			max_temp_c, max_abs_current_a, max_cell_delta_v, max_dt_rise_c,
			use_ml, contamination, rule_anomalies, ml_anomalies, total_points
		FROM runs ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the given ID, or ErrRunNotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, id uuid.UUID) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, source, seed,
			max_temp_c, max_abs_current_a, max_cell_delta_v, max_dt_rise_c,
			use_ml, contamination, rule_anomalies, ml_anomalies, total_points
		FROM runs WHERE id = ?`, id.String())
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return rec, err
}

// RunAnomalies returns the anomalous rows archived for a run, in row order.
func (s *SQLiteStore) RunAnomalies(ctx context.Context, id uuid.UUID) ([]detect.Row, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT row_index, time_s, pack_voltage, pack_current, pack_temp, cell_v_min, cell_v_max,
			r_temp_high, r_over_current, r_v_imbalance, r_fast_temp_rise, rule_any, ml_anomaly, ml_score
		FROM anomalies WHERE run_id = ? ORDER BY row_index`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	defer rows.Close()

	var out []detect.Row
	for rows.Next() {
		var r detect.Row
		if err := rows.Scan(&r.Index, &r.TimeS, &r.PackVoltage, &r.PackCurrent, &r.PackTemp, &r.CellVMin, &r.CellVMax,
			&r.TempHigh, &r.OverCurrent, &r.VImbalance, &r.FastTempRise, &r.RuleAny, &r.MLAnomaly, &r.MLScore); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its anomalous rows.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var (
		rec       RunRecord
		id        string
		createdAt string
	)
	err := row.Scan(&id, &createdAt, &rec.Source, &rec.Seed,
		&rec.Thresholds.MaxTempC, &rec.Thresholds.MaxAbsCurrentA, &rec.Thresholds.MaxCellDeltaV, &rec.Thresholds.MaxDTRiseC,
		&rec.UseML, &rec.Contamination, &rec.Summary.RuleAnomalies, &rec.Summary.MLAnomalies, &rec.Summary.TotalPoints)
	if err != nil {
		return RunRecord{}, err
	}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return RunRecord{}, fmt.Errorf("parse run id %q: %w", id, err)
	}
	if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return RunRecord{}, fmt.Errorf("parse run time %q: %w", createdAt, err)
	}
	return rec, nil
}
