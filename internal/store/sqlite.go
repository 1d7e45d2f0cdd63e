// Package store persists bid recommendations and their evidence decisions
// to SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/iwvelando/lotbid/internal/evidence"
	"github.com/iwvelando/lotbid/pkg/optimization"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Run modes.
const (
	ModeOptimize = "optimize"
	ModeEvaluate = "evaluate"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id                TEXT PRIMARY KEY,
    lot               TEXT    NOT NULL DEFAULT '',
    mode              TEXT    NOT NULL,
    created_at        TEXT    NOT NULL,
    bid               REAL    NOT NULL DEFAULT 0,
    acquisition_cost  REAL    NOT NULL DEFAULT 0,
    roi_p50           REAL    NOT NULL DEFAULT 0,
    prob_meets_roi    REAL    NOT NULL DEFAULT 0,
    cash_p50          REAL    NOT NULL DEFAULT 0,
    meets_constraints INTEGER NOT NULL DEFAULT 0,
    recommendation    TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS gate_records (
    run_id         TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    line           INTEGER NOT NULL,
    item_id        TEXT    NOT NULL,
    admitted       INTEGER NOT NULL DEFAULT 0,
    comp_count     INTEGER NOT NULL DEFAULT 0,
    required_comps INTEGER NOT NULL DEFAULT 0,
    record         TEXT    NOT NULL,
    PRIMARY KEY (run_id, line)
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
`

// Run is one persisted recommendation.
type Run struct {
	Mode           string
	Recommendation optimization.BidRecommendation
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "open run history %q", path)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "apply run history schema")
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores a recommendation and the gate records behind it in one
// transaction. Records are keyed by manifest line, so repeated item ids are
// all kept.
func (s *Store) SaveRun(ctx context.Context, mode string, rec optimization.BidRecommendation, records []evidence.Record) error {
	if rec.RunID == "" {
		return eris.New("run id is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "encode recommendation")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin run transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, lot, mode, created_at, bid, acquisition_cost, roi_p50, prob_meets_roi, cash_p50, meets_constraints, recommendation)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Lot, mode, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.Bid, rec.AcquisitionCost, rec.ROIP50, rec.ProbMeetsROI, rec.CashP50,
		boolToInt(rec.MeetsConstraints), string(blob),
	); err != nil {
		return eris.Wrapf(err, "insert run %s", rec.RunID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO gate_records (run_id, line, item_id, admitted, comp_count, required_comps, record) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "prepare evidence insert")
	}
	defer stmt.Close()

	for line, record := range records {
		encoded, err := json.Marshal(record)
		if err != nil {
			return eris.Wrapf(err, "encode evidence for %s", record.ItemID)
		}
		if _, err := stmt.ExecContext(ctx, rec.RunID, line, record.ItemID, boolToInt(record.Admitted),
			record.CompCount, record.RequiredComps, string(encoded)); err != nil {
			return eris.Wrapf(err, "insert evidence for %s", record.ItemID)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "commit run")
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. A non-positive limit
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT mode, recommendation FROM runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var blob string
		if err := rows.Scan(&run.Mode, &blob); err != nil {
			return nil, eris.Wrap(err, "scan run")
		}
		if err := json.Unmarshal([]byte(blob), &run.Recommendation); err != nil {
			return nil, eris.Wrap(err, "decode recommendation")
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "iterate runs")
}

// Evidence returns the gate records stored for a run in manifest order.
func (s *Store) Evidence(ctx context.Context, runID string) ([]evidence.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM gate_records WHERE run_id = ? ORDER BY line`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "query evidence for %s", runID)
	}
	defer rows.Close()

	var records []evidence.Record
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, eris.Wrap(err, "scan evidence")
		}
		var record evidence.Record
		if err := json.Unmarshal([]byte(blob), &record); err != nil {
			return nil, eris.Wrap(err, "decode evidence")
		}
		records = append(records, record)
	}
	return records, eris.Wrap(rows.Err(), "iterate evidence")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
