package results

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS suv_runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	patients    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS suv_vertebra_means (
	run_id   TEXT NOT NULL REFERENCES suv_runs(id) ON DELETE CASCADE,
	patient  TEXT NOT NULL,
	label    INTEGER NOT NULL,
	vertebra TEXT NOT NULL,
	mean_suv DOUBLE PRECISION NOT NULL,
	mean_hu  DOUBLE PRECISION,
	PRIMARY KEY (run_id, patient, label)
);
`

// execer is the part of *sql.DB and *sql.Tx the writer needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresSink stores runs in PostgreSQL.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink wraps an open database.
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// NewPostgresSinkFromDSN opens and pings the database behind dsn.
func NewPostgresSinkFromDSN(ctx context.Context, dsn string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresSink{db: db}, nil
}

// Close closes the database.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the result tables when missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// WriteRun inserts the run and its measurements in one transaction.
func (s *PostgresSink) WriteRun(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := writeRun(ctx, tx, run); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return nil
}

func writeRun(ctx context.Context, ex execer, run Run) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO suv_runs (id, started_at, finished_at, patients)
		VALUES ($1, $2, $3, $4)
	`, run.ID, run.StartedAt, run.FinishedAt, len(run.Means))
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	for _, row := range run.Rows() {
		var hu sql.NullFloat64
		if v, ok := run.Density[row.Patient][row.Label]; ok {
			hu = sql.NullFloat64{Float64: v, Valid: true}
		}
		_, err := ex.ExecContext(ctx, `
			INSERT INTO suv_vertebra_means (run_id, patient, label, vertebra, mean_suv, mean_hu)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, run.ID, row.Patient, row.Label, row.Vertebra, row.MeanSUV, hu)
		if err != nil {
			return fmt.Errorf("failed to insert %s/%s: %w", row.Patient, row.Vertebra, err)
		}
	}
	return nil
}
