package resultstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the table used by the PostgreSQL backend.
const Schema = `CREATE TABLE IF NOT EXISTS node_results (
	run_id     TEXT        NOT NULL,
	node_id    TEXT        NOT NULL,
	node_type  TEXT        NOT NULL,
	error      BOOLEAN     NOT NULL,
	payload    JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, node_id)
)`

// Postgres stores records in the node_results table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating node_results table: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. The schema must exist.
func NewPostgresWithPool(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Save upserts a record.
func (s *Postgres) Save(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO node_results (run_id, node_id, node_type, error, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (run_id, node_id) DO UPDATE SET
		   node_type = EXCLUDED.node_type,
		   error = EXCLUDED.error,
		   payload = EXCLUDED.payload,
		   created_at = EXCLUDED.created_at`,
		rec.RunID, rec.NodeID, rec.NodeType, rec.Error, []byte(rec.Payload), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving %s/%s: %w", rec.RunID, rec.NodeID, err)
	}
	return nil
}

// Get reads one record.
func (s *Postgres) Get(ctx context.Context, runID, nodeID string) (*Record, error) {
	var rec Record
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT run_id, node_id, node_type, error, payload, created_at
		 FROM node_results
		 WHERE run_id = $1 AND node_id = $2`,
		runID, nodeID,
	).Scan(&rec.RunID, &rec.NodeID, &rec.NodeType, &rec.Error, &payload, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading %s/%s: %w", runID, nodeID, err)
	}
	rec.Payload = payload
	return &rec, nil
}

// List reads every record of a run, ordered by node id.
func (s *Postgres) List(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, node_id, node_type, error, payload, created_at
		 FROM node_results
		 WHERE run_id = $1
		 ORDER BY node_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", runID, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var payload []byte
		if err := rows.Scan(&rec.RunID, &rec.NodeID, &rec.NodeType, &rec.Error, &payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", runID, err)
		}
		rec.Payload = payload
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
