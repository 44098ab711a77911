// Package postgres implements the checkpoint.Checkpointer contract on top
// of a Postgres table, mirroring the pool/table-creation shape of nexus's
// Cockroach-backed session and job stores (internal/sessions,
// internal/jobs) but targeting plain Postgres via github.com/lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/deepagent-run/deepagent/internal/checkpoint"
	"github.com/deepagent-run/deepagent/internal/state"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS agent_checkpoints (
	thread_id  TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store is a Postgres-backed checkpointer. The core depends only on the
// checkpoint.Checkpointer contract; pool configuration, retries, and table
// creation are this collaborator's concern.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open connects to dsn and ensures the checkpoint table exists.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}
	return &Store{db: db, log: logger.With("component", "checkpoint.postgres")}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ checkpoint.Checkpointer = (*Store)(nil)

func (s *Store) Save(ctx context.Context, id checkpoint.ThreadID, st *state.AgentState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("postgres: marshal state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_checkpoints (thread_id, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (thread_id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()
	`, string(id), payload)
	if err != nil {
		return fmt.Errorf("postgres: save %q: %w", id, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id checkpoint.ThreadID) (*state.AgentState, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT state FROM agent_checkpoints WHERE thread_id = $1`, string(id)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres: load %q: %w", id, err)
	}
	var st state.AgentState
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, false, fmt.Errorf("postgres: unmarshal state: %w", err)
	}
	return &st, true, nil
}

func (s *Store) Delete(ctx context.Context, id checkpoint.ThreadID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agent_checkpoints WHERE thread_id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("postgres: delete %q: %w", id, err)
	}
	return nil
}

func (s *Store) ListThreads(ctx context.Context) ([]checkpoint.ThreadID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT thread_id FROM agent_checkpoints`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list threads: %w", err)
	}
	defer rows.Close()

	var out []checkpoint.ThreadID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan thread id: %w", err)
		}
		out = append(out, checkpoint.ThreadID(id))
	}
	return out, rows.Err()
}
