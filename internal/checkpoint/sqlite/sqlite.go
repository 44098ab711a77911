// Package sqlite implements the checkpoint.Checkpointer contract on an
// embedded modernc.org/sqlite database, for single-node deployments that
// want durability without an external database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/deepagent-run/deepagent/internal/checkpoint"
	"github.com/deepagent-run/deepagent/internal/state"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS agent_checkpoints (
	thread_id  TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
)`

// Store is a SQLite-backed checkpointer.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (creating if needed) the SQLite database at path and ensures
// the checkpoint table exists.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// modernc.org/sqlite does not support concurrent writers on a single
	// connection; the core's single-writer-per-agent discipline makes
	// this safe, but we still cap the pool defensively.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Store{db: db, log: logger.With("component", "checkpoint.sqlite")}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ checkpoint.Checkpointer = (*Store)(nil)

func (s *Store) Save(ctx context.Context, id checkpoint.ThreadID, st *state.AgentState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("sqlite: marshal state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_checkpoints (thread_id, state, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(thread_id) DO UPDATE SET state = excluded.state, updated_at = datetime('now')
	`, string(id), string(payload))
	if err != nil {
		return fmt.Errorf("sqlite: save %q: %w", id, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id checkpoint.ThreadID) (*state.AgentState, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM agent_checkpoints WHERE thread_id = ?`, string(id)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: load %q: %w", id, err)
	}
	var st state.AgentState
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		return nil, false, fmt.Errorf("sqlite: unmarshal state: %w", err)
	}
	return &st, true, nil
}

func (s *Store) Delete(ctx context.Context, id checkpoint.ThreadID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agent_checkpoints WHERE thread_id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("sqlite: delete %q: %w", id, err)
	}
	return nil
}

func (s *Store) ListThreads(ctx context.Context) ([]checkpoint.ThreadID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT thread_id FROM agent_checkpoints`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list threads: %w", err)
	}
	defer rows.Close()

	var out []checkpoint.ThreadID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan thread id: %w", err)
		}
		out = append(out, checkpoint.ThreadID(id))
	}
	return out, rows.Err()
}
