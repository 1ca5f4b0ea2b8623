package wormhole

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS wormholes (
	seq               INTEGER PRIMARY KEY AUTOINCREMENT,
	id                TEXT UNIQUE NOT NULL,
	source_type       TEXT NOT NULL,
	event_type        TEXT NOT NULL,
	target_agent_role TEXT NOT NULL,
	action_type       TEXT NOT NULL,
	enabled           BOOLEAN NOT NULL DEFAULT 1,
	created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_wormholes_source ON wormholes(source_type, event_type);
`

// SQLStore keeps wormholes in SQLite. List returns them in first-insert
// order; updating an existing id keeps its position.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens (creating if needed) the database at path and applies
// the schema. ":memory:" gives a private in-memory store.
func OpenSQLStore(ctx context.Context, path string) (*SQLStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open wormhole db: %w", err)
	}
	// One connection: an in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	s := NewSQLStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database. Call Migrate before use.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate applies the schema.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply wormhole schema: %w", err)
	}
	return nil
}

// Put validates and inserts w, or updates the row with the same id.
func (s *SQLStore) Put(ctx context.Context, w Wormhole) error {
	if err := w.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wormholes (id, source_type, event_type, target_agent_role, action_type, enabled)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_type = excluded.source_type,
			event_type = excluded.event_type,
			target_agent_role = excluded.target_agent_role,
			action_type = excluded.action_type,
			enabled = excluded.enabled,
			updated_at = CURRENT_TIMESTAMP`,
		w.ID, w.From.SourceType, w.From.EventType, w.To.TargetAgentRole, w.To.ActionType, w.Enabled)
	if err != nil {
		return fmt.Errorf("failed to put wormhole %q: %w", w.ID, err)
	}
	return nil
}

// Delete removes the wormhole with id. Deleting an unknown id is not an error.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM wormholes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete wormhole %q: %w", id, err)
	}
	return nil
}

// List returns every stored wormhole in insertion order.
func (s *SQLStore) List(ctx context.Context) ([]Wormhole, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_type, event_type, target_agent_role, action_type, enabled
		FROM wormholes ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list wormholes: %w", err)
	}
	defer rows.Close()

	var list []Wormhole
	for rows.Next() {
		var w Wormhole
		if err := rows.Scan(&w.ID, &w.From.SourceType, &w.From.EventType,
			&w.To.TargetAgentRole, &w.To.ActionType, &w.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan wormhole: %w", err)
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
