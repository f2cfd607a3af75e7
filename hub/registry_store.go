package hub

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Store mirrors the events Registry records (create, start, delete, and
// chat messages) into a local SQLite file, purely as an audit trail an
// operator can query later —
// agents.json, not this database, is what Registry reloads from on
// restart.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets a structured logger for the audit store.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore opens (creating if absent) a SQLite database at dbPath. As in
// the teacher's sqlite store, a single connection serializes all writers.
func NewStore(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		panic(fmt.Sprintf("hub: open audit store: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates the events table if it does not already exist.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS agent_events (
		id TEXT PRIMARY KEY,
		agent_name TEXT NOT NULL,
		kind TEXT NOT NULL,
		detail TEXT,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("hub: create agent_events table: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_agent_events_name ON agent_events(agent_name)`)
	if err != nil {
		return fmt.Errorf("hub: create agent_events index: %w", err)
	}
	return nil
}

// RecordEvent appends one audit row. It is best-effort: failures are
// logged, never propagated, since the audit trail must never block the
// registry's authoritative operation.
func (s *Store) RecordEvent(ctx context.Context, agentName, kind, detail string) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_events (id, agent_name, kind, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), agentName, kind, detail, time.Now().Unix(),
	)
	if err != nil {
		s.logger.Error("hub: record event failed", "agent", agentName, "kind", kind, "error", err)
	}
}

// Events returns the most recent events for agentName, oldest first.
func (s *Store) Events(ctx context.Context, agentName string, limit int) ([]AgentEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, detail, created_at FROM agent_events WHERE agent_name = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		agentName, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("hub: query events: %w", err)
	}
	defer rows.Close()

	var events []AgentEvent
	for rows.Next() {
		var e AgentEvent
		var createdAt int64
		if err := rows.Scan(&e.Kind, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("hub: scan event: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		events = append(events, e)
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, rows.Err()
}

// AgentEvent is one row of an agent's audit history.
type AgentEvent struct {
	Kind      string
	Detail    string
	CreatedAt time.Time
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }
