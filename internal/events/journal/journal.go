// Package journal persists bus events to SQLite so orchestrators can
// inspect what happened after a run. The journal is an ordinary bus
// subscriber; the bus itself stays persistence-agnostic.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/monorail-dev/monorail/internal/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS bus_events (
    id TEXT PRIMARY KEY,
    variant TEXT NOT NULL,
    source TEXT NOT NULL,
    priority TEXT NOT NULL,
    timestamp DATETIME NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}',
    data TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_bus_events_variant ON bus_events(variant);
CREATE INDEX IF NOT EXISTS idx_bus_events_source ON bus_events(source);
CREATE INDEX IF NOT EXISTS idx_bus_events_timestamp ON bus_events(timestamp);
`

// Store is a SQLite-backed event journal.
type Store struct {
	db *sql.DB
}

// Open creates or opens a journal database at path. The parent
// directory is created if needed; WAL mode keeps writers from blocking
// readers.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes one event to the journal.
func (s *Store) Append(ctx context.Context, e events.Event) error {
	metadata, err := json.Marshal(e.Context.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bus_events (id, variant, source, priority, timestamp, metadata, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Context.EventID,
		string(e.Variant),
		e.Context.Source,
		e.Context.Priority.String(),
		e.Timestamp.UTC(),
		string(metadata),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("store event %s (variant=%s): %w", e.Context.EventID, e.Variant, err)
	}
	return nil
}

// Filter selects journal entries. Zero values mean "no constraint".
type Filter struct {
	// Variant restricts to one event kind.
	Variant events.Variant
	// Source restricts to one emitting component.
	Source string
	// Since restricts to events at or after this time.
	Since time.Time
	// Until restricts to events before this time.
	Until time.Time
	// Limit caps the number of rows returned; 0 means no cap.
	Limit int
}

// Query returns journaled events matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter Filter) ([]events.Event, error) {
	query := `SELECT id, variant, source, priority, timestamp, metadata, data
		FROM bus_events WHERE 1=1`
	var args []any

	if filter.Variant != "" {
		query += " AND variant = ?"
		args = append(args, string(filter.Variant))
	}
	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}
	if !filter.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		query += " AND timestamp < ?"
		args = append(args, filter.Until.UTC())
	}
	query += " ORDER BY timestamp DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			e                  events.Event
			variant, priority  string
			metadataJS, dataJS string
		)
		if err := rows.Scan(&e.Context.EventID, &variant, &e.Context.Source,
			&priority, &e.Timestamp, &metadataJS, &dataJS); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Variant = events.Variant(variant)
		if err := e.Context.Priority.UnmarshalJSON([]byte(`"` + priority + `"`)); err != nil {
			return nil, fmt.Errorf("decode priority %q: %w", priority, err)
		}
		if err := json.Unmarshal([]byte(metadataJS), &e.Context.Metadata); err != nil {
			return nil, fmt.Errorf("decode event metadata: %w", err)
		}
		if err := json.Unmarshal([]byte(dataJS), &e.Data); err != nil {
			return nil, fmt.Errorf("decode event data: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than maxAge and returns how many were
// removed.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UTC()
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM bus_events WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("journal cleanup: %w", err)
	}
	return result.RowsAffected()
}

// Attach subscribes the journal to a bus so every event is persisted.
// Returns the subscription id.
func (s *Store) Attach(bus *events.Bus) int {
	return bus.Subscribe(events.All{}, func(e events.Event) error {
		return s.Append(context.Background(), e)
	})
}
