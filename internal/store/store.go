// Package store persists the watermark and a log of published detections in
// a local SQLite database, with optional FTS5 search over titles, analyses
// and transcripts.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/shortwatch/internal/events"
	"github.com/starford/shortwatch/internal/history"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS cursors (
	name       TEXT PRIMARY KEY,
	value      INTEGER NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS detections (
	id          TEXT PRIMARY KEY,
	url         TEXT NOT NULL,
	video_id    TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	analysis    TEXT NOT NULL DEFAULT '',
	transcript  TEXT NOT NULL DEFAULT '',
	origin      TEXT NOT NULL,
	visited_at  INTEGER NOT NULL DEFAULT 0,
	detected_at DATETIME NOT NULL,
	degraded    INTEGER NOT NULL DEFAULT 0,
	enrichment  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_detections_detected_at ON detections(detected_at);
CREATE INDEX IF NOT EXISTS idx_detections_video_id ON detections(video_id);
`

// Store is the persistence surface the rest of the app depends on.
type Store interface {
	LoadWatermark(ctx context.Context, key string) (history.Watermark, bool, error)
	SaveWatermark(ctx context.Context, key string, wm history.Watermark) error
	Publish(ctx context.Context, d events.Detection) error
	GetDetection(ctx context.Context, id string) (*events.Detection, error)
	ListDetections(ctx context.Context, q ListQuery) ([]events.Detection, int, error)
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// DB wraps a sql.DB with store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
