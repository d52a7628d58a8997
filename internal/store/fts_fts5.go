//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS detections_fts USING fts5(
			id UNINDEXED,
			title,
			analysis,
			transcript,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(tx *sql.Tx, id, title, analysis, transcript string) error {
	_, err := tx.Exec(`INSERT INTO detections_fts (id, title, analysis, transcript) VALUES (?, ?, ?, ?)`,
		id, title, analysis, transcript)
	if err != nil {
		return fmt.Errorf("store: insert fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 full-text search and returns matching results with snippets.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT f.id,
		       d.video_id,
		       d.title,
		       snippet(detections_fts, -1, '<b>', '</b>', '...', 32)
		FROM detections_fts f
		JOIN detections d ON d.id = f.id
		WHERE detections_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.VideoID, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
