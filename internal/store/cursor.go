package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/shortwatch/internal/history"
)

// LoadWatermark returns the stored watermark for key. ok is false when none
// has been saved yet.
func (db *DB) LoadWatermark(ctx context.Context, key string) (history.Watermark, bool, error) {
	var v int64
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM cursors WHERE name = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: load watermark: %w", err)
	}
	return history.Watermark(v), true, nil
}

// SaveWatermark stores wm for key. A stored value is never lowered.
func (db *DB) SaveWatermark(ctx context.Context, key string, wm history.Watermark) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO cursors (name, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			value      = max(cursors.value, excluded.value),
			updated_at = excluded.updated_at
	`, key, int64(wm))
	if err != nil {
		return fmt.Errorf("store: save watermark: %w", err)
	}
	return nil
}
