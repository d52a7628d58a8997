package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/shortwatch/internal/apperr"
	"github.com/starford/shortwatch/internal/enrich"
	"github.com/starford/shortwatch/internal/events"
)

// ListQuery filters and pages ListDetections. Zero values mean no filter.
type ListQuery struct {
	Limit   int
	Offset  int
	Origin  events.Origin
	VideoID string
}

// SearchResult is one search hit.
type SearchResult struct {
	ID      string `json:"id"`
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Publish records d. It lets the store sit behind events.Multi.
func (db *DB) Publish(ctx context.Context, d events.Detection) error {
	var enrichment []byte
	var transcript string
	if d.Enrichment != nil {
		var err error
		if enrichment, err = json.Marshal(d.Enrichment); err != nil {
			return fmt.Errorf("store: marshal enrichment: %w", err)
		}
		transcript = joinCaptions(d.Enrichment.Captions)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		INSERT INTO detections
			(id, url, video_id, title, analysis, transcript, origin, visited_at, detected_at, degraded, enrichment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, d.ID, d.URL, d.VideoID, d.Title, d.Analysis, transcript, string(d.Origin),
		d.VisitedAt, d.DetectedAt.UTC(), d.Degraded, string(enrichment))
	if err != nil {
		return fmt.Errorf("store: insert detection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	if err := ftsInsert(tx, d.ID, d.Title, d.Analysis, transcript); err != nil {
		return err
	}
	return tx.Commit()
}

func joinCaptions(caps []enrich.Caption) string {
	parts := make([]string, 0, len(caps))
	for _, c := range caps {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, " ")
}

const detectionColumns = `id, url, video_id, title, analysis, origin, visited_at, detected_at, degraded, enrichment`

// GetDetection returns one detection or apperr.ErrNotFound.
func (db *DB) GetDetection(ctx context.Context, id string) (*events.Detection, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+detectionColumns+` FROM detections WHERE id = ?`, id)
	d, err := scanDetection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get detection: %w", err)
	}
	return d, nil
}

// ListDetections returns detections newest first plus the total matching
// count.
func (db *DB) ListDetections(ctx context.Context, q ListQuery) ([]events.Detection, int, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	var where []string
	var args []any
	if q.Origin != "" {
		where = append(where, "origin = ?")
		args = append(args, string(q.Origin))
	}
	if q.VideoID != "" {
		where = append(where, "video_id = ?")
		args = append(args, q.VideoID)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM detections`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count detections: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+detectionColumns+` FROM detections`+cond+` ORDER BY detected_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list detections: %w", err)
	}
	defer rows.Close()

	out := []events.Detection{}
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("store: scan detection: %w", err)
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDetection(s scanner) (*events.Detection, error) {
	var (
		d          events.Detection
		origin     string
		detectedAt time.Time
		enrichment string
	)
	if err := s.Scan(&d.ID, &d.URL, &d.VideoID, &d.Title, &d.Analysis, &origin,
		&d.VisitedAt, &detectedAt, &d.Degraded, &enrichment); err != nil {
		return nil, err
	}
	d.Origin = events.Origin(origin)
	d.DetectedAt = detectedAt.UTC()
	if enrichment != "" {
		var res enrich.Result
		if err := json.Unmarshal([]byte(enrichment), &res); err != nil {
			return nil, fmt.Errorf("decode enrichment: %w", err)
		}
		d.Enrichment = &res
	}
	return &d, nil
}
