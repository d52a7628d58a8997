// Package history reads newly visited Shorts URLs from a browser's SQLite
// history file. The live file is usually locked by the browser, so every
// query runs against a private snapshot copy.
package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrCopyFailed means the snapshot could not be taken; skip the cycle.
	ErrCopyFailed = errors.New("snapshot copy failed")
	// ErrQueryFailed means the snapshot could not be queried; skip the cycle.
	ErrQueryFailed = errors.New("snapshot query failed")
)

// Query modes.
const (
	// ModeAll returns the oldest MaxRows matches above the watermark plus
	// any rows tied with the last one, oldest first.
	ModeAll = "all"
	// ModeLatest returns only the single newest match above the watermark.
	ModeLatest = "latest"
)

// Record is one matching row of the history table.
type Record struct {
	URL       string
	VisitedAt int64
}

// Options configures a Reader. Zero values fall back to Chromium defaults.
type Options struct {
	Source     string
	ScratchDir string
	Table      string
	URLColumn  string
	TimeColumn string
	Pattern    string
	Mode       string
	MaxRows    int
}

func (o *Options) defaults() {
	if o.ScratchDir == "" {
		o.ScratchDir = os.TempDir()
	}
	if o.Table == "" {
		o.Table = "urls"
	}
	if o.URLColumn == "" {
		o.URLColumn = "url"
	}
	if o.TimeColumn == "" {
		o.TimeColumn = "last_visit_time"
	}
	if o.Pattern == "" {
		o.Pattern = "%youtube.com/shorts/%"
	}
	if o.Mode == "" {
		o.Mode = ModeAll
	}
	if o.MaxRows <= 0 {
		o.MaxRows = 50
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Reader snapshots the history file and queries the copy.
type Reader struct {
	opts    Options
	scratch string
	query   string

	// mu serializes use of the scratch path.
	mu sync.Mutex
}

// NewReader validates opts and builds a Reader.
func NewReader(opts Options) (*Reader, error) {
	opts.defaults()
	if opts.Source == "" {
		return nil, fmt.Errorf("history: source path is required")
	}
	for _, id := range []string{opts.Table, opts.URLColumn, opts.TimeColumn} {
		if !identRe.MatchString(id) {
			return nil, fmt.Errorf("history: invalid identifier %q", id)
		}
	}

	// Parameters: ?1 pattern, ?2 watermark, ?3 row count or offset.
	var q string
	switch opts.Mode {
	case ModeAll:
		// The batch ends at the MaxRows-th row but also takes every row
		// sharing its timestamp, so advancing to the batch maximum never
		// skips a tied row.
		q = fmt.Sprintf(`SELECT %[2]s, %[3]s FROM %[1]s
			WHERE %[2]s LIKE ?1 AND %[3]s > ?2
			AND %[3]s <= IFNULL((
				SELECT %[3]s FROM %[1]s
				WHERE %[2]s LIKE ?1 AND %[3]s > ?2
				ORDER BY %[3]s ASC
				LIMIT 1 OFFSET ?3
			), 9223372036854775807)
			ORDER BY %[3]s ASC`, opts.Table, opts.URLColumn, opts.TimeColumn)
	case ModeLatest:
		q = fmt.Sprintf(`SELECT %[2]s, %[3]s FROM %[1]s
			WHERE %[2]s LIKE ?1 AND %[3]s > ?2
			ORDER BY %[3]s DESC
			LIMIT ?3`, opts.Table, opts.URLColumn, opts.TimeColumn)
	default:
		return nil, fmt.Errorf("history: unknown mode %q", opts.Mode)
	}

	abs, err := filepath.Abs(opts.Source)
	if err != nil {
		return nil, fmt.Errorf("history: resolve source: %w", err)
	}
	opts.Source = abs

	return &Reader{
		opts:    opts,
		scratch: ScratchPath(opts.ScratchDir, abs),
		query:   q,
	}, nil
}

// BatchLimit is the row count at which a batch may have left rows behind;
// 0 in latest mode, which only ever reports the newest visit.
func (r *Reader) BatchLimit() int {
	if r.opts.Mode == ModeLatest {
		return 0
	}
	return r.opts.MaxRows
}

// Source returns the absolute path of the live history file.
func (r *Reader) Source() string { return r.opts.Source }

// Scratch returns the snapshot path this reader overwrites on every call.
func (r *Reader) Scratch() string { return r.scratch }

// ScratchPath derives a deterministic snapshot path for source inside dir.
func ScratchPath(dir, source string) string {
	h := sha256.Sum256([]byte(source))
	return filepath.Join(dir, "shortwatch-snapshot-"+hex.EncodeToString(h[:6])+".db")
}

// ReadNew copies the live file and returns matching records newer than wm.
// It does not change wm; advancing the watermark is the caller's job.
func (r *Reader) ReadNew(ctx context.Context, wm Watermark) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.snapshot(); err != nil {
		return nil, fmt.Errorf("history: %w: %w", ErrCopyFailed, err)
	}
	recs, err := r.queryCopy(ctx, wm)
	if err != nil {
		return nil, fmt.Errorf("history: %w: %w", ErrQueryFailed, err)
	}
	return recs, nil
}

// snapshot copies the source to the scratch path: tmp file → fsync → rename,
// so a half-written copy is never queried.
func (r *Reader) snapshot() error {
	src, err := os.Open(r.opts.Source)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(r.opts.ScratchDir, 0o755); err != nil {
		return fmt.Errorf("mkdir scratch: %w", err)
	}
	tmp, err := os.CreateTemp(r.opts.ScratchDir, ".shortwatch-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, src); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	// A stale journal next to the scratch copy would be replayed on open.
	for _, suffix := range []string{"-journal", "-wal", "-shm"} {
		_ = os.Remove(r.scratch + suffix)
	}
	if err := os.Rename(tmpName, r.scratch); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	success = true
	return nil
}

func (r *Reader) queryCopy(ctx context.Context, wm Watermark) ([]Record, error) {
	conn, err := sql.Open("sqlite3", "file:"+r.scratch+"?mode=ro&immutable=1")
	if err != nil {
		return nil, fmt.Errorf("open copy: %w", err)
	}
	defer conn.Close()

	arg := r.opts.MaxRows - 1
	if r.opts.Mode == ModeLatest {
		arg = 1
	}
	rows, err := conn.QueryContext(ctx, r.query, r.opts.Pattern, int64(wm), arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.URL, &rec.VisitedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
