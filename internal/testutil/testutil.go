// Package testutil provides shared test helpers for fake browser history
// files, quiet loggers and polling assertions.
package testutil

import (
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS urls (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	url             LONGVARCHAR,
	title           LONGVARCHAR,
	visit_count     INTEGER DEFAULT 0 NOT NULL,
	last_visit_time INTEGER NOT NULL
);
`

// HistoryFile creates an empty Chromium-shaped History database named
// "History" inside dir and returns its path.
func HistoryFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "History")
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Exec(historySchema); err != nil {
		t.Fatalf("create history schema: %v", err)
	}
	return path
}

// AddVisit appends a row to the History database at path. The connection
// is closed before returning so the file is consistent for snapshotting.
func AddVisit(t *testing.T, path, url string, at int64) {
	t.Helper()
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Exec(`INSERT INTO urls (url, title, visit_count, last_visit_time) VALUES (?, '', 1, ?)`, url, at); err != nil {
		t.Fatalf("add visit: %v", err)
	}
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
