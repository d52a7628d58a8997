package internal

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// newLogger builds the JSON logger on out and, when app.log_file is set,
// fans records out to a text handler on that file as well. The returned
// closer releases the file.
func newLogger(cfg ApplicationConfig, out io.Writer) (*slog.Logger, func() error, error) {
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	primary := slog.NewJSONHandler(out, opts)

	if cfg.LogFile == "" {
		return slog.New(primary), func() error { return nil }, nil
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slogmulti.Fanout(
		primary,
		slog.NewTextHandler(f, opts),
	))
	return logger, f.Close, nil
}
