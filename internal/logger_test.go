package internal

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_StdoutOnly(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := newLogger(ApplicationConfig{LogLevel: slog.LevelInfo}, &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	defer closeFn()

	logger.Debug("hidden")
	logger.Info("shown", slog.String("k", "v"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug record should be filtered at info level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestNewLogger_FanOutToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "app.log")
	logger, closeFn, err := newLogger(ApplicationConfig{LogLevel: slog.LevelDebug, LogFile: path}, &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}

	logger.Debug("both sinks")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "msg=\"both sinks\"") {
		t.Errorf("log file missing record: %s", data)
	}
	if !strings.Contains(buf.String(), "both sinks") {
		t.Errorf("stdout missing record: %s", buf.String())
	}
}

func TestNewLogger_BadFile(t *testing.T) {
	_, _, err := newLogger(ApplicationConfig{LogFile: filepath.Join(t.TempDir(), "missing", "app.log")}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for unwritable log file")
	}
}
