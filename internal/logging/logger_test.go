package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestNewLogger(t *testing.T) {
	t.Run("creates debug.log in state dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "state")

		logger, err := NewLogger(dir, LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger: %v", err)
		}
		defer logger.Close()

		if _, err := os.Stat(filepath.Join(dir, LogFileName)); err != nil {
			t.Errorf("log file not created: %v", err)
		}
	})

	t.Run("stderr logger closes cleanly", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger: %v", err)
		}
		if logger.out != nil {
			t.Error("stderr logger should not own a file")
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelWarn)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)
	logger.Error("shown too")

	recs := decodeLines(t, buf.Bytes())
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0]["level"] != "WARN" || recs[1]["level"] != "ERROR" {
		t.Errorf("unexpected levels: %v, %v", recs[0]["level"], recs[1]["level"])
	}
}

func TestChildLoggers(t *testing.T) {
	var buf bytes.Buffer
	root := NewWriterLogger(&buf, LevelDebug)

	child := root.WithPhase("dispatcher").WithRun("run-1").WithSlot(2).WithJob("design").With("extra", "x", 7, "ignored")
	child.Info("dispatched")
	root.Info("root only")

	recs := decodeLines(t, buf.Bytes())
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}

	got := recs[0]
	checks := map[string]any{
		"phase":  "dispatcher",
		"run_id": "run-1",
		"slot":   float64(2),
		"job_id": "design",
		"extra":  "x",
	}
	for k, want := range checks {
		if got[k] != want {
			t.Errorf("%s = %v, want %v", k, got[k], want)
		}
	}
	if _, ok := recs[1]["run_id"]; ok {
		t.Error("child attributes leaked into the parent logger")
	}
}

func TestWithNoArgsReturnsSameLogger(t *testing.T) {
	l := NopLogger()
	if l.With() != l {
		t.Error("With() without args should return the receiver")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   LevelDebug,
		"WARN":    LevelWarn,
		"Error":   LevelError,
		"info":    LevelInfo,
		"verbose": LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}
	if len(ValidLevels()) != 4 {
		t.Errorf("ValidLevels() = %v", ValidLevels())
	}
}

func TestLoggerWritesToFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.WithRun("run-7").Info("run started", "label", "Terminal 1")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	recs := decodeLines(t, data)
	if len(recs) != 1 || recs[0]["run_id"] != "run-7" || recs[0]["label"] != "Terminal 1" {
		t.Errorf("unexpected records: %v", recs)
	}
}
