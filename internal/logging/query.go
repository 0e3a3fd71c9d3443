package logging

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"
)

// Entry is one parsed debug.log record.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	RunID   string         `json:"run_id,omitempty"`
	JobID   string         `json:"job_id,omitempty"`
	Phase   string         `json:"phase,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Filter selects entries. Zero fields match everything; set fields are
// combined with AND.
type Filter struct {
	// Level keeps entries at or above this level.
	Level    string
	Since    time.Time
	Until    time.Time
	RunID    string
	JobID    string
	Phase    string
	Contains string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

var entryKeys = []string{"time", "level", "msg", "run_id", "job_id", "phase"}

// ReadEntries parses debug.log in stateDir and its rotated backups, oldest
// first. Lines that are not JSON records are skipped.
func ReadEntries(stateDir string) ([]Entry, error) {
	base := filepath.Join(stateDir, LogFileName)
	backups, _ := filepath.Glob(base + ".*")
	files := append(backups, base)

	var entries []Entry
	found := false
	for _, path := range files {
		got, err := readFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		found = true
		entries = append(entries, got...)
	}
	if !found {
		return nil, fmt.Errorf("no log file in %s: %w", stateDir, os.ErrNotExist)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.Before(entries[j].Time)
	})
	return entries, nil
}

func readFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	// Records embed run output, so lines can be long.
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if e, err := ParseEntry(line); err == nil {
			entries = append(entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return entries, nil
}

// ParseEntry parses one JSON log line.
func ParseEntry(line string) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	e := Entry{}
	if s, ok := raw["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			e.Time = t
		}
	}
	e.Level, _ = raw["level"].(string)
	e.Message, _ = raw["msg"].(string)
	e.RunID, _ = raw["run_id"].(string)
	e.JobID, _ = raw["job_id"].(string)
	e.Phase, _ = raw["phase"].(string)

	for k, v := range raw {
		if slices.Contains(entryKeys, k) {
			continue
		}
		if e.Attrs == nil {
			e.Attrs = make(map[string]any)
		}
		e.Attrs[k] = v
	}
	return e, nil
}

// Apply returns the entries matching f.
func (f Filter) Apply(entries []Entry) []Entry {
	if f == (Filter{}) {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Match reports whether e passes every set criterion.
func (f Filter) Match(e Entry) bool {
	if f.Level != "" {
		floor, okFloor := levelOrder[strings.ToUpper(f.Level)]
		got, okGot := levelOrder[e.Level]
		if okFloor && okGot && got < floor {
			return false
		}
	}
	switch {
	case !f.Since.IsZero() && e.Time.Before(f.Since):
		return false
	case !f.Until.IsZero() && e.Time.After(f.Until):
		return false
	case f.RunID != "" && e.RunID != f.RunID:
		return false
	case f.JobID != "" && e.JobID != f.JobID:
		return false
	case f.Phase != "" && e.Phase != f.Phase:
		return false
	case f.Contains != "" && !strings.Contains(e.Message, f.Contains):
		return false
	}
	return true
}

// Export writes entries to w as "text", "json", or "csv".
func Export(w io.Writer, entries []Entry, format string) error {
	switch format {
	case "", "text":
		return exportText(w, entries)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "csv":
		return exportCSV(w, entries)
	}
	return fmt.Errorf("unsupported log format %q (use text, json, or csv)", format)
}

// FormatText renders one entry as
// "[2006-01-02 15:04:05.000] LEVEL message (run=..., job=...) {attrs}".
func FormatText(e Entry) string {
	parts := []string{"[" + e.Time.Local().Format("2006-01-02 15:04:05.000") + "]", e.Level, e.Message}

	var ctx []string
	if e.Phase != "" {
		ctx = append(ctx, "phase="+e.Phase)
	}
	if e.RunID != "" {
		ctx = append(ctx, "run="+e.RunID)
	}
	if e.JobID != "" {
		ctx = append(ctx, "job="+e.JobID)
	}
	if len(ctx) > 0 {
		parts = append(parts, "("+strings.Join(ctx, ", ")+")")
	}
	if len(e.Attrs) > 0 {
		attrs, _ := json.Marshal(e.Attrs)
		parts = append(parts, string(attrs))
	}
	return strings.Join(parts, " ")
}

func exportText(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, FormatText(e)); err != nil {
			return err
		}
	}
	return nil
}

func exportCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "level", "message", "run_id", "job_id", "phase", "attrs"}); err != nil {
		return err
	}
	for _, e := range entries {
		var attrs string
		if len(e.Attrs) > 0 {
			b, _ := json.Marshal(e.Attrs)
			attrs = string(b)
		}
		if err := cw.Write([]string{
			e.Time.Format(time.RFC3339Nano), e.Level, e.Message, e.RunID, e.JobID, e.Phase, attrs,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
