package run

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/runctl/internal/errors"
)

func TestRegistry_Create(t *testing.T) {
	reg := NewRegistry()

	r, err := reg.Create("run-1", "Terminal 1", &Meta{Slot: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.Status != StatusRunning {
		t.Errorf("Status = %s, want running", r.Status)
	}
	if len(r.LogLines) != 0 || r.DoneAt != nil {
		t.Errorf("new run should have empty log and no DoneAt: %+v", r)
	}
	if r.StartedAt.IsZero() {
		t.Error("StartedAt should be set")
	}

	t.Run("duplicate id", func(t *testing.T) {
		_, err := reg.Create("run-1", "again", nil)
		if !errors.Is(err, errors.ErrRunAlreadyExists) {
			t.Errorf("err = %v, want ErrRunAlreadyExists", err)
		}
		if reg.Len() != 1 {
			t.Errorf("Len() = %d, want 1", reg.Len())
		}
	})

	t.Run("empty id", func(t *testing.T) {
		if _, err := reg.Create("", "x", nil); !errors.Is(err, errors.ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})
}

func TestRegistry_MetaIsCopied(t *testing.T) {
	reg := NewRegistry()
	meta := &Meta{OnComplete: "analyze-doc", Payload: map[string]any{PayloadProjectID: "p1"}}
	if _, err := reg.Create("run-1", "x", meta); err != nil {
		t.Fatal(err)
	}
	meta.Payload[PayloadProjectID] = "mutated"

	r, _ := reg.Select("run-1")
	if r.Meta.Payload[PayloadProjectID] != "p1" {
		t.Error("registry should not share the caller's payload map")
	}
	r.Meta.Payload[PayloadProjectID] = "snapshot-mutated"
	again, _ := reg.Select("run-1")
	if again.Meta.Payload[PayloadProjectID] != "p1" {
		t.Error("snapshots should not share the registry's payload map")
	}
}

func TestRegistry_AppendLine(t *testing.T) {
	reg := NewRegistry()
	_, _ = reg.Create("a", "A", nil)
	_, _ = reg.Create("b", "B", nil)

	for i := 0; i < 3; i++ {
		reg.AppendLine("a", fmt.Sprintf("a%d", i))
	}
	reg.AppendLine("b", "b0")

	a, _ := reg.Select("a")
	if got := strings.Join(a.LogLines, ","); got != "a0,a1,a2" {
		t.Errorf("a log = %q", got)
	}
	b, _ := reg.Select("b")
	if got := strings.Join(b.LogLines, ","); got != "b0" {
		t.Errorf("b log = %q", got)
	}

	if reg.AppendLine("missing", "x") {
		t.Error("AppendLine on unknown id should report false")
	}
}

func TestRegistry_MarkDone(t *testing.T) {
	reg := NewRegistry()
	_, _ = reg.Create("run-1", "x", nil)
	reg.AppendLine("run-1", "before")

	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if !reg.MarkDone("run-1", first) {
		t.Fatal("first MarkDone should transition")
	}
	if reg.MarkDone("run-1", first.Add(time.Hour)) {
		t.Error("second MarkDone should report false")
	}

	r, _ := reg.Select("run-1")
	if r.Status != StatusDone || !r.IsDone() {
		t.Errorf("Status = %s, want done", r.Status)
	}
	if r.DoneAt == nil || !r.DoneAt.Equal(first) {
		t.Errorf("DoneAt = %v, want %v", r.DoneAt, first)
	}

	if reg.AppendLine("run-1", "after") {
		t.Error("AppendLine on a done run should be ignored")
	}
	r, _ = reg.Select("run-1")
	if len(r.LogLines) != 1 {
		t.Errorf("done run log changed: %v", r.LogLines)
	}

	if reg.MarkDone("missing", first) {
		t.Error("MarkDone on unknown id should report false")
	}
}

func TestRegistry_ExitCodeAndURL(t *testing.T) {
	reg := NewRegistry()
	_, _ = reg.Create("run-1", "x", nil)

	reg.SetExitCode("run-1", 2)
	reg.SetLocalURL("run-1", "http://localhost:3000")
	if reg.SetLocalURL("run-1", "http://localhost:4000") {
		t.Error("second URL should be ignored")
	}

	r, _ := reg.Select("run-1")
	if r.ExitCode == nil || *r.ExitCode != 2 {
		t.Errorf("ExitCode = %v, want 2", r.ExitCode)
	}
	if r.Status != StatusRunning {
		t.Error("exit code alone must not change status")
	}
	if r.LocalURL != "http://localhost:3000" {
		t.Errorf("LocalURL = %q", r.LocalURL)
	}
}

func TestRegistry_SelectLatestAndList(t *testing.T) {
	reg := NewRegistry()
	if _, ok := reg.Select(Latest); ok {
		t.Error("Select(latest) on empty registry should fail")
	}

	for _, id := range []string{"r1", "r2", "r3"} {
		_, _ = reg.Create(id, id, nil)
	}
	latest, ok := reg.Select(Latest)
	if !ok || latest.ID != "r3" {
		t.Errorf("Select(latest) = %q, want r3", latest.ID)
	}

	reg.MarkDone("r2", time.Now())
	list := reg.List()
	if len(list) != 3 || list[0].ID != "r1" || list[2].ID != "r3" {
		t.Errorf("List() order wrong: %v", list)
	}
	running := reg.Running()
	if len(running) != 2 || running[0] != "r1" || running[1] != "r3" {
		t.Errorf("Running() = %v", running)
	}
}

func TestRegistry_ConcurrentRunsDoNotInterfere(t *testing.T) {
	reg := NewRegistry()
	const runs, lines = 8, 200

	for i := 0; i < runs; i++ {
		_, _ = reg.Create(fmt.Sprintf("run-%d", i), "x", nil)
	}

	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("run-%d", i)
			for j := 0; j < lines; j++ {
				reg.AppendLine(id, fmt.Sprintf("%s:%d", id, j))
			}
		}(i)
	}
	// Readers run alongside writers.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			_ = reg.List()
			_, _ = reg.Select(Latest)
		}
	}()
	wg.Wait()

	for i := 0; i < runs; i++ {
		id := fmt.Sprintf("run-%d", i)
		r, _ := reg.Select(id)
		if len(r.LogLines) != lines {
			t.Fatalf("%s has %d lines, want %d", id, len(r.LogLines), lines)
		}
		for j, line := range r.LogLines {
			if want := fmt.Sprintf("%s:%d", id, j); line != want {
				t.Fatalf("%s line %d = %q, want %q", id, j, line, want)
			}
		}
	}
}

func TestRun_Stdout(t *testing.T) {
	r := Run{LogLines: []string{"one", "[stderr] two", "three"}}
	if got := r.Stdout(); got != "one\n[stderr] two\nthree" {
		t.Errorf("Stdout() = %q", got)
	}
}

func TestDetectLocalURL(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"  ➜  Local:   http://localhost:5173/", "http://localhost:5173/"},
		{"ready on https://127.0.0.1:8443/app?x=1 now", "https://127.0.0.1:8443/app?x=1"},
		{"Listening on HTTP://LOCALHOST", "HTTP://LOCALHOST"},
		{"see https://example.com", ""},
		{"no url here", ""},
	}
	for _, tt := range tests {
		got, ok := DetectLocalURL(tt.line)
		if got != tt.want || ok != (tt.want != "") {
			t.Errorf("DetectLocalURL(%q) = %q, %v; want %q", tt.line, got, ok, tt.want)
		}
	}
}

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if !strings.HasPrefix(id, "run-") {
			t.Fatalf("NewID() = %q, want run- prefix", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
