//go:build unix

package proc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Iron-Ham/runctl/internal/errors"
	"github.com/Iron-Ham/runctl/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// collect drains a feed, failing the test if it does not finish in time.
func collect(t *testing.T, p *Process, timeout time.Duration) (lines []string, exit Event) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-p.Events():
			if !ok {
				return lines, exit
			}
			switch ev.Kind {
			case EventLog:
				lines = append(lines, ev.Line)
			case EventExited:
				exit = ev
			}
		case <-deadline:
			t.Fatalf("feed did not close within %v", timeout)
		}
	}
}

func bashSpec(dir, script string) Spec {
	return Spec{Dir: dir, Path: "bash", Args: []string{"-c", script}}
}

func TestExecSpawner_StreamsStdoutAndStderr(t *testing.T) {
	testutil.RequireShell(t)
	s := NewExecSpawner(nil)

	p, err := s.Start(bashSpec(t.TempDir(), `for i in 1 2 3 4 5; do echo "out $i"; done; echo "oops" >&2; exit 3`))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.PID <= 0 {
		t.Errorf("PID = %d", p.PID)
	}

	lines, exit := collect(t, p, 10*time.Second)

	var stdout []string
	sawStderr := false
	for _, l := range lines {
		if l == StderrPrefix+"oops" {
			sawStderr = true
			continue
		}
		stdout = append(stdout, l)
	}
	if got := strings.Join(stdout, ","); got != "out 1,out 2,out 3,out 4,out 5" {
		t.Errorf("stdout lines = %q", got)
	}
	if !sawStderr {
		t.Errorf("missing prefixed stderr line in %v", lines)
	}
	if exit.Kind != EventExited || exit.ExitCode != 3 {
		t.Errorf("exit = %+v, want exited with 3", exit)
	}
}

func TestExecSpawner_EnvAndDir(t *testing.T) {
	testutil.RequireShell(t)
	dir := t.TempDir()
	s := NewExecSpawner(nil)

	spec := bashSpec(dir, `pwd; echo "$RUNCTL_TEST_VALUE"`)
	spec.Env = []string{"RUNCTL_TEST_VALUE=hello"}
	p, err := s.Start(spec)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	lines, exit := collect(t, p, 10*time.Second)

	resolved, _ := filepath.EvalSymlinks(dir)
	if len(lines) != 2 || (lines[0] != dir && lines[0] != resolved) || lines[1] != "hello" {
		t.Errorf("lines = %v", lines)
	}
	if exit.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", exit.ExitCode)
	}
}

func TestExecSpawner_LongLine(t *testing.T) {
	testutil.RequireShell(t)
	s := NewExecSpawner(nil)

	p, err := s.Start(bashSpec(t.TempDir(), `head -c 200000 /dev/zero | tr '\0' 'x'; echo; echo tail`))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	lines, _ := collect(t, p, 10*time.Second)
	if len(lines) != 2 || len(lines[0]) != 200000 || lines[1] != "tail" {
		t.Errorf("got %d lines, first len %d", len(lines), len(lines[0]))
	}
}

func TestExecSpawner_OverlongLineKeepsReading(t *testing.T) {
	testutil.RequireShell(t)
	s := NewExecSpawner(nil)

	p, err := s.Start(bashSpec(t.TempDir(),
		`echo before; head -c 1200000 /dev/zero | tr '\0' 'x'; echo; echo after1; echo after2 >&2`))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	lines, exit := collect(t, p, 10*time.Second)

	var short []string
	long := 0
	for _, l := range lines {
		if len(l) > 100 {
			long = len(l)
			continue
		}
		short = append(short, l)
	}
	if long != maxLineBytes {
		t.Errorf("long line length = %d, want it cut to %d", long, maxLineBytes)
	}
	if got := strings.Join(short, ","); got != "before,after1,"+StderrPrefix+"after2" {
		t.Errorf("short lines = %q", got)
	}
	if exit.ExitCode != 0 {
		t.Errorf("ExitCode = %d", exit.ExitCode)
	}
}

func TestExecSpawner_BackgroundChildDoesNotHoldExit(t *testing.T) {
	testutil.RequireShell(t)
	s := NewExecSpawner(nil)
	s.drainTimeout = 100 * time.Millisecond

	// sleep inherits stdout and outlives the shell.
	p, err := s.Start(bashSpec(t.TempDir(), `sleep 5 & echo started`))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = s.Kill(p.PID) }()

	start := time.Now()
	lines, exit := collect(t, p, 3*time.Second)
	if len(lines) != 1 || lines[0] != "started" {
		t.Errorf("lines = %v", lines)
	}
	if exit.Kind != EventExited || exit.ExitCode != 0 {
		t.Errorf("exit = %+v, want exited with 0", exit)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("exited after %v, want it soon after the shell exited", elapsed)
	}
}

func TestExecSpawner_InvalidDir(t *testing.T) {
	s := NewExecSpawner(nil)

	_, err := s.Start(bashSpec(filepath.Join(t.TempDir(), "missing"), "true"))
	if !errors.Is(err, errors.ErrInvalidProjectRoot) {
		t.Errorf("err = %v, want ErrInvalidProjectRoot", err)
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Start(bashSpec(file, "true")); !errors.Is(err, errors.ErrInvalidProjectRoot) {
		t.Errorf("file as dir: err = %v, want ErrInvalidProjectRoot", err)
	}
}

func TestExecSpawner_MissingExecutable(t *testing.T) {
	s := NewExecSpawner(nil)
	_, err := s.Start(Spec{Dir: t.TempDir(), Path: "/nonexistent/runctl-binary"})
	if !errors.Is(err, errors.ErrSpawnFailed) {
		t.Errorf("err = %v, want ErrSpawnFailed", err)
	}
}

func TestExecSpawner_KillGroup(t *testing.T) {
	testutil.RequireShell(t)
	s := NewExecSpawner(nil)

	// The child sleep shares the group and must die with the shell.
	p, err := s.Start(bashSpec(t.TempDir(), `echo started; sleep 60 & wait`))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	first := <-p.Events()
	if first.Line != "started" {
		t.Fatalf("first event = %+v", first)
	}
	if err := s.Kill(p.PID); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	_, exit := collect(t, p, 10*time.Second)
	if exit.Kind != EventExited || exit.ExitCode != -1 {
		t.Errorf("exit = %+v, want exited with -1", exit)
	}
}

func TestExecSpawner_KillInvalidPID(t *testing.T) {
	s := NewExecSpawner(nil)
	if err := s.Kill(0); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Kill(0) err = %v, want ErrInvalidInput", err)
	}
}

func TestExecSpawner_Detach(t *testing.T) {
	testutil.RequireShell(t)
	dir := t.TempDir()
	marker := filepath.Join(dir, "opened")
	s := NewExecSpawner(nil)

	spec := bashSpec(dir, `touch "$MARKER"`)
	spec.Env = []string{"MARKER=" + marker}
	if err := s.Detach(spec); err != nil {
		t.Fatalf("Detach: %v", err)
	}

	testutil.Eventually(t, 10*time.Second, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, "detached process should run")
}

func TestExecSpawner_PTY(t *testing.T) {
	testutil.RequireShell(t)
	s := NewExecSpawner(nil)

	spec := bashSpec(t.TempDir(), `echo "on a tty"; echo "err too" >&2`)
	spec.UsePTY = true
	p, err := s.Start(spec)
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}

	lines, exit := collect(t, p, 10*time.Second)
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "on a tty") || !strings.Contains(joined, "err too") {
		t.Errorf("pty lines = %q", joined)
	}
	if strings.Contains(joined, "\r") || strings.Contains(joined, StderrPrefix) {
		t.Errorf("pty lines should be trimmed and unprefixed: %q", joined)
	}
	if exit.ExitCode != 0 {
		t.Errorf("ExitCode = %d", exit.ExitCode)
	}
}

func TestEventKind_String(t *testing.T) {
	if EventLog.String() != "log" || EventExited.String() != "exited" || EventKind(9).String() != "unknown" {
		t.Error("unexpected EventKind names")
	}
}
