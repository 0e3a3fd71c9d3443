// Package testutil provides testing utilities for runctl tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

// RequireShell skips the test when bash is not installed.
func RequireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

// WriteScript writes an executable bash script into dir and returns its
// path. body is everything after the shebang line.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/usr/bin/env bash\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("failed to write script %s: %v", name, err)
	}
	return path
}

// FakeAgent writes a stand-in for the agent CLI. The script receives the
// same arguments the real CLI would ("--trust", "-p", prompt); body can
// read them as "$@".
func FakeAgent(t *testing.T, body string) string {
	t.Helper()
	return WriteScript(t, t.TempDir(), "agent", body)
}

// EchoPromptAgent writes a fake agent that prints its prompt argument and
// exits 0.
func EchoPromptAgent(t *testing.T) string {
	t.Helper()
	return FakeAgent(t, `while [ $# -gt 0 ]; do
  if [ "$1" = "-p" ]; then shift; printf '%s\n' "$1"; fi
  shift
done`)
}

// SetupProject creates a project directory with the given relative files.
func SetupProject(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", rel, err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write file %s: %v", rel, err)
		}
	}
	return dir
}

// Eventually polls cond every 10ms until it returns true or timeout
// elapses, then fails the test with msg.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %v: %s", timeout, msg)
	}
}
