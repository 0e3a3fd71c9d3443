//go:build unix

package analyze

import (
	"fmt"
	"os"
	"syscall"
)

// fileLock serializes queue file access across runctl processes with
// flock(2). The lock lives in a sibling file so the queue itself can be
// replaced by rename while the lock is held.
type fileLock struct {
	path string
	file *os.File
}

func newFileLock(queuePath string) *fileLock {
	return &fileLock{path: queuePath + ".lock"}
}

// Lock blocks until the exclusive lock is held.
func (fl *fileLock) Lock() error {
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return fmt.Errorf("flock: %w", err)
	}
	fl.file = f
	return nil
}

// Unlock releases the lock. It is a no-op when the lock is not held.
func (fl *fileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}
	f := fl.file
	fl.file = nil
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		_ = f.Close()
		return fmt.Errorf("funlock: %w", err)
	}
	return f.Close()
}
