package analyze

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/runctl/internal/errors"
)

// Store reads and writes the whole queue file. Use an Actor rather than a
// Store directly whenever more than one goroutine touches the queue.
type Store struct {
	fs   afero.Fs
	path string
	lock bool
}

// NewStore creates a Store for path on fs. On the OS filesystem every
// operation also holds a cross-process file lock.
func NewStore(fs afero.Fs, path string) *Store {
	_, onDisk := fs.(*afero.OsFs)
	return &Store{fs: fs, path: path, lock: onDisk}
}

// Path returns the queue file path.
func (s *Store) Path() string { return s.path }

func (s *Store) withLock(fn func() error) error {
	if !s.lock {
		return fn()
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create queue directory: %w", err)
	}
	fl := newFileLock(s.path)
	if err := fl.Lock(); err != nil {
		return errors.NewQueueError("acquire queue lock", err).WithQueuePath(s.path).WithRetryable(true)
	}
	defer func() { _ = fl.Unlock() }()
	return fn()
}

// Read returns the current queue. A missing file is an empty queue.
func (s *Store) Read() (QueueData, error) {
	var q QueueData
	err := s.withLock(func() error {
		var err error
		q, err = s.read()
		return err
	})
	if q.Jobs == nil {
		q.Jobs = []Job{}
	}
	return q, err
}

// Write replaces the queue file atomically.
func (s *Store) Write(q QueueData) error {
	return s.withLock(func() error { return s.write(q) })
}

// Update reads the queue, applies fn, and writes the result back while
// holding the lock for the whole cycle, so processes sharing the queue
// never interleave a read-modify-write. Nothing is written when fn
// returns an error or reports no change.
func (s *Store) Update(fn func(q *QueueData) (changed bool, err error)) (QueueData, error) {
	var q QueueData
	err := s.withLock(func() error {
		var err error
		if q, err = s.read(); err != nil {
			return err
		}
		changed, err := fn(&q)
		if err != nil || !changed {
			return err
		}
		return s.write(q)
	})
	if q.Jobs == nil {
		q.Jobs = []Job{}
	}
	return q, err
}

func (s *Store) read() (QueueData, error) {
	var q QueueData
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return q, nil
		}
		return q, errors.NewQueueError("read queue", err).WithQueuePath(s.path)
	}
	if len(data) == 0 {
		return q, nil
	}
	if err := json.Unmarshal(data, &q); err != nil {
		return q, errors.NewQueueError("decode queue", errors.Join(errors.ErrQueueCorrupted, err)).WithQueuePath(s.path)
	}
	for _, j := range q.Jobs {
		if !j.Status.IsValid() {
			return q, errors.NewQueueError(fmt.Sprintf("job %q has unknown status %q", j.ID, j.Status), errors.ErrQueueCorrupted).
				WithQueuePath(s.path).WithJobID(j.ID)
		}
	}
	return q, nil
}

func (s *Store) write(q QueueData) error {
	if q.Jobs == nil {
		q.Jobs = []Job{}
	}
	data, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal queue: %w", err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.NewQueueError("create queue directory", err).WithQueuePath(s.path)
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0644); err != nil {
		return errors.NewQueueError("write temp file", err).WithQueuePath(s.path)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return errors.NewQueueError("rename temp file", err).WithQueuePath(s.path)
	}
	return nil
}
