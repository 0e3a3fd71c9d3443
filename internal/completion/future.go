package completion

import (
	"context"
	"sync"
)

// Result is what a finished run resolves its future with.
type Result struct {
	RunID    string
	Stdout   string
	ExitCode int

	// Stopped is set when the run was stopped before its process exited.
	Stopped bool
}

// Future is resolved at most once, when its run completes.
type Future struct {
	runID  string
	once   sync.Once
	done   chan struct{}
	result Result
}

// NewFuture creates an unresolved future for runID.
func NewFuture(runID string) *Future {
	return &Future{runID: runID, done: make(chan struct{})}
}

// RunID returns the run this future belongs to.
func (f *Future) RunID() string { return f.runID }

// Resolve sets the result and wakes waiters. Only the first call counts;
// it reports whether this call resolved the future.
func (f *Future) Resolve(r Result) bool {
	resolved := false
	f.once.Do(func() {
		f.result = r
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the future resolves or ctx ends.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Result returns the result and whether the future has resolved.
func (f *Future) Result() (Result, bool) {
	select {
	case <-f.done:
		return f.result, true
	default:
		return Result{}, false
	}
}

// FutureSet holds the pending future of every launched run, keyed by run
// id. Safe for concurrent use.
type FutureSet struct {
	mu      sync.Mutex
	futures map[string]*Future
}

// NewFutureSet creates an empty set.
func NewFutureSet() *FutureSet {
	return &FutureSet{futures: make(map[string]*Future)}
}

// Add creates and stores the future for runID. A second Add for the same
// id returns the existing future.
func (s *FutureSet) Add(runID string) *Future {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.futures[runID]; ok {
		return f
	}
	f := NewFuture(runID)
	s.futures[runID] = f
	return f
}

// Take removes and returns the future for runID.
func (s *FutureSet) Take(runID string) (*Future, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.futures[runID]
	if ok {
		delete(s.futures, runID)
	}
	return f, ok
}

// Discard drops a future that will never be resolved, e.g. after a launch
// failed between Add and the process starting.
func (s *FutureSet) Discard(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.futures, runID)
}

// Len returns the number of unresolved futures.
func (s *FutureSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.futures)
}
