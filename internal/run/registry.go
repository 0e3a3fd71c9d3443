// Package run tracks every run started in this process: its label, status,
// streamed log, and launch metadata.
package run

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/runctl/internal/errors"
)

// Latest selects the most recently created run in Select.
const Latest = "latest"

// NewID returns a fresh run id.
func NewID() string {
	return "run-" + uuid.NewString()
}

// entry guards one run. Writers for different runs never share a lock.
type entry struct {
	mu  sync.Mutex
	run Run
}

// Registry is the in-memory table of runs for this process. Runs are never
// removed. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	now     func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Create inserts a running run with an empty log.
func (r *Registry) Create(id, label string, meta *Meta) (Run, error) {
	if id == "" {
		return Run{}, errors.NewValidationError("run id must not be empty").WithField("id")
	}

	e := &entry{run: Run{
		ID:        id,
		Label:     label,
		Status:    StatusRunning,
		LogLines:  []string{},
		StartedAt: r.now(),
		Meta:      meta.Clone(),
	}}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return Run{}, errors.NewRunError("create", errors.ErrRunAlreadyExists).WithRunID(id)
	}
	r.entries[id] = e
	r.order = append(r.order, id)
	return e.run.clone(), nil
}

func (r *Registry) lookup(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}

// AppendLine adds line to the end of the run's log. It returns false, and
// changes nothing, when the id is unknown or the run is already done.
func (r *Registry) AppendLine(id, line string) bool {
	e := r.lookup(id)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run.Status == StatusDone {
		return false
	}
	e.run.LogLines = append(e.run.LogLines, line)
	return true
}

// MarkDone moves the run to done at the given time. Only the first call has
// an effect; it returns false for later calls and unknown ids.
func (r *Registry) MarkDone(id string, at time.Time) bool {
	e := r.lookup(id)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run.Status == StatusDone {
		return false
	}
	e.run.Status = StatusDone
	e.run.DoneAt = &at
	return true
}

// SetExitCode records the process exit code. It does not affect status.
func (r *Registry) SetExitCode(id string, code int) bool {
	e := r.lookup(id)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.run.ExitCode = &code
	return true
}

// SetLocalURL records the first localhost URL a run printed. Later calls
// are ignored.
func (r *Registry) SetLocalURL(id, url string) bool {
	e := r.lookup(id)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run.LocalURL != "" {
		return false
	}
	e.run.LocalURL = url
	return true
}

// Select returns a snapshot of the run with the given id, or of the most
// recently created run when id is Latest.
func (r *Registry) Select(id string) (Run, bool) {
	if id == Latest {
		r.mu.RLock()
		if len(r.order) == 0 {
			r.mu.RUnlock()
			return Run{}, false
		}
		id = r.order[len(r.order)-1]
		r.mu.RUnlock()
	}
	e := r.lookup(id)
	if e == nil {
		return Run{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run.clone(), true
}

// List returns snapshots of all runs in creation order.
func (r *Registry) List() []Run {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, r.entries[id])
	}
	r.mu.RUnlock()

	runs := make([]Run, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		runs = append(runs, e.run.clone())
		e.mu.Unlock()
	}
	return runs
}

// Running returns the ids of runs that are not done yet.
func (r *Registry) Running() []string {
	var ids []string
	for _, run := range r.List() {
		if !run.IsDone() {
			ids = append(ids, run.ID)
		}
	}
	return ids
}

// Len returns the number of tracked runs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

var localURLPattern = regexp.MustCompile(`(?i)https?://(?:localhost|127\.0\.0\.1)(?::\d+)?(?:/[^\s]*)?`)

// DetectLocalURL returns the first localhost URL in line, if any.
func DetectLocalURL(line string) (string, bool) {
	url := localURLPattern.FindString(line)
	return url, url != ""
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
