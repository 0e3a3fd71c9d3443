// Package analyze runs the project analysis queue: a JSON file of document
// jobs, executed in FIFO batches of at most three agent runs at a time.
//
// Every mutation of the queue file goes through a single Actor, which
// re-reads the file before each change and persists the whole queue
// after it. Job failures are recorded on the job and never stop the
// Scheduler.
package analyze

import "slices"

// JobStatus is the lifecycle state of one queue job.
type JobStatus string

const (
	StatusPending JobStatus = "pending"
	StatusRunning JobStatus = "running"
	StatusDone    JobStatus = "done"
	StatusFailed  JobStatus = "failed"
)

// IsTerminal reports whether the job will not run again without a reseed.
func (s JobStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// IsValid reports whether s is a known status.
func (s JobStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusDone, StatusFailed:
		return true
	}
	return false
}

// Job is one document to generate. Paths are relative to the project root.
type Job struct {
	ID         string    `json:"id"`
	PromptPath string    `json:"promptPath"`
	OutputPath string    `json:"outputPath"`
	Status     JobStatus `json:"status"`
}

// QueueData is the on-disk queue.
type QueueData struct {
	Jobs []Job `json:"jobs"`
}

// Clone returns a deep copy.
func (q QueueData) Clone() QueueData {
	return QueueData{Jobs: slices.Clone(q.Jobs)}
}

// Count returns the number of jobs with status s.
func (q QueueData) Count(s JobStatus) int {
	n := 0
	for _, j := range q.Jobs {
		if j.Status == s {
			n++
		}
	}
	return n
}

// Find returns the index of the job with id, or -1.
func (q QueueData) Find(id string) int {
	return slices.IndexFunc(q.Jobs, func(j Job) bool { return j.ID == id })
}

// Outcome is the result of running one claimed job.
type Outcome struct {
	JobID  string
	Status JobStatus
	Err    error
}

// Progress summarizes a Scheduler run.
type Progress struct {
	Completed int
	Failed    int
	Total     int
	Batches   int
}

// Finished reports whether every job reached a terminal state.
func (p Progress) Finished() bool {
	return p.Completed+p.Failed == p.Total
}
