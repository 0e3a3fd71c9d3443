package run

import (
	"slices"
	"time"
)

// Status is a run's lifecycle state. The only transition is running to done.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
)

// Well-known Meta.Payload keys.
const (
	PayloadProjectID = "projectId"
	PayloadRequestID = "requestId"
	PayloadRepoPath  = "repoPath"
)

// Meta is attached at launch and read only by the completion dispatcher.
type Meta struct {
	ProjectID  string         `json:"projectId,omitempty"`
	OutputPath string         `json:"outputPath,omitempty"`
	OnComplete string         `json:"onComplete,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Slot       int            `json:"slot,omitempty"`
}

// Clone returns a copy whose Payload map is not shared.
func (m *Meta) Clone() *Meta {
	if m == nil {
		return nil
	}
	c := *m
	if m.Payload != nil {
		c.Payload = make(map[string]any, len(m.Payload))
		for k, v := range m.Payload {
			c.Payload[k] = v
		}
	}
	return &c
}

// Run is a snapshot of one tracked process execution.
type Run struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	Status    Status     `json:"status"`
	LogLines  []string   `json:"logLines"`
	StartedAt time.Time  `json:"startedAt"`
	DoneAt    *time.Time `json:"doneAt,omitempty"`
	Meta      *Meta      `json:"meta,omitempty"`
	ExitCode  *int       `json:"exitCode,omitempty"`
	LocalURL  string     `json:"localUrl,omitempty"`
}

// IsDone reports whether the run reached its terminal state.
func (r Run) IsDone() bool { return r.Status == StatusDone }

// Duration is DoneAt minus StartedAt, or the elapsed time so far.
func (r Run) Duration() time.Duration {
	if r.DoneAt != nil {
		return r.DoneAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// Stdout joins the log the way it is persisted and handed to handlers.
func (r Run) Stdout() string {
	return joinLines(r.LogLines)
}

func (r Run) clone() Run {
	c := r
	c.LogLines = slices.Clone(r.LogLines)
	if r.DoneAt != nil {
		at := *r.DoneAt
		c.DoneAt = &at
	}
	if r.ExitCode != nil {
		code := *r.ExitCode
		c.ExitCode = &code
	}
	c.Meta = r.Meta.Clone()
	return c
}
