package event

import "time"

// Event is implemented by everything published on a Bus.
type Event interface {
	// EventType follows "category.action", e.g. "run.exited".
	EventType() string
	Timestamp() time.Time
}

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// Event type names.
const (
	TypeRunStarted       = "run.started"
	TypeRunLog           = "run.log"
	TypeRunURLDetected   = "run.url_detected"
	TypeRunExited        = "run.exited"
	TypeRunStopped       = "run.stopped"
	TypeRunComplete      = "run.complete"
	TypeOutputWritten    = "output.written"
	TypeOutputFailed     = "output.write_failed"
	TypeAnalyzeBatch     = "analyze.batch_started"
	TypeAnalyzeProgress  = "analyze.progress"
	TypeAnalyzeJobFailed = "analyze.job_failed"
)

// -----------------------------------------------------------------------------
// Run lifecycle
// -----------------------------------------------------------------------------

// RunStartedEvent is published once a process was accepted and tracked.
type RunStartedEvent struct {
	baseEvent
	RunID       string
	Label       string
	Slot        int
	ProjectRoot string
	PID         int
}

// NewRunStartedEvent creates a RunStartedEvent.
func NewRunStartedEvent(runID, label string, slot int, projectRoot string, pid int) RunStartedEvent {
	return RunStartedEvent{
		baseEvent:   newBaseEvent(TypeRunStarted),
		RunID:       runID,
		Label:       label,
		Slot:        slot,
		ProjectRoot: projectRoot,
		PID:         pid,
	}
}

// RunLogEvent carries one output line. Stderr lines arrive prefixed with
// "[stderr] ".
type RunLogEvent struct {
	baseEvent
	RunID string
	Line  string
}

// NewRunLogEvent creates a RunLogEvent.
func NewRunLogEvent(runID, line string) RunLogEvent {
	return RunLogEvent{baseEvent: newBaseEvent(TypeRunLog), RunID: runID, Line: line}
}

// RunURLDetectedEvent is published the first time a run prints a
// localhost URL, typically a dev server coming up.
type RunURLDetectedEvent struct {
	baseEvent
	RunID string
	URL   string
}

// NewRunURLDetectedEvent creates a RunURLDetectedEvent.
func NewRunURLDetectedEvent(runID, url string) RunURLDetectedEvent {
	return RunURLDetectedEvent{baseEvent: newBaseEvent(TypeRunURLDetected), RunID: runID, URL: url}
}

// RunExitedEvent is published when the process feed reports exit, before
// completion dispatch.
type RunExitedEvent struct {
	baseEvent
	RunID    string
	ExitCode int
}

// NewRunExitedEvent creates a RunExitedEvent.
func NewRunExitedEvent(runID string, exitCode int) RunExitedEvent {
	return RunExitedEvent{baseEvent: newBaseEvent(TypeRunExited), RunID: runID, ExitCode: exitCode}
}

// RunStoppedEvent is published when a stop was requested. The process may
// still be alive.
type RunStoppedEvent struct {
	baseEvent
	RunID string
	Err   error // kill error, if any
}

// NewRunStoppedEvent creates a RunStoppedEvent.
func NewRunStoppedEvent(runID string, err error) RunStoppedEvent {
	return RunStoppedEvent{baseEvent: newBaseEvent(TypeRunStopped), RunID: runID, Err: err}
}

// RunCompleteEvent is the passive "run complete" notification, published
// for every dispatched run whether or not a handler consumed it.
type RunCompleteEvent struct {
	baseEvent
	RunID      string
	OnComplete string
	Stdout     string
	ExitCode   int
	ProjectID  string
	OutputPath string
	Payload    map[string]any
	Stopped    bool
}

// NewRunCompleteEvent creates a RunCompleteEvent.
func NewRunCompleteEvent(runID, onComplete, stdout string, exitCode int) RunCompleteEvent {
	return RunCompleteEvent{
		baseEvent:  newBaseEvent(TypeRunComplete),
		RunID:      runID,
		OnComplete: onComplete,
		Stdout:     stdout,
		ExitCode:   exitCode,
	}
}

// -----------------------------------------------------------------------------
// Output persistence
// -----------------------------------------------------------------------------

// OutputWrittenEvent is published after a run's output reached disk.
type OutputWrittenEvent struct {
	baseEvent
	RunID     string
	ProjectID string
	Path      string
	Bytes     int
}

// NewOutputWrittenEvent creates an OutputWrittenEvent.
func NewOutputWrittenEvent(runID, projectID, path string, n int) OutputWrittenEvent {
	return OutputWrittenEvent{
		baseEvent: newBaseEvent(TypeOutputWritten),
		RunID:     runID,
		ProjectID: projectID,
		Path:      path,
		Bytes:     n,
	}
}

// OutputWriteFailedEvent is published when persisting a run's output
// failed. The run's status is unaffected.
type OutputWriteFailedEvent struct {
	baseEvent
	RunID     string
	ProjectID string
	Path      string
	Err       error
}

// NewOutputWriteFailedEvent creates an OutputWriteFailedEvent.
func NewOutputWriteFailedEvent(runID, projectID, path string, err error) OutputWriteFailedEvent {
	return OutputWriteFailedEvent{
		baseEvent: newBaseEvent(TypeOutputFailed),
		RunID:     runID,
		ProjectID: projectID,
		Path:      path,
		Err:       err,
	}
}

// -----------------------------------------------------------------------------
// Analyze queue
// -----------------------------------------------------------------------------

// AnalyzeBatchStartedEvent is published after a batch was marked running
// and persisted.
type AnalyzeBatchStartedEvent struct {
	baseEvent
	Batch  int
	JobIDs []string
}

// NewAnalyzeBatchStartedEvent creates an AnalyzeBatchStartedEvent.
func NewAnalyzeBatchStartedEvent(batch int, jobIDs []string) AnalyzeBatchStartedEvent {
	return AnalyzeBatchStartedEvent{baseEvent: newBaseEvent(TypeAnalyzeBatch), Batch: batch, JobIDs: jobIDs}
}

// AnalyzeProgressEvent reports aggregate progress after each batch.
type AnalyzeProgressEvent struct {
	baseEvent
	Completed int
	Failed    int
	Total     int
}

// NewAnalyzeProgressEvent creates an AnalyzeProgressEvent.
func NewAnalyzeProgressEvent(completed, failed, total int) AnalyzeProgressEvent {
	return AnalyzeProgressEvent{
		baseEvent: newBaseEvent(TypeAnalyzeProgress),
		Completed: completed,
		Failed:    failed,
		Total:     total,
	}
}

// AnalyzeJobFailedEvent reports one failed job.
type AnalyzeJobFailedEvent struct {
	baseEvent
	JobID string
	Err   error
}

// NewAnalyzeJobFailedEvent creates an AnalyzeJobFailedEvent.
func NewAnalyzeJobFailedEvent(jobID string, err error) AnalyzeJobFailedEvent {
	return AnalyzeJobFailedEvent{baseEvent: newBaseEvent(TypeAnalyzeJobFailed), JobID: jobID, Err: err}
}
