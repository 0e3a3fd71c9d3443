package completion

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Iron-Ham/runctl/internal/event"
	"github.com/Iron-Ham/runctl/internal/logging"
	"github.com/Iron-Ham/runctl/internal/run"
)

// OnCompleteAnalyzeDoc tags runs whose stdout is an analysis document.
// Their output is cleaned before it is persisted.
const OnCompleteAnalyzeDoc = "analyze-doc"

// Recorder stores finished runs, e.g. in a history database.
type Recorder interface {
	RecordRun(ctx context.Context, r run.Run) error
}

// Dispatcher runs the completion steps for an exited run.
type Dispatcher struct {
	registry *run.Registry
	handlers *HandlerRegistry
	futures  *FutureSet
	output   *OutputWriter
	bus      *event.Bus
	logger   *logging.Logger

	recorder       Recorder
	minDocLength   int
	stripArtifacts bool
	now            func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRecorder records every dispatched run.
func WithRecorder(r Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithMinDocumentLength overrides MinDocumentLength for analysis output.
func WithMinDocumentLength(n int) DispatcherOption {
	return func(d *Dispatcher) { d.minDocLength = n }
}

// WithStripArtifacts toggles cleaning of analysis output.
func WithStripArtifacts(enabled bool) DispatcherOption {
	return func(d *Dispatcher) { d.stripArtifacts = enabled }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a Dispatcher. output and bus may be nil, in which
// case nothing is persisted or published.
func NewDispatcher(registry *run.Registry, handlers *HandlerRegistry, futures *FutureSet,
	output *OutputWriter, bus *event.Bus, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = logging.NopLogger()
	}
	d := &Dispatcher{
		registry:       registry,
		handlers:       handlers,
		futures:        futures,
		output:         output,
		bus:            bus,
		logger:         logger.WithPhase("completion"),
		minDocLength:   MinDocumentLength,
		stripArtifacts: true,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch completes runID after its process exited with exitCode:
//  1. mark the run done and record the exit code
//  2. queue its output for persistence when meta names a project and path
//  3. take and invoke the keyed handler, if any
//  4. resolve the run's future
//  5. publish run.complete
//
// A failure in one step never prevents the next. Dispatch reports whether
// this call moved the run to done.
func (d *Dispatcher) Dispatch(runID string, exitCode int) bool {
	return d.dispatch(runID, exitCode, false)
}

// DispatchStopped completes a run that was stopped before its process
// exited. Its output is partial, so nothing is persisted and the keyed
// handler is discarded without being called. The future still resolves
// and run.complete is still published, both marked as stopped.
func (d *Dispatcher) DispatchStopped(runID string, exitCode int) bool {
	return d.dispatch(runID, exitCode, true)
}

func (d *Dispatcher) dispatch(runID string, exitCode int, stopped bool) bool {
	log := d.logger.WithRun(runID)

	transitioned := d.registry.MarkDone(runID, d.now())
	d.registry.SetExitCode(runID, exitCode)

	r, ok := d.registry.Select(runID)
	if !ok {
		log.Warn("completion for unknown run")
	}
	stdout := r.Stdout()
	meta := r.Meta

	if stopped {
		if key := Key(meta, runID); key != "" {
			if _, had := d.handlers.Take(key); had {
				log.Info("completion handler skipped for stopped run", "key", key)
			}
		}
	} else {
		d.persist(log, r)
		d.invokeHandler(log, meta, runID, stdout)
	}

	if f, ok := d.futures.Take(runID); ok {
		f.Resolve(Result{RunID: runID, Stdout: stdout, ExitCode: exitCode, Stopped: stopped})
	}

	complete := event.NewRunCompleteEvent(runID, "", stdout, exitCode)
	complete.Stopped = stopped
	if meta != nil {
		complete.OnComplete = meta.OnComplete
		complete.ProjectID = meta.ProjectID
		complete.OutputPath = meta.OutputPath
		complete.Payload = meta.Clone().Payload
	}
	if d.bus != nil {
		d.bus.Publish(complete)
	}

	if d.recorder != nil && ok {
		if err := d.recorder.RecordRun(context.Background(), r); err != nil {
			log.Warn("failed to record run history", "error", err)
		}
	}

	log.Info("run complete", "exit_code", exitCode, "lines", len(r.LogLines), "stopped", stopped)
	return transitioned
}

func (d *Dispatcher) persist(log *logging.Logger, r run.Run) {
	meta := r.Meta
	if d.output == nil || meta == nil || meta.ProjectID == "" || meta.OutputPath == "" {
		return
	}
	content := r.Stdout()
	if meta.OnComplete == OnCompleteAnalyzeDoc && d.stripArtifacts {
		content = DocumentContent(meta.OutputPath, content, d.minDocLength)
	}
	req := WriteRequest{
		RunID:     r.ID,
		ProjectID: meta.ProjectID,
		Path:      meta.OutputPath,
		Content:   content,
		RootHint:  RootHint(meta),
	}
	if !d.output.Submit(req) {
		log.Warn("output writer closed, dropping run output", "path", meta.OutputPath)
	}
}

func (d *Dispatcher) invokeHandler(log *logging.Logger, meta *run.Meta, runID, stdout string) {
	key := Key(meta, runID)
	if key == "" {
		return
	}
	fn, ok := d.handlers.Take(key)
	if !ok {
		return
	}
	if err := safeInvoke(fn, stdout); err != nil {
		log.Error("completion handler failed", "key", key, "error", err)
	}
}

func safeInvoke(fn HandlerFunc, stdout string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(stdout)
}
