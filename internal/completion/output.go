package completion

import (
	"context"
	"fmt"
	"sync"

	"github.com/Iron-Ham/runctl/internal/event"
	"github.com/Iron-Ham/runctl/internal/logging"
)

// outputQueueSize bounds how many writes may be pending before Submit
// blocks.
const outputQueueSize = 64

// WriteRequest is one document to persist.
type WriteRequest struct {
	RunID     string
	ProjectID string
	Path      string
	Content   string
	RootHint  string
}

// WriteError reports a failed WriteRequest.
type WriteError struct {
	Request WriteRequest
	Err     error
}

func (e WriteError) Error() string {
	return fmt.Sprintf("write %s for run %s: %v", e.Request.Path, e.Request.RunID, e.Err)
}

func (e WriteError) Unwrap() error { return e.Err }

// OutputWriter persists run output on a background goroutine so the
// completion path never waits on disk. Failures are logged, published on
// the bus, and sent to Errors without blocking.
type OutputWriter struct {
	files  FileWriter
	bus    *event.Bus
	logger *logging.Logger

	queue chan WriteRequest
	errs  chan WriteError
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewOutputWriter starts the background writer. errBuffer is the capacity
// of the Errors channel; errors beyond it are dropped after being logged.
func NewOutputWriter(files FileWriter, bus *event.Bus, logger *logging.Logger, errBuffer int) *OutputWriter {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if errBuffer < 1 {
		errBuffer = 1
	}
	w := &OutputWriter{
		files:  files,
		bus:    bus,
		logger: logger.WithPhase("output"),
		queue:  make(chan WriteRequest, outputQueueSize),
		errs:   make(chan WriteError, errBuffer),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

// Submit queues req. It returns false once the writer is closed.
func (w *OutputWriter) Submit(req WriteRequest) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	w.queue <- req
	return true
}

// Errors delivers write failures. It is closed after Close drains the
// queue.
func (w *OutputWriter) Errors() <-chan WriteError { return w.errs }

// Close stops accepting requests and waits for pending ones to finish.
func (w *OutputWriter) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *OutputWriter) loop() {
	defer close(w.done)
	defer close(w.errs)
	for req := range w.queue {
		w.write(req)
	}
}

func (w *OutputWriter) write(req WriteRequest) {
	log := w.logger.WithRun(req.RunID).With("project_id", req.ProjectID, "path", req.Path)
	path, err := w.files.WriteFile(context.Background(), req.ProjectID, req.Path, req.Content, req.RootHint)
	if err != nil {
		log.Error("failed to persist run output", "error", err)
		w.publish(event.NewOutputWriteFailedEvent(req.RunID, req.ProjectID, req.Path, err))
		select {
		case w.errs <- WriteError{Request: req, Err: err}:
		default:
			log.Warn("output error channel full, dropping error")
		}
		return
	}
	log.Debug("run output persisted", "file", path, "bytes", len(req.Content))
	w.publish(event.NewOutputWrittenEvent(req.RunID, req.ProjectID, path, len(req.Content)))
}

func (w *OutputWriter) publish(e event.Event) {
	if w.bus != nil {
		w.bus.Publish(e)
	}
}
