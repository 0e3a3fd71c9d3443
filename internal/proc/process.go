// Package proc starts the external agent processes behind runs and turns
// their output into an ordered event feed.
//
// Each started [Process] exposes one channel. Stdout and stderr lines are
// delivered as [EventLog] in the order they were read, with stderr lines
// prefixed by [StderrPrefix]. Exactly one [EventExited] follows once the
// process was reaped and its streams drained, and then the channel is
// closed. A background child that keeps the streams open does not hold the
// exit back; whatever it writes after the drain window is dropped.
package proc

import (
	"bufio"
	"io"
	"strings"
	"sync"

	"github.com/Iron-Ham/runctl/internal/logging"
)

// StderrPrefix marks log lines that came from stderr.
const StderrPrefix = "[stderr] "

// maxLineBytes bounds a single output line. Longer lines are truncated and
// reading continues with the next line.
const maxLineBytes = 1024 * 1024

// EventKind distinguishes log lines from the exit notification.
type EventKind int

const (
	EventLog EventKind = iota
	EventExited
)

func (k EventKind) String() string {
	switch k {
	case EventLog:
		return "log"
	case EventExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Event is one item of a process feed.
type Event struct {
	Kind     EventKind
	Line     string // EventLog only
	ExitCode int    // EventExited only; -1 when killed by a signal
}

// Spec describes a process to start.
type Spec struct {
	Dir  string   // working directory, must exist
	Path string   // executable, usually the shell
	Args []string // arguments after Path
	Env  []string // KEY=VALUE pairs added to the parent environment

	// UsePTY runs the process on a pseudo-terminal. Stdout and stderr are
	// merged and no stderr prefix is applied.
	UsePTY bool
}

// Process is a started external process.
type Process struct {
	PID    int
	events chan Event
}

// Events returns the process feed. It is closed after the exited event.
func (p *Process) Events() <-chan Event {
	return p.events
}

// NewProcess builds a Process around an existing feed. Spawner
// implementations outside this package use it, mainly fakes in tests.
func NewProcess(pid int, events chan Event) *Process {
	return &Process{PID: pid, events: events}
}

// Spawner starts and signals external processes.
type Spawner interface {
	// Start launches spec and returns once the OS accepted the process.
	Start(spec Spec) (*Process, error)
	// Kill sends SIGKILL to the process group led by pid.
	Kill(pid int) error
	// Detach launches spec in its own session and forgets it. No feed is
	// produced.
	Detach(spec Spec) error
}

// feed is the sending side of a process feed. Readers may outlive the
// exited event, so sends after exit are dropped instead of panicking on a
// closed channel.
type feed struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func newFeed(size int) *feed {
	return &feed{ch: make(chan Event, size)}
}

func (f *feed) send(e Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.ch <- e
	return true
}

// exit sends the exited event and closes the channel.
func (f *feed) exit(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.ch <- Event{Kind: EventExited, ExitCode: code}
	f.closed = true
	close(f.ch)
}

// readLines sends each line of r to f, prefixed with prefix, until r hits
// EOF or fails. Lines over maxLineBytes are cut at the limit. A trailing
// carriage return is trimmed so PTY output reads like pipe output.
func readLines(r io.Reader, prefix string, f *feed, logger *logging.Logger) {
	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	truncated := false
	dropped := 0
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if len(line) > 0 && !f.send(Event{Kind: EventLog, Line: prefix + strings.TrimSuffix(string(line), "\r")}) {
				dropped++
			}
			if dropped > 0 {
				logger.Debug("dropped output written after exit", "lines", dropped)
			}
			return
		}
		if room := maxLineBytes - len(line); len(chunk) > room {
			chunk = chunk[:room]
			truncated = true
		}
		line = append(line, chunk...)
		if isPrefix {
			continue
		}
		if truncated {
			logger.Warn("output line truncated", "limit_bytes", maxLineBytes)
		}
		if !f.send(Event{Kind: EventLog, Line: prefix + strings.TrimSuffix(string(line), "\r")}) {
			dropped++
		}
		line = line[:0]
		truncated = false
	}
}
