// Package orchestrator launches agent runs and connects their output to the
// run registry and the completion dispatcher.
package orchestrator

import (
	"sync"
	"time"

	"github.com/Iron-Ham/runctl/internal/completion"
	"github.com/Iron-Ham/runctl/internal/config"
	"github.com/Iron-Ham/runctl/internal/event"
	"github.com/Iron-Ham/runctl/internal/logging"
	"github.com/Iron-Ham/runctl/internal/proc"
	"github.com/Iron-Ham/runctl/internal/run"
)

// Deps are the collaborators a Service is built from. Nil fields other
// than Spawner get a fresh default.
type Deps struct {
	Registry   *run.Registry
	Spawner    proc.Spawner
	Dispatcher *completion.Dispatcher
	Futures    *completion.FutureSet
	Handlers   *completion.HandlerRegistry
	Bus        *event.Bus
	Logger     *logging.Logger
	Clock      func() time.Time

	// NewID generates run ids. Defaults to run.NewID.
	NewID func() string
}

// Handle identifies a launched run.
type Handle struct {
	RunID  string
	Label  string
	Slot   int
	PID    int
	Future *completion.Future
}

// Service owns every tracked run of one runctl process.
type Service struct {
	cfg        *config.Config
	registry   *run.Registry
	spawner    proc.Spawner
	dispatcher *completion.Dispatcher
	futures    *completion.FutureSet
	handlers   *completion.HandlerRegistry
	bus        *event.Bus
	logger     *logging.Logger
	now        func() time.Time
	newID      func() string

	mu      sync.Mutex
	pids    map[string]int
	stopped map[string]bool

	pumps sync.WaitGroup
}

// New creates a Service. A Dispatcher built here shares the Service's
// registry, futures, and handlers but persists nothing.
func New(cfg *config.Config, deps Deps) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.Registry == nil {
		deps.Registry = run.NewRegistry()
	}
	if deps.Futures == nil {
		deps.Futures = completion.NewFutureSet()
	}
	if deps.Handlers == nil {
		deps.Handlers = completion.NewHandlerRegistry()
	}
	if deps.Bus == nil {
		deps.Bus = event.NewBus()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NopLogger()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = run.NewID
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = completion.NewDispatcher(deps.Registry, deps.Handlers, deps.Futures, nil, deps.Bus, deps.Logger,
			completion.WithClock(deps.Clock))
	}
	return &Service{
		cfg:        cfg,
		registry:   deps.Registry,
		spawner:    deps.Spawner,
		dispatcher: deps.Dispatcher,
		futures:    deps.Futures,
		handlers:   deps.Handlers,
		bus:        deps.Bus,
		logger:     deps.Logger.WithPhase("launcher"),
		now:        deps.Clock,
		newID:      deps.NewID,
		pids:       make(map[string]int),
		stopped:    make(map[string]bool),
	}
}

// Select returns the run with the given id, or the newest run for
// run.Latest.
func (s *Service) Select(idOrLatest string) (run.Run, bool) {
	return s.registry.Select(idOrLatest)
}

// Runs returns every tracked run in launch order.
func (s *Service) Runs() []run.Run {
	return s.registry.List()
}

// Register installs a single-use completion handler under key. See
// completion.Key for how runs map to keys.
func (s *Service) Register(key string, fn completion.HandlerFunc) {
	s.handlers.Register(key, fn)
}

// Bus returns the event bus runs publish on.
func (s *Service) Bus() *event.Bus { return s.bus }

// Wait blocks until every launched process has exited and been dispatched.
func (s *Service) Wait() {
	s.pumps.Wait()
}

func (s *Service) setPID(runID string, pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pids[runID] = pid
}

// stopPID returns the pid of a run whose process is still attached and
// flags the run as stopped so its exit is not dispatched as a normal
// completion.
func (s *Service) stopPID(runID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, ok := s.pids[runID]
	if ok {
		s.stopped[runID] = true
	}
	return pid, ok
}

// releasePID forgets a run's process and reports whether it was stopped.
func (s *Service) releasePID(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	stopped := s.stopped[runID]
	delete(s.pids, runID)
	delete(s.stopped, runID)
	return stopped
}
