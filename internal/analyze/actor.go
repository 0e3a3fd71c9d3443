package analyze

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/runctl/internal/errors"
	"github.com/Iron-Ham/runctl/internal/logging"
)

var (
	// ErrActorClosed is returned for requests made after Close.
	ErrActorClosed = errors.New("queue actor closed")
	// ErrQueueBusy means a scheduler found jobs already running.
	ErrQueueBusy = errors.New("analyze queue has running jobs")
)

// Actor owns the queue file. Requests run one at a time on its goroutine,
// so a read-modify-write never interleaves with another.
type Actor struct {
	store  *Store
	logger *logging.Logger

	reqs      chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	revision atomic.Int64
}

// NewActor starts the actor goroutine. Call Close to stop it.
func NewActor(store *Store, logger *logging.Logger) *Actor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	a := &Actor{
		store:  store,
		logger: logger.WithPhase("analyze-queue"),
		reqs:   make(chan func()),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Actor) loop() {
	defer close(a.done)
	for {
		select {
		case fn := <-a.reqs:
			fn()
		case <-a.quit:
			return
		}
	}
}

// Close stops the actor after any request in progress.
func (a *Actor) Close() {
	a.closeOnce.Do(func() { close(a.quit) })
	<-a.done
}

// do runs fn on the actor goroutine. Once accepted, fn runs to completion
// even if ctx ends meanwhile.
func (a *Actor) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case a.reqs <- func() { errc <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.quit:
		return ErrActorClosed
	}
	return <-errc
}

func (a *Actor) persist(q QueueData) error {
	if err := a.store.Write(q); err != nil {
		return err
	}
	a.revision.Add(1)
	return nil
}

// Read returns a fresh copy of the queue.
func (a *Actor) Read(ctx context.Context) (QueueData, error) {
	var q QueueData
	err := a.do(ctx, func() error {
		var err error
		q, err = a.store.Read()
		return err
	})
	return q, err
}

// Write replaces the whole queue.
func (a *Actor) Write(ctx context.Context, q QueueData) error {
	q = q.Clone()
	return a.do(ctx, func() error { return a.persist(q) })
}

// ClaimBatch marks up to limit pending jobs running, in queue order, and
// persists the queue before returning them.
func (a *Actor) ClaimBatch(ctx context.Context, limit int) ([]Job, error) {
	return a.claim(ctx, limit, false)
}

// ClaimFirstBatch is ClaimBatch for a scheduler that is just starting. It
// fails with ErrQueueBusy when any job is already running, since that job
// belongs to another scheduler or was left behind by a crash.
func (a *Actor) ClaimFirstBatch(ctx context.Context, limit int) ([]Job, error) {
	return a.claim(ctx, limit, true)
}

func (a *Actor) claim(ctx context.Context, limit int, idle bool) ([]Job, error) {
	var claimed []Job
	err := a.do(ctx, func() error {
		claimed = nil
		_, err := a.store.Update(func(q *QueueData) (bool, error) {
			if n := q.Count(StatusRunning); idle && n > 0 {
				return false, errors.NewQueueError(fmt.Sprintf("%d job(s) already running", n), ErrQueueBusy).
					WithQueuePath(a.store.Path())
			}
			for i := range q.Jobs {
				if len(claimed) == limit {
					break
				}
				if q.Jobs[i].Status != StatusPending {
					continue
				}
				q.Jobs[i].Status = StatusRunning
				claimed = append(claimed, q.Jobs[i])
			}
			return len(claimed) > 0, nil
		})
		if err == nil && len(claimed) > 0 {
			a.revision.Add(1)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Apply sets each outcome's status on a fresh read of the queue and
// persists it. Outcomes for jobs no longer in the queue are skipped.
func (a *Actor) Apply(ctx context.Context, outcomes []Outcome) (QueueData, error) {
	var q QueueData
	err := a.do(ctx, func() error {
		var err error
		q, err = a.store.Update(func(q *QueueData) (bool, error) {
			for _, o := range outcomes {
				i := q.Find(o.JobID)
				if i < 0 {
					a.logger.WithJob(o.JobID).Warn("outcome for a job no longer in the queue")
					continue
				}
				q.Jobs[i].Status = o.Status
			}
			return true, nil
		})
		if err == nil {
			a.revision.Add(1)
		}
		return err
	})
	return q.Clone(), err
}

// ResetRunning moves jobs left running by a crashed scheduler back to
// pending and returns how many were reset. It is a manual recovery step;
// calling it while a scheduler is active makes that scheduler's jobs run
// twice.
func (a *Actor) ResetRunning(ctx context.Context) (int, error) {
	n := 0
	err := a.do(ctx, func() error {
		n = 0
		_, err := a.store.Update(func(q *QueueData) (bool, error) {
			for i := range q.Jobs {
				if q.Jobs[i].Status == StatusRunning {
					q.Jobs[i].Status = StatusPending
					n++
				}
			}
			return n > 0, nil
		})
		if err == nil && n > 0 {
			a.revision.Add(1)
		}
		return err
	})
	return n, err
}

// Revision returns the number of writes this actor has persisted.
func (a *Actor) Revision() int64 {
	return a.revision.Load()
}
