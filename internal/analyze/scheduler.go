package analyze

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/runctl/internal/event"
	"github.com/Iron-Ham/runctl/internal/logging"
)

// DefaultConcurrency is the batch size and the cap on jobs running at once.
const DefaultConcurrency = 3

// Scheduler drains the queue in FIFO batches.
type Scheduler struct {
	actor      *Actor
	runner     JobRunner
	limit      int
	bus        *event.Bus
	logger     *logging.Logger
	onProgress func(Progress)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithConcurrency sets the batch size. Values outside 1..3 are clamped.
func WithConcurrency(n int) SchedulerOption {
	return func(s *Scheduler) { s.limit = min(max(n, 1), DefaultConcurrency) }
}

// WithBus publishes batch, progress, and job failure events on bus.
func WithBus(bus *event.Bus) SchedulerOption {
	return func(s *Scheduler) { s.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// WithProgress calls fn after every batch.
func WithProgress(fn func(Progress)) SchedulerOption {
	return func(s *Scheduler) { s.onProgress = fn }
}

// NewScheduler creates a Scheduler.
func NewScheduler(actor *Actor, runner JobRunner, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		actor:  actor,
		runner: runner,
		limit:  DefaultConcurrency,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithPhase("analyze")
	return s
}

// Run executes batches until no job is pending. Each batch is claimed and
// persisted as running before any job starts, and its outcomes are applied
// to a fresh read once every job in it finished. Failed jobs are recorded
// and do not stop the loop.
//
// If ctx ends, Run stops after the current batch and returns ctx.Err();
// that batch's jobs are recorded as failed.
//
// Run refuses to start with ErrQueueBusy while any job is running. Those
// jobs belong to another scheduler, or to one that crashed, in which case
// Actor.ResetRunning is the manual way back.
func (s *Scheduler) Run(ctx context.Context) (Progress, error) {
	var p Progress

	q, err := s.actor.Read(ctx)
	if err != nil {
		return p, err
	}
	p = progressOf(q, 0)
	if len(q.Jobs) == 0 || q.Count(StatusPending) == 0 {
		return p, nil
	}
	s.logger.Info("analyze queue started", "total", p.Total, "pending", q.Count(StatusPending), "concurrency", s.limit)

	for {
		if err := ctx.Err(); err != nil {
			return p, err
		}
		claim := s.actor.ClaimBatch
		if p.Batches == 0 {
			claim = s.actor.ClaimFirstBatch
		}
		batch, err := claim(ctx, s.limit)
		if err != nil {
			return p, err
		}
		if len(batch) == 0 {
			break
		}
		p.Batches++
		s.publish(event.NewAnalyzeBatchStartedEvent(p.Batches, jobIDs(batch)))
		s.logger.Info("analyze batch started", "batch", p.Batches, "jobs", jobIDs(batch))

		outcomes := s.runBatch(ctx, batch)

		// Outcomes are recorded even when ctx ended, so no job stays running.
		q, err := s.actor.Apply(context.WithoutCancel(ctx), outcomes)
		if err != nil {
			return p, err
		}
		p = progressOf(q, p.Batches)
		s.report(p)
	}

	s.logger.Info("analyze queue finished", "completed", p.Completed, "failed", p.Failed, "batches", p.Batches)
	return p, nil
}

func (s *Scheduler) runBatch(ctx context.Context, batch []Job) []Outcome {
	workers := pool.NewWithResults[Outcome]().WithMaxGoroutines(s.limit)
	for _, job := range batch {
		job := job
		workers.Go(func() Outcome {
			err := s.runJob(ctx, job)
			if err != nil {
				s.logger.WithJob(job.ID).Warn("analyze job failed", "error", err)
				s.publish(event.NewAnalyzeJobFailedEvent(job.ID, err))
				return Outcome{JobID: job.ID, Status: StatusFailed, Err: err}
			}
			return Outcome{JobID: job.ID, Status: StatusDone}
		})
	}
	return workers.Wait()
}

// runJob turns a runner panic into a job failure.
func (s *Scheduler) runJob(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return s.runner.RunJob(ctx, job)
}

func (s *Scheduler) report(p Progress) {
	s.publish(event.NewAnalyzeProgressEvent(p.Completed, p.Failed, p.Total))
	if s.onProgress != nil {
		s.onProgress(p)
	}
}

func (s *Scheduler) publish(e event.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

func progressOf(q QueueData, batches int) Progress {
	return Progress{
		Completed: q.Count(StatusDone),
		Failed:    q.Count(StatusFailed),
		Total:     len(q.Jobs),
		Batches:   batches,
	}
}

func jobIDs(jobs []Job) []string {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}
