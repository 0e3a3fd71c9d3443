package analyze

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/runctl/internal/completion"
	"github.com/Iron-Ham/runctl/internal/errors"
	"github.com/Iron-Ham/runctl/internal/logging"
	"github.com/Iron-Ham/runctl/internal/orchestrator"
	"github.com/Iron-Ham/runctl/internal/run"
)

// JobRunner executes one claimed job to completion. A nil error marks the
// job done; any error marks it failed.
type JobRunner interface {
	RunJob(ctx context.Context, job Job) error
}

// JobRunnerFunc adapts a function to JobRunner.
type JobRunnerFunc func(ctx context.Context, job Job) error

// RunJob implements JobRunner.
func (f JobRunnerFunc) RunJob(ctx context.Context, job Job) error { return f(ctx, job) }

// Launcher starts and stops tracked agent runs. *orchestrator.Service
// implements it.
type Launcher interface {
	LaunchSingle(ctx context.Context, req orchestrator.SingleRequest) (*orchestrator.Handle, error)
	Stop(runID string) error
}

// AgentRunner runs jobs as agent runs in one project. The run's output is
// written to the job's OutputPath by the completion dispatcher.
type AgentRunner struct {
	fs          afero.Fs
	launcher    Launcher
	projectID   string
	projectRoot string
	logger      *logging.Logger
}

// NewAgentRunner creates an AgentRunner for the project at projectRoot.
func NewAgentRunner(fs afero.Fs, launcher Launcher, projectID, projectRoot string, logger *logging.Logger) *AgentRunner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &AgentRunner{
		fs:          fs,
		launcher:    launcher,
		projectID:   projectID,
		projectRoot: projectRoot,
		logger:      logger.WithPhase("analyze"),
	}
}

// RunJob implements JobRunner. It waits for the run's completion future,
// so a job is done only after its agent exited. When ctx ends first the
// run is stopped, so a failed job never writes its document later. A run
// stopped by anyone fails the job.
func (r *AgentRunner) RunJob(ctx context.Context, job Job) error {
	log := r.logger.WithJob(job.ID)

	prompt, err := afero.ReadFile(r.fs, filepath.Join(r.projectRoot, filepath.FromSlash(job.PromptPath)))
	if err != nil {
		return errors.NewQueueError(fmt.Sprintf("read prompt %s", job.PromptPath), err).WithJobID(job.ID)
	}

	h, err := r.launcher.LaunchSingle(ctx, orchestrator.SingleRequest{
		ProjectRoot: r.projectRoot,
		Prompt:      string(prompt),
		Label:       "Analyze: " + job.ID,
		Meta: &run.Meta{
			ProjectID:  r.projectID,
			OutputPath: job.OutputPath,
			OnComplete: completion.OnCompleteAnalyzeDoc,
			Payload: map[string]any{
				run.PayloadProjectID: r.projectID,
				run.PayloadRepoPath:  r.projectRoot,
			},
		},
	})
	if err != nil {
		return err
	}
	log.Info("analyze job launched", "run_id", h.RunID)

	res, err := h.Future.Wait(ctx)
	if err != nil {
		if stopErr := r.launcher.Stop(h.RunID); stopErr != nil {
			log.Warn("failed to stop analyze run", "run_id", h.RunID, "error", stopErr)
		}
		return err
	}
	if res.Stopped {
		return errors.NewRunError("analyze run stopped before it finished", errors.ErrCanceled).WithRunID(h.RunID)
	}
	log.Info("analyze job finished", "run_id", h.RunID, "exit_code", res.ExitCode)
	return nil
}
