package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/runctl/internal/errors"
	"github.com/Iron-Ham/runctl/internal/event"
	"github.com/Iron-Ham/runctl/internal/proc"
	"github.com/Iron-Ham/runctl/internal/run"
)

// MaxSlot is the highest terminal slot.
const MaxSlot = 3

// SingleRequest launches one tracked run with caller-supplied meta.
type SingleRequest struct {
	ProjectRoot string
	Prompt      string
	Label       string

	// Slot defaults to 1.
	Slot int
	Meta *run.Meta
}

type launchRequest struct {
	root   string
	prompt string
	label  string
	slot   int
	meta   *run.Meta
}

// Launch starts the agent in projectRoot on slot 1, 2, or 3. It returns as
// soon as the process is running.
func (s *Service) Launch(ctx context.Context, projectRoot string, slot int, prompt string) (*Handle, error) {
	if err := validateSlot(slot); err != nil {
		return nil, err
	}
	return s.launch(ctx, launchRequest{
		root:   projectRoot,
		prompt: prompt,
		label:  fmt.Sprintf("Terminal %d", slot),
		slot:   slot,
	})
}

// LaunchSingle starts one tracked run carrying req.Meta to the completion
// dispatcher.
func (s *Service) LaunchSingle(ctx context.Context, req SingleRequest) (*Handle, error) {
	slot := req.Slot
	if slot == 0 {
		slot = 1
	}
	if err := validateSlot(slot); err != nil {
		return nil, err
	}
	label := req.Label
	if label == "" {
		label = fmt.Sprintf("Terminal %d", slot)
	}
	return s.launch(ctx, launchRequest{
		root:   req.ProjectRoot,
		prompt: req.Prompt,
		label:  label,
		slot:   slot,
		meta:   req.Meta,
	})
}

// ImplementAll launches prompts on slots 1 to 3 in order, pausing for the
// configured stagger between launches. On error it returns the handles
// already launched; those runs keep going.
func (s *Service) ImplementAll(ctx context.Context, projectRoot string, prompts [MaxSlot]string) ([]*Handle, error) {
	handles := make([]*Handle, 0, MaxSlot)
	for i, prompt := range prompts {
		slot := i + 1
		if i > 0 {
			if err := sleepCtx(ctx, s.cfg.Launcher.Stagger()); err != nil {
				return handles, err
			}
		}
		h, err := s.launch(ctx, launchRequest{
			root:   projectRoot,
			prompt: prompt,
			label:  fmt.Sprintf("Implement All (Terminal %d)", slot),
			slot:   slot,
		})
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// LaunchUntracked opens an interactive terminal session in projectRoot. The
// session is not tracked and nothing is dispatched when it ends.
func (s *Service) LaunchUntracked(projectRoot string) error {
	if err := checkRoot(projectRoot); err != nil {
		return err
	}
	if s.spawner == nil {
		return errors.NewLaunchError("no spawner configured", errors.ErrSpawnFailed)
	}
	spec := proc.Spec{
		Dir:  projectRoot,
		Path: s.shell(),
		Args: []string{"-c", s.cfg.Agent.TerminalCommand},
		Env:  []string{"PROJECT_ROOT=" + projectRoot},
	}
	if err := s.spawner.Detach(spec); err != nil {
		return err
	}
	s.logger.Info("untracked session opened", "project_root", projectRoot)
	return nil
}

func (s *Service) launch(ctx context.Context, req launchRequest) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkRoot(req.root); err != nil {
		return nil, err
	}
	if s.spawner == nil {
		return nil, errors.NewLaunchError("no spawner configured", errors.ErrSpawnFailed)
	}

	p, err := s.spawner.Start(s.agentSpec(req.root, req.prompt))
	if err != nil {
		s.logger.Warn("launch failed", "slot", req.slot, "project_root", req.root, "error", err)
		return nil, err
	}

	id := s.newID()
	meta := req.meta.Clone()
	if meta == nil {
		meta = &run.Meta{}
	}
	meta.Slot = req.slot
	if _, err := s.registry.Create(id, req.label, meta); err != nil {
		_ = s.spawner.Kill(p.PID)
		// Nobody pumps this feed, and the spawner blocks once it fills.
		go drain(p)
		return nil, err
	}
	future := s.futures.Add(id)
	s.setPID(id, p.PID)

	s.bus.Publish(event.NewRunStartedEvent(id, req.label, req.slot, req.root, p.PID))
	s.logger.WithRun(id).WithSlot(req.slot).Info("run started", "label", req.label, "pid", p.PID)

	s.pumps.Add(1)
	go s.pump(id, p)

	return &Handle{RunID: id, Label: req.label, Slot: req.slot, PID: p.PID, Future: future}, nil
}

// agentSpec builds the agent invocation. With a shell configured the
// agent runs as `shell -c 'exec "$AGENT_CLI" "$@"'` so login PATH setup
// applies while arguments still pass unquoted.
func (s *Service) agentSpec(root, prompt string) proc.Spec {
	args := append([]string{}, s.cfg.Agent.Flags...)
	args = append(args, "-p", prompt)
	env := []string{"PROJECT_ROOT=" + root}

	if s.cfg.Agent.Shell == "" {
		return proc.Spec{Dir: root, Path: s.cfg.Agent.CLIPath, Args: args, Env: env, UsePTY: s.cfg.Launcher.UsePTY}
	}
	shellArgs := append([]string{"-c", `exec "$AGENT_CLI" "$@"`, "agent"}, args...)
	return proc.Spec{
		Dir:    root,
		Path:   s.cfg.Agent.Shell,
		Args:   shellArgs,
		Env:    append(env, "AGENT_CLI="+s.cfg.Agent.CLIPath),
		UsePTY: s.cfg.Launcher.UsePTY,
	}
}

func (s *Service) shell() string {
	if s.cfg.Agent.Shell != "" {
		return s.cfg.Agent.Shell
	}
	return "sh"
}

// Stop kills a run's process group and marks the run done right away. A
// failed kill is logged; the run is marked done regardless. When the
// process exits later, its partial output is neither persisted nor handed
// to a completion handler.
func (s *Service) Stop(runID string) error {
	r, ok := s.registry.Select(runID)
	if !ok {
		return errors.NewNotFoundError("run", runID).WithCause(errors.ErrRunNotFound)
	}
	if r.IsDone() {
		return nil
	}
	log := s.logger.WithRun(r.ID)

	var killErr error
	if pid, ok := s.stopPID(r.ID); ok {
		if killErr = s.spawner.Kill(pid); killErr != nil {
			log.Warn("kill failed", "pid", pid, "error", killErr)
		}
	}
	if s.registry.MarkDone(r.ID, s.now()) {
		s.bus.Publish(event.NewRunStoppedEvent(r.ID, killErr))
		log.Info("run stopped")
	}
	return nil
}

// StopAll stops every run that is still running.
func (s *Service) StopAll(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	for _, id := range s.registry.Running() {
		id := id
		g.Go(func() error { return s.Stop(id) })
	}
	return g.Wait()
}

func validateSlot(slot int) error {
	if slot < 1 || slot > MaxSlot {
		return errors.NewValidationError(fmt.Sprintf("slot must be between 1 and %d", MaxSlot)).
			WithField("slot").WithValue(slot).WithCause(errors.ErrInvalidSlot)
	}
	return nil
}

func checkRoot(root string) error {
	if root == "" {
		return errors.NewLaunchError("project root is required", errors.ErrInvalidProjectRoot)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return errors.NewLaunchError(fmt.Sprintf("project root %q is not a directory", root), errors.ErrInvalidProjectRoot).
			WithProjectRoot(root)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
