//go:build unix

package proc

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/Iron-Ham/runctl/internal/errors"
	"github.com/Iron-Ham/runctl/internal/logging"
)

// feedBuffer lets a chatty process run ahead of a slow consumer briefly.
const feedBuffer = 256

// drainTimeout bounds how long the exited event waits for output still in
// flight after the process was reaped.
const drainTimeout = 2 * time.Second

// ExecSpawner runs processes with os/exec. Each process leads its own
// process group so Kill reaches everything it spawned.
type ExecSpawner struct {
	logger       *logging.Logger
	drainTimeout time.Duration
}

// NewExecSpawner creates an ExecSpawner. A nil logger discards output.
func NewExecSpawner(logger *logging.Logger) *ExecSpawner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &ExecSpawner{logger: logger.WithPhase("spawner"), drainTimeout: drainTimeout}
}

func (s *ExecSpawner) command(spec Spec) (*exec.Cmd, error) {
	info, err := os.Stat(spec.Dir)
	if err != nil || !info.IsDir() {
		return nil, errors.NewLaunchError(fmt.Sprintf("working directory %q is not usable", spec.Dir), errors.ErrInvalidProjectRoot).
			WithProjectRoot(spec.Dir)
	}
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	return cmd, nil
}

// Start implements Spawner.
//
// The child writes to plain os.Pipe files rather than exec's copying
// pipes, so cmd.Wait returns as soon as the child exits even when a
// background grandchild still holds the write ends.
func (s *ExecSpawner) Start(spec Spec) (*Process, error) {
	cmd, err := s.command(spec)
	if err != nil {
		return nil, err
	}
	if spec.UsePTY {
		return s.startPTY(cmd)
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, errors.NewLaunchError("stdout pipe", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return nil, errors.NewLaunchError("stderr pipe", err)
	}
	cmd.Stdout, cmd.Stderr = stdoutW, stderrW
	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return nil, errors.NewLaunchError(fmt.Sprintf("start %s", spec.Path), errors.Join(errors.ErrSpawnFailed, err)).
			WithProjectRoot(spec.Dir)
	}
	// The child holds its own copies now.
	closeAll(stdoutW, stderrW)

	pid := cmd.Process.Pid
	log := s.logger.With("pid", pid)
	f := newFeed(feedBuffer)
	readers := &sync.WaitGroup{}
	readers.Add(2)
	go func() {
		defer readers.Done()
		defer closeAll(stdoutR)
		readLines(stdoutR, "", f, log)
	}()
	go func() {
		defer readers.Done()
		defer closeAll(stderrR)
		readLines(stderrR, StderrPrefix, f, log)
	}()
	go s.reap(cmd, f, readers, log)

	log.Debug("process started", "dir", spec.Dir)
	return &Process{PID: pid, events: f.ch}, nil
}

// startPTY runs cmd on a pseudo-terminal. pty.Start puts the child in a
// new session, so its pid is also its process group id.
func (s *ExecSpawner) startPTY(cmd *exec.Cmd) (*Process, error) {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, errors.NewLaunchError("start on pty", errors.Join(errors.ErrSpawnFailed, err)).
			WithProjectRoot(cmd.Dir)
	}

	log := s.logger.With("pid", cmd.Process.Pid)
	f := newFeed(feedBuffer)
	readers := &sync.WaitGroup{}
	readers.Add(1)
	go func() {
		defer readers.Done()
		defer closeAll(ptmx)
		readLines(ptmx, "", f, log)
	}()
	go s.reap(cmd, f, readers, log)

	log.Debug("process started on pty", "dir", cmd.Dir)
	return &Process{PID: cmd.Process.Pid, events: f.ch}, nil
}

// reap waits for cmd to exit, gives the readers drainTimeout to flush what
// is already buffered, then sends the exited event. Readers left running
// keep consuming the stream so a surviving grandchild never blocks on a
// full pipe.
func (s *ExecSpawner) reap(cmd *exec.Cmd, f *feed, readers *sync.WaitGroup, log *logging.Logger) {
	code := exitCode(cmd.Wait())

	drained := make(chan struct{})
	go func() {
		readers.Wait()
		close(drained)
	}()
	timer := time.NewTimer(s.drainTimeout)
	defer timer.Stop()
	select {
	case <-drained:
	case <-timer.C:
		log.Warn("process exited while its output is still open; later output is dropped")
	}

	log.Debug("process exited", "exit_code", code)
	f.exit(code)
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// Kill implements Spawner. It signals the group first and falls back to
// the single pid.
func (s *ExecSpawner) Kill(pid int) error {
	if pid <= 0 {
		return errors.NewValidationError("pid must be positive").WithField("pid").WithValue(pid)
	}
	groupErr := syscall.Kill(-pid, syscall.SIGKILL)
	if groupErr == nil {
		return nil
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("kill %d: %w", pid, errors.Join(groupErr, err))
	}
	return nil
}

// Detach implements Spawner. The child gets its own session so it outlives
// the terminal runctl was started from.
func (s *ExecSpawner) Detach(spec Spec) error {
	cmd, err := s.command(spec)
	if err != nil {
		return err
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, nil, nil

	if err := cmd.Start(); err != nil {
		return errors.NewLaunchError("start detached session", errors.Join(errors.ErrSpawnFailed, err)).
			WithProjectRoot(spec.Dir)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("release detached process: %w", err)
	}
	s.logger.Info("detached session started", "pid", pid, "dir", spec.Dir)
	return nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
