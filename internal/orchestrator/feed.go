package orchestrator

import (
	"github.com/Iron-Ham/runctl/internal/event"
	"github.com/Iron-Ham/runctl/internal/proc"
	"github.com/Iron-Ham/runctl/internal/run"
)

// pump drains one process feed into the registry and dispatches the run
// when the feed closes. A feed that closes without an exit event counts
// as exit code -1.
func (s *Service) pump(runID string, p *proc.Process) {
	defer s.pumps.Done()
	log := s.logger.WithRun(runID)

	exitCode := -1
	for ev := range p.Events() {
		switch ev.Kind {
		case proc.EventLog:
			if !s.registry.AppendLine(runID, ev.Line) {
				continue
			}
			s.bus.Publish(event.NewRunLogEvent(runID, ev.Line))
			if url, ok := run.DetectLocalURL(ev.Line); ok && s.registry.SetLocalURL(runID, url) {
				log.Info("local url detected", "url", url)
				s.bus.Publish(event.NewRunURLDetectedEvent(runID, url))
			}
		case proc.EventExited:
			exitCode = ev.ExitCode
		}
	}

	stopped := s.releasePID(runID)
	log.Debug("process feed closed", "exit_code", exitCode, "stopped", stopped)
	s.bus.Publish(event.NewRunExitedEvent(runID, exitCode))
	if stopped {
		s.dispatcher.DispatchStopped(runID, exitCode)
		return
	}
	s.dispatcher.Dispatch(runID, exitCode)
}

// drain discards a feed that has no run attached.
func drain(p *proc.Process) {
	for range p.Events() {
	}
}
