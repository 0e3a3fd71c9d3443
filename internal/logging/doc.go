// Package logging provides structured JSON logging for runctl.
//
// A [Logger] wraps log/slog. The root logger is created once per command
// and child loggers carry run, job, slot, or phase attributes so a single
// debug.log can be filtered per run afterwards:
//
//	logger, err := logging.NewLoggerWithRotation(stateDir, "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//		return err
//	}
//	defer logger.Close()
//
//	runLog := logger.WithPhase("dispatcher").WithRun(runID)
//	runLog.Warn("output write failed", "path", outputPath, "error", err)
//
// The file is rotated by [RotatingWriter] once it exceeds the configured
// size. Tests use [NopLogger].
package logging
