// Package app assembles a runctl runtime for one project from configuration.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/runctl/internal/analyze"
	"github.com/Iron-Ham/runctl/internal/completion"
	"github.com/Iron-Ham/runctl/internal/config"
	"github.com/Iron-Ham/runctl/internal/errors"
	"github.com/Iron-Ham/runctl/internal/event"
	"github.com/Iron-Ham/runctl/internal/history"
	"github.com/Iron-Ham/runctl/internal/logging"
	"github.com/Iron-Ham/runctl/internal/orchestrator"
	"github.com/Iron-Ham/runctl/internal/proc"
	"github.com/Iron-Ham/runctl/internal/run"
)

// Runtime holds every long-lived component of one runctl invocation.
type Runtime struct {
	Config      *config.Config
	ProjectID   string
	ProjectRoot string
	StateDir    string

	Fs       afero.Fs
	Logger   *logging.Logger
	Bus      *event.Bus
	Registry *run.Registry
	Files    *completion.ProjectWriter
	Output   *completion.OutputWriter
	History  *history.Store // nil when history is disabled
	Service  *orchestrator.Service
}

// Option customizes New.
type Option func(*options)

type options struct {
	fs      afero.Fs
	spawner proc.Spawner
	logger  *logging.Logger
}

// WithFs replaces the OS filesystem for output and queue files.
func WithFs(fs afero.Fs) Option { return func(o *options) { o.fs = fs } }

// WithSpawner replaces the os/exec spawner.
func WithSpawner(s proc.Spawner) Option { return func(o *options) { o.spawner = s } }

// WithLogger replaces the configured debug log.
func WithLogger(l *logging.Logger) Option { return func(o *options) { o.logger = l } }

// New builds a Runtime for the project at projectRoot.
func New(cfg *config.Config, projectRoot string, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := options{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}

	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, errors.NewLaunchError(fmt.Sprintf("project root %q is not a directory", root), errors.ErrInvalidProjectRoot).
			WithProjectRoot(root)
	}

	rt := &Runtime{
		Config:      cfg,
		ProjectID:   ProjectID(cfg, root),
		ProjectRoot: root,
		StateDir:    cfg.Paths.ResolveStateDir(root),
		Fs:          o.fs,
		Bus:         event.NewBus(),
		Registry:    run.NewRegistry(),
	}

	rt.Logger = o.logger
	if rt.Logger == nil {
		if rt.Logger, err = newLogger(cfg, rt.StateDir); err != nil {
			return nil, err
		}
	}

	roots := make(map[string]string, len(cfg.Projects)+1)
	for id, r := range cfg.Projects {
		roots[id] = r
	}
	roots[rt.ProjectID] = root
	if rt.Files, err = completion.NewProjectWriter(o.fs, roots, cfg.Output.AllowedPatterns); err != nil {
		_ = rt.Logger.Close()
		return nil, err
	}
	rt.Output = completion.NewOutputWriter(rt.Files, rt.Bus, rt.Logger, cfg.Output.ErrorBuffer)

	dispatchOpts := []completion.DispatcherOption{
		completion.WithMinDocumentLength(cfg.Analyze.MinDocumentLength),
		completion.WithStripArtifacts(cfg.Output.StripArtifacts),
	}
	if cfg.History.Enabled {
		if err := os.MkdirAll(rt.StateDir, 0755); err != nil {
			rt.closePartial()
			return nil, fmt.Errorf("create state directory: %w", err)
		}
		if rt.History, err = history.Open(filepath.Join(rt.StateDir, cfg.History.File)); err != nil {
			rt.closePartial()
			return nil, err
		}
		dispatchOpts = append(dispatchOpts, completion.WithRecorder(rt.History))
	}

	futures := completion.NewFutureSet()
	handlers := completion.NewHandlerRegistry()
	dispatcher := completion.NewDispatcher(rt.Registry, handlers, futures, rt.Output, rt.Bus, rt.Logger, dispatchOpts...)

	spawner := o.spawner
	if spawner == nil {
		spawner = proc.NewExecSpawner(rt.Logger)
	}
	rt.Service = orchestrator.New(cfg, orchestrator.Deps{
		Registry:   rt.Registry,
		Spawner:    spawner,
		Dispatcher: dispatcher,
		Futures:    futures,
		Handlers:   handlers,
		Bus:        rt.Bus,
		Logger:     rt.Logger,
	})

	rt.Logger.Debug("runtime ready", "project_id", rt.ProjectID, "project_root", root, "state_dir", rt.StateDir)
	return rt, nil
}

func newLogger(cfg *config.Config, stateDir string) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLoggerWithRotation(stateDir, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
}

// ProjectID returns the configured id whose root is root, or the root's
// base name.
func ProjectID(cfg *config.Config, root string) string {
	for id, r := range cfg.Projects {
		if abs, err := filepath.Abs(r); err == nil && abs == root {
			return id
		}
	}
	return filepath.Base(root)
}

// QueueStore returns the analyze queue store under the state directory.
func (rt *Runtime) QueueStore() *analyze.Store {
	return analyze.NewStore(rt.Fs, filepath.Join(rt.StateDir, rt.Config.Analyze.QueueFile))
}

// Catalog returns the configured analyze catalog, or the built-in one.
func (rt *Runtime) Catalog() (analyze.Catalog, error) {
	file := rt.Config.Analyze.CatalogFile
	if file == "" {
		return analyze.DefaultCatalog(rt.Config.Analyze.DocsRoot), nil
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(rt.ProjectRoot, file)
	}
	return analyze.LoadCatalog(rt.Fs, file)
}

// JobRunner returns a runner that launches analyze jobs in this project.
func (rt *Runtime) JobRunner() analyze.JobRunner {
	return analyze.NewAgentRunner(rt.Fs, rt.Service, rt.ProjectID, rt.ProjectRoot, rt.Logger)
}

// Shutdown stops every running run, then waits for dispatch and pending
// writes before closing the stores.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	err := rt.Service.StopAll(ctx)
	return errors.Join(err, rt.Close())
}

// Close waits for launched runs to be dispatched and releases resources.
// It does not stop running processes; use Shutdown for that.
func (rt *Runtime) Close() error {
	rt.Service.Wait()
	rt.Output.Close()
	var errs []error
	if rt.History != nil {
		errs = append(errs, rt.History.Close())
	}
	errs = append(errs, rt.Logger.Close())
	return errors.Join(errs...)
}

func (rt *Runtime) closePartial() {
	rt.Output.Close()
	_ = rt.Logger.Close()
}
