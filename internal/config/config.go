package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runctl configuration.
type Config struct {
	Agent    AgentConfig       `mapstructure:"agent"`
	Launcher LauncherConfig    `mapstructure:"launcher"`
	Analyze  AnalyzeConfig     `mapstructure:"analyze"`
	Output   OutputConfig      `mapstructure:"output"`
	History  HistoryConfig     `mapstructure:"history"`
	Logging  LoggingConfig     `mapstructure:"logging"`
	Paths    PathsConfig       `mapstructure:"paths"`
	Projects map[string]string `mapstructure:"projects"`
}

// AgentConfig controls how the external agent CLI is invoked.
type AgentConfig struct {
	// CLIPath is the agent executable (default: "agent"). The AGENT_CLI_PATH
	// environment variable overrides it.
	CLIPath string `mapstructure:"cli_path"`
	// Flags are passed before "-p <prompt>" (default: ["--trust"]).
	Flags []string `mapstructure:"flags"`
	// Shell wraps every launch so the user's PATH setup applies (default: "bash").
	Shell string `mapstructure:"shell"`
	// TerminalCommand opens an interactive session for untracked launches.
	// $PROJECT_ROOT is exported to it.
	TerminalCommand string `mapstructure:"terminal_command"`
}

// LauncherConfig controls process launches.
type LauncherConfig struct {
	// StaggerMs is the pause between slots of an Implement All batch (default: 400).
	StaggerMs int `mapstructure:"stagger_ms"`
	// UsePTY runs agents under a pseudo-terminal, merging stdout and stderr.
	UsePTY bool `mapstructure:"use_pty"`
}

// AnalyzeConfig controls the analyze queue scheduler.
type AnalyzeConfig struct {
	// Concurrency bounds jobs running at once (default: 3).
	Concurrency int `mapstructure:"concurrency"`
	// QueueFile is the queue path, relative to the state dir (default: "analyze-queue.json").
	QueueFile string `mapstructure:"queue_file"`
	// DocsRoot is the project-relative directory holding prompts and docs (default: ".cursor").
	DocsRoot string `mapstructure:"docs_root"`
	// CatalogFile optionally replaces the built-in job catalog (.yaml or .toml).
	CatalogFile string `mapstructure:"catalog_file"`
	// MinDocumentLength is the shortest cleaned output accepted as a
	// document before a placeholder is written instead (default: 200).
	MinDocumentLength int `mapstructure:"min_document_length"`
}

// OutputConfig controls how run output is persisted.
type OutputConfig struct {
	// AllowedPatterns are globs a relative output path must match.
	AllowedPatterns []string `mapstructure:"allowed_patterns"`
	// StripArtifacts cleans agent chatter from analyze-doc output (default: true).
	StripArtifacts bool `mapstructure:"strip_artifacts"`
	// ErrorBuffer is the capacity of the write error channel (default: 16).
	ErrorBuffer int `mapstructure:"error_buffer"`
}

// HistoryConfig controls the finished-run history database.
type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// File is relative to the state dir (default: "history.db").
	File string `mapstructure:"file"`
}

// LoggingConfig controls debug logging.
type LoggingConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// PathsConfig controls where runctl keeps state.
type PathsConfig struct {
	// StateDir holds debug.log, the analyze queue, and history. Relative
	// paths resolve against the project root (default: ".runctl").
	StateDir string `mapstructure:"state_dir"`
}

// Default returns the configuration used when no file or env overrides it.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			CLIPath:         "agent",
			Flags:           []string{"--trust"},
			Shell:           "bash",
			TerminalCommand: defaultTerminalCommand(),
		},
		Launcher: LauncherConfig{
			StaggerMs: 400,
		},
		Analyze: AnalyzeConfig{
			Concurrency:       3,
			QueueFile:         "analyze-queue.json",
			DocsRoot:          ".cursor",
			MinDocumentLength: 200,
		},
		Output: OutputConfig{
			AllowedPatterns: []string{"**.md", "**.txt", "**.json"},
			StripArtifacts:  true,
			ErrorBuffer:     16,
		},
		History: HistoryConfig{
			Enabled: true,
			File:    "history.db",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Paths: PathsConfig{
			StateDir: ".runctl",
		},
		Projects: map[string]string{},
	}
}

func defaultTerminalCommand() string {
	if _, err := os.Stat("/System/Applications/Utilities/Terminal.app"); err == nil {
		return `open -a Terminal "$PROJECT_ROOT"`
	}
	return `x-terminal-emulator --working-directory="$PROJECT_ROOT"`
}

// Stagger returns the Implement All pause as a duration.
func (c *LauncherConfig) Stagger() time.Duration {
	return time.Duration(c.StaggerMs) * time.Millisecond
}

// ResolveStateDir returns the absolute state directory for a project.
func (p *PathsConfig) ResolveStateDir(projectRoot string) string {
	dir := p.StateDir
	if dir == "" {
		dir = ".runctl"
	}
	if len(dir) > 1 && dir[0] == '~' && dir[1] == '/' {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, dir[2:])
		}
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(projectRoot, dir)
}

// SetDefaults registers Default() with viper so every key has a value
// even without a config file.
func SetDefaults() {
	d := Default()

	viper.SetDefault("agent.cli_path", d.Agent.CLIPath)
	viper.SetDefault("agent.flags", d.Agent.Flags)
	viper.SetDefault("agent.shell", d.Agent.Shell)
	viper.SetDefault("agent.terminal_command", d.Agent.TerminalCommand)

	viper.SetDefault("launcher.stagger_ms", d.Launcher.StaggerMs)
	viper.SetDefault("launcher.use_pty", d.Launcher.UsePTY)

	viper.SetDefault("analyze.concurrency", d.Analyze.Concurrency)
	viper.SetDefault("analyze.queue_file", d.Analyze.QueueFile)
	viper.SetDefault("analyze.docs_root", d.Analyze.DocsRoot)
	viper.SetDefault("analyze.catalog_file", d.Analyze.CatalogFile)
	viper.SetDefault("analyze.min_document_length", d.Analyze.MinDocumentLength)

	viper.SetDefault("output.allowed_patterns", d.Output.AllowedPatterns)
	viper.SetDefault("output.strip_artifacts", d.Output.StripArtifacts)
	viper.SetDefault("output.error_buffer", d.Output.ErrorBuffer)

	viper.SetDefault("history.enabled", d.History.Enabled)
	viper.SetDefault("history.file", d.History.File)

	viper.SetDefault("logging.enabled", d.Logging.Enabled)
	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", d.Logging.MaxBackups)

	viper.SetDefault("paths.state_dir", d.Paths.StateDir)
	viper.SetDefault("projects", d.Projects)
}

// Load unmarshals the current viper state and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// Get is Load with a fallback to Default on error.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns $XDG_CONFIG_HOME/runctl or ~/.config/runctl.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "runctl")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".runctl"
	}
	return filepath.Join(home, ".config", "runctl")
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
