package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError is one invalid config value.
type ValidationError struct {
	Field   string // config key, e.g. "analyze.concurrency"
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid value found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return ""
	case 1:
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels lists accepted logging.level values.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// maxConcurrency caps analyze.concurrency to the number of terminal slots.
const maxConcurrency = 3

// Validate returns every invalid value in c.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateAgent()...)
	errs = append(errs, c.validateLauncher()...)
	errs = append(errs, c.validateAnalyze()...)
	errs = append(errs, c.validateOutput()...)
	errs = append(errs, c.validateHistory()...)
	errs = append(errs, c.validateLogging()...)
	return errs
}

func (c *Config) validateAgent() []ValidationError {
	var errs []ValidationError
	if strings.TrimSpace(c.Agent.CLIPath) == "" {
		errs = append(errs, ValidationError{Field: "agent.cli_path", Value: c.Agent.CLIPath, Message: "must not be empty"})
	}
	if strings.TrimSpace(c.Agent.Shell) == "" {
		errs = append(errs, ValidationError{Field: "agent.shell", Value: c.Agent.Shell, Message: "must not be empty"})
	}
	return errs
}

func (c *Config) validateLauncher() []ValidationError {
	const maxStaggerMs = 10_000
	if c.Launcher.StaggerMs < 0 || c.Launcher.StaggerMs > maxStaggerMs {
		return []ValidationError{{
			Field:   "launcher.stagger_ms",
			Value:   c.Launcher.StaggerMs,
			Message: fmt.Sprintf("must be between 0 and %d", maxStaggerMs),
		}}
	}
	return nil
}

func (c *Config) validateAnalyze() []ValidationError {
	var errs []ValidationError
	if c.Analyze.Concurrency < 1 || c.Analyze.Concurrency > maxConcurrency {
		errs = append(errs, ValidationError{
			Field:   "analyze.concurrency",
			Value:   c.Analyze.Concurrency,
			Message: fmt.Sprintf("must be between 1 and %d", maxConcurrency),
		})
	}
	if c.Analyze.QueueFile == "" {
		errs = append(errs, ValidationError{Field: "analyze.queue_file", Value: c.Analyze.QueueFile, Message: "must not be empty"})
	}
	if filepath.IsAbs(c.Analyze.DocsRoot) || strings.HasPrefix(filepath.Clean(c.Analyze.DocsRoot), "..") {
		errs = append(errs, ValidationError{Field: "analyze.docs_root", Value: c.Analyze.DocsRoot, Message: "must be relative to the project root"})
	}
	if ext := strings.ToLower(filepath.Ext(c.Analyze.CatalogFile)); c.Analyze.CatalogFile != "" &&
		!slices.Contains([]string{".yaml", ".yml", ".toml"}, ext) {
		errs = append(errs, ValidationError{Field: "analyze.catalog_file", Value: c.Analyze.CatalogFile, Message: "must be a .yaml, .yml, or .toml file"})
	}
	if c.Analyze.MinDocumentLength < 0 {
		errs = append(errs, ValidationError{Field: "analyze.min_document_length", Value: c.Analyze.MinDocumentLength, Message: "must be non-negative"})
	}
	return errs
}

func (c *Config) validateOutput() []ValidationError {
	var errs []ValidationError
	if len(c.Output.AllowedPatterns) == 0 {
		errs = append(errs, ValidationError{Field: "output.allowed_patterns", Value: c.Output.AllowedPatterns, Message: "must list at least one pattern"})
	}
	for i, p := range c.Output.AllowedPatterns {
		if _, err := glob.Compile(p, '/'); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("output.allowed_patterns[%d]", i),
				Value:   p,
				Message: fmt.Sprintf("invalid glob: %v", err),
			})
		}
	}
	if c.Output.ErrorBuffer < 1 {
		errs = append(errs, ValidationError{Field: "output.error_buffer", Value: c.Output.ErrorBuffer, Message: "must be positive"})
	}
	return errs
}

func (c *Config) validateHistory() []ValidationError {
	if c.History.Enabled && c.History.File == "" {
		return []ValidationError{{Field: "history.file", Value: c.History.File, Message: "must be set when history is enabled"}}
	}
	return nil
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_size_mb", Value: c.Logging.MaxSizeMB, Message: "must be non-negative"})
	}
	if c.Logging.MaxBackups < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_backups", Value: c.Logging.MaxBackups, Message: "must be non-negative"})
	}
	return errs
}
