// Package cmdutil holds helpers shared by runctl subcommands.
package cmdutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/runctl/internal/app"
	"github.com/Iron-Ham/runctl/internal/config"
)

// ProjectRoot returns the --project flag value or the working directory.
func ProjectRoot() (string, error) {
	if p := viper.GetString("project"); p != "" {
		return p, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return cwd, nil
}

// LoadRuntime validates configuration and builds a runtime for the
// selected project.
func LoadRuntime(opts ...app.Option) (*app.Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	root, err := ProjectRoot()
	if err != nil {
		return nil, err
	}
	rt, err := app.New(cfg, root, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	return rt, nil
}

// SignalContext returns a context canceled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// ReadPrompt returns inline when set, otherwise the contents of file.
// A file of "-" reads stdin.
func ReadPrompt(fs afero.Fs, stdin io.Reader, inline, file string) (string, error) {
	switch {
	case inline != "":
		return inline, nil
	case file == "":
		return "", fmt.Errorf("a prompt is required (--prompt or --prompt-file)")
	case file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt from stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	data, err := afero.ReadFile(fs, file)
	if err != nil {
		return "", fmt.Errorf("read prompt file: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("prompt file %s is empty", file)
	}
	return prompt, nil
}
