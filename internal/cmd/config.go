package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/runctl/internal/cmd/cmdutil"
	"github.com/Iron-Ham/runctl/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify runctl configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a commented default config file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  runctl config set agent.cli_path /usr/local/bin/agent
  runctl config set launcher.stagger_ms 250
  runctl config set output.allowed_patterns "**.md,**.txt"
  runctl config set projects.web ~/src/web

List values are comma separated. The result is validated before it is
written.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd, configPathCmd, configInitCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	p := cmdutil.NewPrinter(cmd.OutOrStdout())
	if used := viper.ConfigFileUsed(); used != "" {
		p.Println(p.Muted("# Config file: " + used))
	} else {
		p.Println(p.Muted("# Config file: (none - using defaults)"))
	}
	if _, err := config.Load(); err != nil {
		p.Println(p.Status("failed"), err)
	}

	settings := viper.AllSettings()
	delete(settings, "config")
	delete(settings, "project")
	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("render configuration: %w", err)
	}
	p.Printf("%s", out)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	p := cmdutil.NewPrinter(cmd.OutOrStdout())
	if used := viper.ConfigFileUsed(); used != "" {
		p.Printf("Active config: %s\n", used)
	} else {
		p.Printf("Default path: %s (not created)\n", config.ConfigFile())
	}
	p.Println("\nSearch paths:")
	p.Printf("  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	p.Println("  2. $HOME/.config/runctl/config.yaml")
	p.Println("  3. ./config.yaml (current directory)")
	p.Println("\nEnvironment variables: RUNCTL_* (e.g., RUNCTL_LAUNCHER_STAGGER_MS), AGENT_CLI_PATH")
	return nil
}

const defaultConfigFile = `# runctl configuration

agent:
  # Agent executable; AGENT_CLI_PATH overrides it
  cli_path: agent
  # Passed before "-p <prompt>"
  flags: ["--trust"]
  # Every launch runs through this shell so login PATH setup applies
  shell: bash

launcher:
  # Pause between slots of "runctl implement"
  stagger_ms: 400
  # Run agents under a pseudo-terminal
  use_pty: false

analyze:
  # Jobs running at once
  concurrency: 3
  # Project-relative directory with prompts and generated documents
  docs_root: .cursor
  # Optional .yaml or .toml file replacing the built-in job list
  catalog_file: ""
  # Shorter documents are replaced with a placeholder
  min_document_length: 200

output:
  # Globs a saved output path must match
  allowed_patterns: ["**.md", "**.txt", "**.json"]
  # Remove agent chatter from analyze documents
  strip_artifacts: true

history:
  enabled: true

logging:
  enabled: true
  # DEBUG, INFO, WARN, or ERROR
  level: INFO

paths:
  # Relative paths resolve against the project root
  state_dir: .runctl

# Known projects by id, used to resolve output paths
projects: {}
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	file := config.ConfigFile()
	if _, err := os.Stat(file); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'runctl config set' to modify values", file)
	}
	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(file, []byte(defaultConfigFile), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	cmdutil.NewPrinter(cmd.OutOrStdout()).Printf("Created config file at %s\n", file)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, raw := strings.ToLower(args[0]), args[1]

	value, err := parseConfigValue(key, raw)
	if err != nil {
		return err
	}
	viper.Set(key, value)
	if _, err := config.Load(); err != nil {
		return err
	}

	file := viper.ConfigFileUsed()
	if file == "" {
		file = config.ConfigFile()
		if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := viper.WriteConfigAs(file); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	p := cmdutil.NewPrinter(cmd.OutOrStdout())
	p.Printf("Set %s = %v\n", key, value)
	p.Printf("Config saved to %s\n", file)
	return nil
}

// parseConfigValue converts raw to the type of key's default value.
func parseConfigValue(key, raw string) (any, error) {
	if id, ok := strings.CutPrefix(key, "projects."); ok {
		if id == "" || strings.Contains(id, ".") {
			return nil, fmt.Errorf("invalid project id in %s", key)
		}
		return raw, nil
	}
	if !slices.Contains(viper.AllKeys(), key) || key == "config" || key == "project" {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'runctl config show' to see valid keys", key)
	}

	switch viper.Get(key).(type) {
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return b, nil
	case int, int64:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected an integer", key)
		}
		return n, nil
	case []string, []any:
		var items []string
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		return items, nil
	}
	return raw, nil
}
