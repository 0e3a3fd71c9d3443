package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/runctl/internal/cmd/analyze"
	"github.com/Iron-Ham/runctl/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "runctl",
	Short: "Launch and track coding agent runs",
	Long: `runctl launches an external coding agent in a project directory,
streams its output, and persists what it produces.

Runs can be started on one of three terminal slots, all three at once
(implement), or in batches from the analyze queue.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/runctl/config.yaml)")
	rootCmd.PersistentFlags().StringP("project", "C", "", "project root (default is the current directory)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))

	analyze.Register(rootCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/runctl")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("RUNCTL")
	// e.g., RUNCTL_LAUNCHER_STAGGER_MS for launcher.stagger_ms
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// The agent path keeps its historical unprefixed variable.
	_ = viper.BindEnv("agent.cli_path", "RUNCTL_AGENT_CLI_PATH", "AGENT_CLI_PATH")

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
