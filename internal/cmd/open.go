package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/runctl/internal/cmd/cmdutil"
)

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open an untracked interactive agent session",
	Long: `Open the configured terminal command (agent.terminal_command) in the
project directory. The session is not tracked: it has no run id, no log,
and nothing happens when it ends.`,
	Args: cobra.NoArgs,
	RunE: runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)
}

func runOpen(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.LoadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if err := rt.Service.LaunchUntracked(rt.ProjectRoot); err != nil {
		return err
	}
	cmdutil.NewPrinter(cmd.OutOrStdout()).Printf("Opened a session in %s\n", rt.ProjectRoot)
	return nil
}
