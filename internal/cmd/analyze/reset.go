package analyze

import (
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/runctl/internal/analyze"
	"github.com/Iron-Ham/runctl/internal/cmd/cmdutil"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Requeue jobs left running by an interrupted run",
	Long: `Move every running job in the analyze queue back to pending.

A job stays running when the process that ran it crashed. "runctl analyze
run" refuses to start while such jobs exist, because they may belong to a
run that is still active. Use reset only when no other run is going.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.LoadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	actor := analyze.NewActor(rt.QueueStore(), rt.Logger)
	defer actor.Close()

	n, err := actor.ResetRunning(cmd.Context())
	if err != nil {
		return err
	}
	p := cmdutil.NewPrinter(cmd.OutOrStdout())
	if n == 0 {
		p.Println("No running jobs")
		return nil
	}
	rt.Logger.Warn("analyze jobs reset to pending", "count", n)
	p.Printf("Reset %d running jobs to pending\n", n)
	return nil
}
