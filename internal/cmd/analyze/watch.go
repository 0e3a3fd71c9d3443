package analyze

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/runctl/internal/analyze"
	"github.com/Iron-Ham/runctl/internal/cmd/cmdutil"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print queue counts whenever the analyze queue changes",
	Long: `Follow the analyze queue file and print a summary line each time it is
written, for example by "runctl analyze run" in another terminal.
Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.LoadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ctx, stop := cmdutil.SignalContext(cmd.Context())
	defer stop()

	p := cmdutil.NewPrinter(cmd.OutOrStdout())
	store := rt.QueueStore()
	if err := rt.Fs.MkdirAll(rt.StateDir, 0755); err != nil {
		return err
	}

	show := func(q analyze.QueueData, err error) {
		stamp := p.Muted(time.Now().Format("15:04:05"))
		if err != nil {
			p.Println(stamp, p.Status("failed"), err)
			return
		}
		p.Println(stamp, summary(p, q))
	}
	show(store.Read())
	return analyze.Watch(ctx, store, show)
}
