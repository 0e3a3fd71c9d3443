package analyze

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/runctl/internal/analyze"
	"github.com/Iron-Ham/runctl/internal/cmd/cmdutil"
	"github.com/Iron-Ham/runctl/internal/errors"
	"github.com/Iron-Ham/runctl/internal/event"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run pending analyze jobs",
	Long: `Run every pending job in the analyze queue, in batches of at most
analyze.concurrency jobs. A batch is finished before the next one starts.

Failed jobs are recorded and do not stop the run. Interrupting stops the
running agents and records the current batch as failed.`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.LoadRuntime()
	if err != nil {
		return err
	}

	ctx, stop := cmdutil.SignalContext(cmd.Context())
	defer stop()

	actor := analyze.NewActor(rt.QueueStore(), rt.Logger)
	defer actor.Close()

	p := cmdutil.NewPrinter(cmd.OutOrStdout())
	progress := make(chan analyze.Progress, 1)
	sched := analyze.NewScheduler(actor, rt.JobRunner(),
		analyze.WithConcurrency(rt.Config.Analyze.Concurrency),
		analyze.WithBus(rt.Bus),
		analyze.WithLogger(rt.Logger),
		analyze.WithProgress(func(pr analyze.Progress) { progress <- pr }),
	)

	batchSub := rt.Bus.Subscribe(event.TypeAnalyzeBatch, func(e event.Event) {
		if ev, ok := e.(event.AnalyzeBatchStartedEvent); ok {
			p.Printf("%s %v\n", p.Title(fmt.Sprintf("batch %d:", ev.Batch)), ev.JobIDs)
		}
	})
	failSub := rt.Bus.Subscribe(event.TypeAnalyzeJobFailed, func(e event.Event) {
		if ev, ok := e.(event.AnalyzeJobFailedEvent); ok {
			p.Printf("  %s %s: %v\n", p.Status("failed"), ev.JobID, ev.Err)
		}
	})
	defer rt.Bus.Unsubscribe(batchSub)
	defer rt.Bus.Unsubscribe(failSub)

	start := time.Now()
	var final analyze.Progress
	var g errgroup.Group
	g.Go(func() error {
		defer close(progress)
		var err error
		final, err = sched.Run(ctx)
		return err
	})
	g.Go(func() error {
		for pr := range progress {
			p.Printf("  %s %d/%d done, %d failed\n", p.Muted("progress"), pr.Completed, pr.Total, pr.Failed)
		}
		return nil
	})
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	if errors.Is(runErr, analyze.ErrQueueBusy) {
		return fmt.Errorf("%w\nIf no other 'runctl analyze run' is active, recover with 'runctl analyze reset'", runErr)
	}
	if runErr != nil {
		return runErr
	}

	if final.Batches == 0 {
		p.Println("No pending jobs")
		return nil
	}
	p.Printf("Finished %d batches in %s: %d done, %d failed of %d\n",
		final.Batches, time.Since(start).Round(time.Second), final.Completed, final.Failed, final.Total)
	if final.Failed > 0 {
		return fmt.Errorf("%d analyze jobs failed", final.Failed)
	}
	return nil
}
