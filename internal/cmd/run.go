package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/runctl/internal/app"
	"github.com/Iron-Ham/runctl/internal/cmd/cmdutil"
	"github.com/Iron-Ham/runctl/internal/event"
	"github.com/Iron-Ham/runctl/internal/orchestrator"
	"github.com/Iron-Ham/runctl/internal/run"
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Launch one tracked agent run and stream its output",
	Long: `Launch the agent in the project directory on a terminal slot and stream
its output until it exits.

With --output the run's stdout is saved to that project-relative path when
the run completes. The path must match an allowed output pattern.

Interrupting runctl stops the run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

var (
	runSlot       int
	runPromptFile string
	runOutput     string
	runOnComplete string
	runLabel      string
	runQuiet      bool
)

func init() {
	runCmd.Flags().IntVarP(&runSlot, "slot", "s", 1, "Terminal slot (1-3)")
	runCmd.Flags().StringVarP(&runPromptFile, "prompt-file", "f", "", "Read the prompt from a file (- for stdin)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Save stdout to this project-relative path on completion")
	runCmd.Flags().StringVar(&runOnComplete, "on-complete", "", "Completion tag (analyze-doc cleans agent chatter before saving)")
	runCmd.Flags().StringVar(&runLabel, "label", "", "Run label (default: Terminal <slot>)")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Do not stream output")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.LoadRuntime()
	if err != nil {
		return err
	}

	var inline string
	if len(args) == 1 {
		inline = args[0]
	}
	prompt, err := cmdutil.ReadPrompt(rt.Fs, cmd.InOrStdin(), inline, runPromptFile)
	if err != nil {
		_ = rt.Close()
		return err
	}

	ctx, stop := cmdutil.SignalContext(cmd.Context())
	defer stop()

	p := cmdutil.NewPrinter(cmd.OutOrStdout())
	unsubscribe := streamRun(rt.Bus, p, runQuiet)
	defer unsubscribe()

	h, err := rt.Service.LaunchSingle(ctx, orchestrator.SingleRequest{
		ProjectRoot: rt.ProjectRoot,
		Prompt:      prompt,
		Label:       runLabel,
		Slot:        runSlot,
		Meta:        runMeta(rt, runOutput, runOnComplete),
	})
	if err != nil {
		_ = rt.Close()
		return err
	}
	p.Println(p.Muted(fmt.Sprintf("%s started (%s, pid %d)", h.Label, h.RunID, h.PID)))

	code, err := awaitRun(ctx, rt, h)
	if cerr := rt.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("%s exited with code %d", h.Label, code)
	}
	return nil
}

func runMeta(rt *app.Runtime, output, onComplete string) *run.Meta {
	if output == "" && onComplete == "" {
		return nil
	}
	return &run.Meta{
		ProjectID:  rt.ProjectID,
		OutputPath: output,
		OnComplete: onComplete,
	}
}

// awaitRun waits for the run's future. On interrupt it stops the run and
// still waits briefly for the exit to be dispatched.
func awaitRun(ctx context.Context, rt *app.Runtime, h *orchestrator.Handle) (int, error) {
	res, err := h.Future.Wait(ctx)
	if err == nil {
		return res.ExitCode, nil
	}
	if stopErr := rt.Service.Stop(h.RunID); stopErr != nil {
		return 0, stopErr
	}
	grace, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if res, werr := h.Future.Wait(grace); werr == nil {
		return res.ExitCode, ctx.Err()
	}
	return 0, ctx.Err()
}

// streamRun prints log lines and completion notices from bus until the
// returned function is called.
func streamRun(bus *event.Bus, p *cmdutil.Printer, quiet bool) func() {
	var ids []string
	if !quiet {
		ids = append(ids, bus.Subscribe(event.TypeRunLog, func(e event.Event) {
			if ev, ok := e.(event.RunLogEvent); ok {
				p.Println(ev.Line)
			}
		}))
	}
	ids = append(ids,
		bus.Subscribe(event.TypeRunURLDetected, func(e event.Event) {
			if ev, ok := e.(event.RunURLDetectedEvent); ok {
				p.Println(p.Title("Local server: " + ev.URL))
			}
		}),
		bus.Subscribe(event.TypeRunStopped, func(e event.Event) {
			if ev, ok := e.(event.RunStoppedEvent); ok {
				p.Println(p.Status("stopped"), p.Muted(ev.RunID))
			}
		}),
		bus.Subscribe(event.TypeOutputWritten, func(e event.Event) {
			if ev, ok := e.(event.OutputWrittenEvent); ok {
				p.Println(p.Status("ok"), "wrote", ev.Path)
			}
		}),
		bus.Subscribe(event.TypeOutputFailed, func(e event.Event) {
			if ev, ok := e.(event.OutputWriteFailedEvent); ok {
				p.Println(p.Status("failed"), "could not write", ev.Path+":", ev.Err)
			}
		}),
	)
	return func() {
		for _, id := range ids {
			bus.Unsubscribe(id)
		}
	}
}
