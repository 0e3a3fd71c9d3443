package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/runctl/internal/cmd/cmdutil"
	"github.com/Iron-Ham/runctl/internal/event"
	"github.com/Iron-Ham/runctl/internal/orchestrator"
)

var implementCmd = &cobra.Command{
	Use:   "implement [prompt]",
	Short: "Launch the agent on all three slots at once",
	Long: `Implement All launches the agent on terminal slots 1, 2, and 3 in order,
pausing briefly between launches.

Pass one prompt to send it to every slot, or --prompt-file three times to
give each slot its own prompt. Output lines are prefixed with their slot.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImplement,
}

var implementPromptFiles []string

func init() {
	implementCmd.Flags().StringArrayVarP(&implementPromptFiles, "prompt-file", "f", nil, "Prompt file, once shared or three times in slot order")
	rootCmd.AddCommand(implementCmd)
}

func runImplement(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.LoadRuntime()
	if err != nil {
		return err
	}

	var prompts [orchestrator.MaxSlot]string
	switch {
	case len(args) == 1 && len(implementPromptFiles) > 0:
		err = fmt.Errorf("pass a prompt or --prompt-file, not both")
	case len(args) == 1:
		prompts = [orchestrator.MaxSlot]string{args[0], args[0], args[0]}
	case len(implementPromptFiles) == 1:
		var shared string
		if shared, err = cmdutil.ReadPrompt(rt.Fs, cmd.InOrStdin(), "", implementPromptFiles[0]); err == nil {
			prompts = [orchestrator.MaxSlot]string{shared, shared, shared}
		}
	case len(implementPromptFiles) == orchestrator.MaxSlot:
		for i, f := range implementPromptFiles {
			if prompts[i], err = cmdutil.ReadPrompt(rt.Fs, cmd.InOrStdin(), "", f); err != nil {
				break
			}
		}
	default:
		err = fmt.Errorf("--prompt-file must be given once or %d times, got %d", orchestrator.MaxSlot, len(implementPromptFiles))
	}
	if err != nil {
		_ = rt.Close()
		return err
	}

	ctx, stop := cmdutil.SignalContext(cmd.Context())
	defer stop()

	p := cmdutil.NewPrinter(cmd.OutOrStdout())
	unsubscribe := streamSlots(rt.Bus, p)
	defer unsubscribe()

	handles, launchErr := rt.Service.ImplementAll(ctx, rt.ProjectRoot, prompts)
	if launchErr != nil {
		p.Printf("launched %d of %d slots: %v\n", len(handles), orchestrator.MaxSlot, launchErr)
	}

	// Each slot is awaited on its own; one finishing early does not cancel
	// the others.
	codes := make([]int, len(handles))
	var g errgroup.Group
	for i, h := range handles {
		i, h := i, h
		g.Go(func() error {
			code, err := awaitRun(ctx, rt, h)
			codes[i] = code
			return err
		})
	}
	waitErr := g.Wait()
	if ctx.Err() != nil {
		_ = rt.Service.StopAll(context.Background())
	}
	closeErr := rt.Close()

	failed := 0
	for i, h := range handles {
		status := "done"
		if codes[i] != 0 {
			status = "failed"
			failed++
		}
		p.Printf("%s %s exit %d\n", p.Status(status), h.Label, codes[i])
	}
	switch {
	case launchErr != nil:
		return launchErr
	case waitErr != nil:
		return waitErr
	case closeErr != nil:
		return closeErr
	case failed > 0:
		return fmt.Errorf("%d of %d slots exited non-zero", failed, len(handles))
	}
	return nil
}

// streamSlots prints each run's log lines prefixed with its slot.
func streamSlots(bus *event.Bus, p *cmdutil.Printer) func() {
	var (
		mu    sync.Mutex
		slots = make(map[string]int)
	)
	started := bus.Subscribe(event.TypeRunStarted, func(e event.Event) {
		if ev, ok := e.(event.RunStartedEvent); ok {
			mu.Lock()
			slots[ev.RunID] = ev.Slot
			mu.Unlock()
		}
	})
	logs := bus.Subscribe(event.TypeRunLog, func(e event.Event) {
		ev, ok := e.(event.RunLogEvent)
		if !ok {
			return
		}
		mu.Lock()
		slot := slots[ev.RunID]
		mu.Unlock()
		p.Println(p.Muted(fmt.Sprintf("[%d]", slot)), ev.Line)
	})
	return func() {
		bus.Unsubscribe(started)
		bus.Unsubscribe(logs)
	}
}
