package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/runctl/internal/cmd/cmdutil"
	"github.com/Iron-Ham/runctl/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently finished runs",
	Long: `List runs recorded in the history database, newest first.

History is kept in the state directory and survives restarts. Disable it
with history.enabled: false.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var (
	historyLimit int
	historyJSON  bool
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.LoadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if rt.History == nil {
		return fmt.Errorf("history is disabled (set history.enabled to true)")
	}
	entries, err := rt.History.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	if historyJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	p := cmdutil.NewPrinter(cmd.OutOrStdout())
	if len(entries) == 0 {
		p.Println("No runs recorded yet")
		return nil
	}
	p.Printf("%s", p.Table(
		[]string{"RUN", "LABEL", "SLOT", "STARTED", "DURATION", "EXIT", "OUTPUT"},
		historyRows(p, entries),
	))
	return nil
}

func historyRows(p *cmdutil.Printer, entries []history.Entry) [][]string {
	width := p.Width()
	labelWidth := 0
	if width > 0 {
		// Leave the label whatever the fixed columns do not use.
		labelWidth = max(width-90, 16)
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		slot := "-"
		if e.Slot > 0 {
			slot = strconv.Itoa(e.Slot)
		}
		exit := p.Status("running")
		if e.ExitCode != nil {
			exit = strconv.Itoa(*e.ExitCode)
		} else if !e.DoneAt.IsZero() {
			exit = p.Status("stopped")
		}
		rows = append(rows, []string{
			shortID(e.ID),
			cmdutil.Truncate(e.Label, labelWidth),
			slot,
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Duration.Round(time.Second).String(),
			exit,
			e.OutputPath,
		})
	}
	return rows
}

// shortID trims "run-<uuid>" to its first uuid group.
func shortID(id string) string {
	const n = len("run-") + 8
	if len(id) > n {
		return id[:n]
	}
	return id
}
