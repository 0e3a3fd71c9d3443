package analyze

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/runctl/internal/analyze"
	"github.com/Iron-Ham/runctl/internal/cmd/cmdutil"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the analyze queue",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw queue as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.LoadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	store := rt.QueueStore()
	q, err := store.Read()
	if err != nil {
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(q)
	}

	p := cmdutil.NewPrinter(cmd.OutOrStdout())
	if len(q.Jobs) == 0 {
		p.Printf("Queue %s is empty (run \"runctl analyze seed\")\n", store.Path())
		return nil
	}
	p.Println(summary(p, q))
	rows := make([][]string, 0, len(q.Jobs))
	for _, j := range q.Jobs {
		rows = append(rows, []string{j.ID, p.Status(string(j.Status)), j.OutputPath})
	}
	p.Printf("%s", p.Table([]string{"JOB", "STATUS", "OUTPUT"}, rows))
	return nil
}

func summary(p *cmdutil.Printer, q analyze.QueueData) string {
	return fmt.Sprintf("%s %d jobs: %d pending, %d running, %d done, %d failed",
		p.Title("analyze"), len(q.Jobs),
		q.Count(analyze.StatusPending), q.Count(analyze.StatusRunning),
		q.Count(analyze.StatusDone), q.Count(analyze.StatusFailed))
}
