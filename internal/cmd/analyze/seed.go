package analyze

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/runctl/internal/analyze"
	"github.com/Iron-Ham/runctl/internal/cmd/cmdutil"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the analyze queue from the catalog",
	Long: `Write one pending job per catalog entry to the analyze queue.

The catalog is analyze.catalog_file when set, otherwise the built-in one.
An existing queue is kept unless --force is given, which also resets
failed jobs so they run again.`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

var seedForce bool

func init() {
	seedCmd.Flags().BoolVar(&seedForce, "force", false, "Replace a non-empty queue")
}

func runSeed(cmd *cobra.Command, args []string) error {
	rt, err := cmdutil.LoadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	store := rt.QueueStore()
	current, err := store.Read()
	if err != nil && !seedForce {
		return fmt.Errorf("%w (use --force to replace it)", err)
	}
	if len(current.Jobs) > 0 && !seedForce {
		return fmt.Errorf("queue %s already has %d jobs (use --force to replace it)", store.Path(), len(current.Jobs))
	}

	catalog, err := rt.Catalog()
	if err != nil {
		return err
	}
	q := analyze.Seed(catalog)
	if err := store.Write(q); err != nil {
		return err
	}

	rt.Logger.Info("analyze queue seeded", "jobs", len(q.Jobs), "path", store.Path())
	cmdutil.NewPrinter(cmd.OutOrStdout()).Printf("Seeded %d jobs into %s\n", len(q.Jobs), store.Path())
	return nil
}
