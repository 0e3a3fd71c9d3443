// Package analyze holds the "runctl analyze" commands that seed, run, and
// inspect the analyze queue.
package analyze

import "github.com/spf13/cobra"

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Generate project documents from the analyze queue",
	Long: `The analyze queue holds one job per document to generate. Each job runs
the agent with a prompt file and saves its cleaned output as a document.

  runctl analyze seed     fill the queue from the catalog
  runctl analyze run      run pending jobs, three at a time
  runctl analyze status   show job states
  runctl analyze watch    follow queue changes
  runctl analyze reset    requeue jobs left running by a crash`,
}

// Register adds the analyze command tree to parent.
func Register(parent *cobra.Command) {
	analyzeCmd.AddCommand(seedCmd, runCmd, statusCmd, watchCmd, resetCmd)
	parent.AddCommand(analyzeCmd)
}
