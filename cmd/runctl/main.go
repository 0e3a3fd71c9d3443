// Command runctl launches and tracks coding agent runs.
package main

import (
	"os"

	"github.com/Iron-Ham/runctl/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
