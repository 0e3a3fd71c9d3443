package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/runctl/internal/cmd/cmdutil"
	"github.com/Iron-Ham/runctl/internal/config"
	"github.com/Iron-Ham/runctl/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the debug log",
	Long: `View and filter runctl's debug log for the project, including rotated
backups.

Examples:
  # Last 50 records
  runctl logs

  # Everything one run logged
  runctl logs --run run-1234abcd-... -n 0

  # Warnings from the last hour, then keep following
  runctl logs --level warn --since 1h -f

  # Export an analyze job's records as CSV
  runctl logs --job design --format csv -n 0 > design.csv`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsTail   int
	logsFollow bool
	logsLevel  string
	logsSince  time.Duration
	logsGrep   string
	logsRun    string
	logsJob    string
	logsFormat string
)

func init() {
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of records to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Keep printing new records")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Minimum level (debug/info/warn/error)")
	logsCmd.Flags().DurationVar(&logsSince, "since", 0, "Only records newer than this (e.g. 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Only records whose message contains this text")
	logsCmd.Flags().StringVar(&logsRun, "run", "", "Only records for this run id")
	logsCmd.Flags().StringVar(&logsJob, "job", "", "Only records for this analyze job id")
	logsCmd.Flags().StringVar(&logsFormat, "format", "text", "Output format: text, json, or csv")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	if logsFollow && logsFormat != "text" {
		return fmt.Errorf("--follow only supports the text format")
	}
	// Reading the log needs no runtime; building one would append to it.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	root, err := cmdutil.ProjectRoot()
	if err != nil {
		return err
	}
	if root, err = filepath.Abs(root); err != nil {
		return err
	}
	stateDir := cfg.Paths.ResolveStateDir(root)

	filter := logging.Filter{
		Level:    logsLevel,
		RunID:    logsRun,
		JobID:    logsJob,
		Contains: logsGrep,
	}
	if logsSince > 0 {
		filter.Since = time.Now().Add(-logsSince)
	}

	entries, err := logging.ReadEntries(stateDir)
	if err != nil && !(logsFollow && os.IsNotExist(err)) {
		return err
	}
	entries = filter.Apply(entries)
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}

	out := cmd.OutOrStdout()
	p := cmdutil.NewPrinter(out)
	if logsFormat == "text" {
		for _, e := range entries {
			p.Println(colorEntry(p, e))
		}
	} else if err := logging.Export(out, entries, logsFormat); err != nil {
		return err
	}
	if !logsFollow {
		return nil
	}

	ctx, stop := cmdutil.SignalContext(cmd.Context())
	defer stop()
	return followLog(ctx, filepath.Join(stateDir, logging.LogFileName), func(e logging.Entry) {
		if filter.Match(e) {
			p.Println(colorEntry(p, e))
		}
	})
}

func colorEntry(p *cmdutil.Printer, e logging.Entry) string {
	return p.Level(e.Level, logging.FormatText(e))
}

// followLog prints records appended to path until ctx ends. A rotation
// recreates the file, so reading restarts from its beginning.
func followLog(ctx context.Context, path string, fn func(logging.Entry)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var offset int64
	if info, err := os.Stat(path); err == nil {
		offset = info.Size()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				offset = 0
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				offset = readFrom(path, offset, fn)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("follow log: %w", err)
		}
	}
}

// readFrom parses complete lines after offset and returns the new offset.
func readFrom(path string, offset int64, fn func(logging.Entry)) int64 {
	f, err := os.Open(path)
	if err != nil {
		return offset
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset
	}

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			// A partial line is read again once it is complete.
			return offset
		}
		offset += int64(len(line))
		if e, perr := logging.ParseEntry(strings.TrimSpace(line)); perr == nil {
			fn(e)
		}
	}
}
