package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"hnswdb/internal/obslog"
)

func newLogsCmd() *cobra.Command {
	var (
		follow  bool
		lines   int
		level   string
		filter  string
		noColor bool
		logFile string
		shardID string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View and tail vectordb server logs",
		Long: `Shows the last N lines of the structured JSON log written by
'vectordb serve', or by a single shard's own rotating log when --shard
is given. Use -f to follow new entries in real time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var pattern *regexp.Regexp
			if filter != "" {
				var err error
				pattern, err = regexp.Compile(filter)
				if err != nil {
					return fmt.Errorf("invalid filter pattern: %w", err)
				}
			}

			path, err := obslog.FindLogFile(logFile, shardID)
			if err != nil {
				return err
			}

			viewer := obslog.NewViewer(obslog.ViewerConfig{
				Level:   level,
				Pattern: pattern,
				NoColor: noColor,
			}, os.Stdout)

			fmt.Fprintf(os.Stderr, "Log file: %s\n", path)
			if follow {
				fmt.Fprintln(os.Stderr, "Following... (Ctrl+C to stop)")
			}
			fmt.Fprintln(os.Stderr, "---")

			if follow {
				return runLogsFollow(cmd.Context(), viewer, path)
			}

			entries, err := viewer.Tail(path, lines)
			if err != nil {
				return err
			}
			viewer.Print(entries)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "follow log output (like tail -f)")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines to show")
	cmd.Flags().StringVar(&level, "level", "", "filter by log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&filter, "filter", "", "filter by keyword/pattern (regex)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.Flags().StringVar(&logFile, "file", "", "path to log file (overrides the default location)")
	cmd.Flags().StringVar(&shardID, "shard", "", "tail a single shard's own log file instead of the server-wide log")

	return cmd
}

func runLogsFollow(ctx context.Context, viewer *obslog.Viewer, path string) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	entries := make(chan obslog.LogEntry, 100)
	errCh := make(chan error, 1)

	go func() {
		errCh <- viewer.Follow(ctx, path, entries)
	}()

	for {
		select {
		case entry := <-entries:
			fmt.Println(viewer.FormatEntry(entry))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "\n---")
			fmt.Fprintln(os.Stderr, "Stopped.")
			return nil
		}
	}
}
