package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/thruflo/goalboard/internal/report"
	"github.com/thruflo/goalboard/internal/store"
	"github.com/thruflo/goalboard/internal/view"
)

// HistoryReader abstracts the run history for testability.
type HistoryReader interface {
	List(ctx context.Context, limit int) ([]store.Run, error)
	Get(ctx context.Context, id string) (store.Run, error)
}

// historyStore is the reader used by the history command.
// It can be overridden in tests.
var historyStore HistoryReader

var (
	historyLimit    int
	historyMarkdown bool
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List finished runs",
	Long: `Lists recorded runs, newest first.

With a run ID (or a unique prefix of one) shows that run's report.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", store.DefaultListLimit, "maximum runs to list")
	historyCmd.Flags().BoolVar(&historyMarkdown, "markdown", false, "print the report as raw Markdown")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyLimit <= 0 {
		return errors.New("--limit must be positive")
	}

	reader := historyStore
	if reader == nil {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.History.Disabled {
			return errors.New("history is disabled in the config")
		}
		s, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		reader = s
	}

	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		return listRuns(ctx, out, reader, historyLimit)
	}
	return showRun(ctx, out, reader, args[0])
}

func listRuns(ctx context.Context, out io.Writer, reader HistoryReader, limit int) error {
	runs, err := reader.List(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFINISHED\tREASON\tITERATIONS\tDONE\tGOAL")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			shortRunID(r.ID),
			r.FinishedAt.Local().Format(time.DateTime),
			r.Reason,
			r.Iterations,
			r.MaxIterations,
			view.FormatPercent(r.CompletionRate),
			r.Goal,
		)
	}
	return tw.Flush()
}

func showRun(ctx context.Context, out io.Writer, reader HistoryReader, id string) error {
	run, err := lookupRun(ctx, reader, id)
	if err != nil {
		return err
	}

	md := report.Render(run.Snapshot())
	if historyMarkdown {
		fmt.Fprint(out, md)
		return nil
	}
	rendered, err := renderMarkdown(md, terminalWidth(out))
	if err != nil {
		return err
	}
	fmt.Fprint(out, rendered)
	return nil
}

// lookupRun finds a run by full ID, or by a prefix matching exactly one of
// the recent runs.
func lookupRun(ctx context.Context, reader HistoryReader, id string) (store.Run, error) {
	run, err := reader.Get(ctx, id)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Run{}, fmt.Errorf("failed to load run: %w", err)
	}

	runs, err := reader.List(ctx, maxPrefixScan)
	if err != nil {
		return store.Run{}, fmt.Errorf("failed to list runs: %w", err)
	}
	var matches []store.Run
	for _, r := range runs {
		if strings.HasPrefix(r.ID, id) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return store.Run{}, fmt.Errorf("run %q: %w", id, store.ErrNotFound)
	case 1:
		return reader.Get(ctx, matches[0].ID)
	default:
		return store.Run{}, fmt.Errorf("run prefix %q is ambiguous (%d matches)", id, len(matches))
	}
}

const maxPrefixScan = 500

func shortRunID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
