package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/thruflo/goalboard/internal/config"
	"github.com/thruflo/goalboard/internal/logging"
	"github.com/thruflo/goalboard/internal/loop"
	"github.com/thruflo/goalboard/internal/report"
	"github.com/thruflo/goalboard/internal/store"
	"github.com/thruflo/goalboard/internal/stream"
	"github.com/thruflo/goalboard/internal/tui"
	"github.com/thruflo/goalboard/internal/view"
)

const defaultWrapWidth = 80

var (
	runTUI           bool
	runStepDelay     time.Duration
	runMaxIterations int
	runMarkdown      bool
	runNotify        bool
)

var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Run the agent against a goal in the terminal",
	Long: `Runs the agent against a goal, printing its activity feed as it happens
and a report when the run ends.

With --tui the interactive dashboard opens instead; the goal is optional
and more runs can be started from it. Press Ctrl+C to interrupt a run.`,
	Example: `  goalboard run "Write docs and ship the release"
  goalboard run --step-delay 0 --markdown "Migrate billing" > report.md
  goalboard run --tui`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "open the interactive dashboard")
	runCmd.Flags().DurationVar(&runStepDelay, "step-delay", 0, "delay between iterations (default from config)")
	runCmd.Flags().IntVarP(&runMaxIterations, "max-iterations", "n", 0, "iteration ceiling (default from config)")
	runCmd.Flags().BoolVar(&runMarkdown, "markdown", false, "print the report as raw Markdown")
	runCmd.Flags().BoolVar(&runNotify, "notify", false, "send a desktop notification when the run ends")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	var goal string
	if len(args) > 0 {
		goal = args[0]
	}
	if !runTUI && goal == "" {
		return errors.New("a goal is required (or use --tui)")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	history, err := openHistory(cfg)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
	}

	if runTUI {
		hub := stream.NewHub(0)
		defer hub.Close()
		ctrl := newController(cfg, hub, history, nil)

		restore := tui.DiscardLogs()
		defer restore()
		err := tui.Run(ctx, tui.Config{Controller: ctrl, Hub: hub, Goal: goal})
		<-ctrl.Done()
		return err
	}

	return runOnce(ctx, cmd.OutOrStdout(), cfg, history, goal)
}

// applyRunFlags overrides the config with flags the user set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("step-delay") {
		cfg.Agent.StepDelay = runStepDelay
	}
	if flags.Changed("max-iterations") {
		cfg.Agent.MaxIterations = runMaxIterations
	}
	return config.ValidateConfig(cfg)
}

// runOnce executes one run on the calling goroutine, streaming the activity
// feed to out, then prints the report.
func runOnce(ctx context.Context, out io.Writer, cfg *config.Config, history *store.Store, goal string) error {
	printer := newLogPrinter(out)
	ctrl := newController(cfg, nil, history, printer.print)

	fmt.Fprintf(out, "Goal: %s\n\n", goal)
	res, err := ctrl.Run(ctx, goal)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)

	md := report.Render(ctrl.Snapshot())
	if runMarkdown {
		fmt.Fprint(out, md)
	} else {
		rendered, err := renderMarkdown(md, terminalWidth(out))
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
	}

	if runNotify {
		if err := tui.NewNotifier(os.Stderr).NotifyResult(res, goal, false); err != nil {
			logging.Warn("notify failed", "error", err)
		}
	}
	if res.Reason == loop.ExitReasonCrash {
		return fmt.Errorf("run crashed: %s", res.Error)
	}
	return nil
}

// logPrinter writes each log entry once, in timestamp order.
type logPrinter struct {
	w    io.Writer
	seen map[string]bool
}

func newLogPrinter(w io.Writer) *logPrinter {
	return &logPrinter{w: w, seen: make(map[string]bool)}
}

func (p *logPrinter) print(snap loop.Snapshot) {
	if snap.State == nil {
		return
	}
	for _, l := range view.SortedLogs(snap.State.Logs) {
		if p.seen[l.ID] {
			continue
		}
		p.seen[l.ID] = true
		fmt.Fprintf(p.w, "%s  %-10s  %s\n", view.FormatClock(l.Timestamp), view.TopicLabel(l.Topic), l.Message)
	}
}

// renderMarkdown renders md for the terminal.
func renderMarkdown(md string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return out, nil
}

// terminalWidth returns the width of out when it is a terminal.
func terminalWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok {
		return defaultWrapWidth
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return defaultWrapWidth
	}
	return min(w, 120)
}
