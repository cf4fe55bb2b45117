package tui

import (
	"fmt"
	"io"
	"os/exec"
	"runtime"

	"github.com/thruflo/goalboard/internal/loop"
)

// Bell is the terminal bell character.
const Bell = "\a"

// Notifier tells the user a run has ended. In the foreground it rings the
// terminal bell; otherwise it raises an OS notification where supported.
type Notifier struct {
	out io.Writer

	// notifyOS is replaced in tests.
	notifyOS func(title, message string) error
}

// NewNotifier creates a Notifier that writes the bell to out.
func NewNotifier(out io.Writer) *Notifier {
	return &Notifier{out: out, notifyOS: notifyOS}
}

// Bell writes the terminal bell character to output.
func (n *Notifier) Bell() {
	fmt.Fprint(n.out, Bell)
}

// NotifyAttention rings the bell when foreground is true and sends an OS
// notification otherwise.
func (n *Notifier) NotifyAttention(title, message string, foreground bool) error {
	if foreground {
		n.Bell()
		return nil
	}
	return n.notifyOS(title, message)
}

// NotifyResult announces a finished run.
func (n *Notifier) NotifyResult(res loop.Result, goal string, foreground bool) error {
	return n.NotifyAttention(ResultTitle(res.Reason), ResultMessage(res, goal), foreground)
}

// ResultTitle returns the notification title for reason.
func ResultTitle(reason loop.ExitReason) string {
	switch reason {
	case loop.ExitReasonCompleted:
		return "goalboard: Completed"
	case loop.ExitReasonStalled:
		return "goalboard: Stalled"
	case loop.ExitReasonMaxIterations:
		return "goalboard: Iteration Limit"
	case loop.ExitReasonUserStopped:
		return "goalboard: Stopped"
	case loop.ExitReasonShutdown:
		return "goalboard: Interrupted"
	case loop.ExitReasonCrash:
		return "goalboard: Crashed"
	default:
		return "goalboard"
	}
}

// ResultMessage returns the notification body for res.
func ResultMessage(res loop.Result, goal string) string {
	switch res.Reason {
	case loop.ExitReasonCompleted:
		return fmt.Sprintf("%q completed after %d iterations", goal, res.Iterations)
	case loop.ExitReasonStalled:
		return fmt.Sprintf("%q stalled after %d iterations", goal, res.Iterations)
	case loop.ExitReasonMaxIterations:
		return fmt.Sprintf("%q reached the iteration limit", goal)
	case loop.ExitReasonCrash:
		return fmt.Sprintf("%q crashed: %s", goal, res.Error)
	default:
		return fmt.Sprintf("%q ended after %d iterations", goal, res.Iterations)
	}
}

// notifyOS uses osascript on macOS and is a no-op elsewhere.
func notifyOS(title, message string) error {
	if runtime.GOOS != "darwin" {
		return nil
	}
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}
