// Package report renders a run as a Markdown document.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/thruflo/goalboard/internal/loop"
	"github.com/thruflo/goalboard/internal/view"
)

// Render returns a Markdown report for snap.
func Render(snap loop.Snapshot) string {
	d := view.Build(snap)
	var b strings.Builder

	goal := d.Goal
	if goal == "" {
		goal = "(no goal)"
	}
	fmt.Fprintf(&b, "# %s\n\n", escapeInline(goal))

	if d.Outcome != nil {
		fmt.Fprintf(&b, "**%s.** %s\n\n", d.Outcome.Title, escapeInline(d.Outcome.Summary))
	} else {
		fmt.Fprintf(&b, "**%s.**\n\n", d.StatusMessage)
	}
	if snap.RunID != "" {
		fmt.Fprintf(&b, "Run `%s`", snap.RunID)
		if snap.Result != nil && !snap.Result.FinishedAt.IsZero() {
			fmt.Fprintf(&b, ", took %s", snap.Result.FinishedAt.Sub(snap.Result.StartedAt).Round(time.Millisecond))
		}
		b.WriteString("\n\n")
	}

	if m := d.Metrics; m != nil {
		b.WriteString("## Metrics\n\n")
		b.WriteString("| Iteration | Completion | Momentum | Blocked | Focus |\n")
		b.WriteString("|---|---|---|---|---|\n")
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %s |\n\n",
			m.Iteration, m.Completion, m.Momentum, m.Blocked, escapeCell(m.Focus))
	}

	b.WriteString("## Tasks\n\n")
	if len(d.Tasks) == 0 {
		fmt.Fprintf(&b, "_%s_\n\n", d.TasksPlaceholder)
	} else {
		b.WriteString("| Task | Phase | Status | Attempts |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, t := range d.Tasks {
			fmt.Fprintf(&b, "| %s | %s | %s | %d |\n", escapeCell(t.Title), t.Phase, t.StatusLabel, t.Attempts)
		}
		b.WriteString("\n")

		var insights []string
		for _, t := range d.Tasks {
			for _, in := range t.Insights {
				insights = append(insights, fmt.Sprintf("- **%s**: %s", escapeInline(t.Title), escapeInline(in)))
			}
		}
		if len(insights) > 0 {
			b.WriteString("### Insights\n\n")
			b.WriteString(strings.Join(insights, "\n"))
			b.WriteString("\n\n")
		}
	}

	if d.ShowAssumptions {
		b.WriteString("## Assumptions\n\n")
		for _, a := range d.Assumptions {
			fmt.Fprintf(&b, "- %s _(%s)_\n", escapeInline(a.Statement), a.Label)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Log\n\n")
	if len(d.Logs) == 0 {
		fmt.Fprintf(&b, "_%s_\n", d.LogsPlaceholder)
	} else {
		for _, l := range d.Logs {
			fmt.Fprintf(&b, "- `%s` **%s** %s\n", l.Clock, l.TopicLabel, escapeInline(l.Message))
		}
	}

	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(escapeInline(s), "|", `\|`)
}

func escapeInline(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}
