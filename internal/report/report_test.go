package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thruflo/goalboard/internal/agent"
	"github.com/thruflo/goalboard/internal/loop"
	"github.com/thruflo/goalboard/internal/testutil"
)

var base = testutil.Base

func TestRenderCompletedRun(t *testing.T) {
	snap := testutil.FinishedSnapshot("run-1", testutil.SampleGoal, 9*time.Second)

	out := Render(snap)

	assert.True(t, strings.HasPrefix(out, "# Write docs\n"))
	assert.Contains(t, out, "**Goal achieved.**")
	assert.Contains(t, out, "Run `run-1`, took 9s")
	assert.Contains(t, out, "## Metrics")
	assert.Contains(t, out, "| 7 / 12 | 100% |")
	assert.Contains(t, out, "| Scope Write docs | scope | Completed |")
	assert.Contains(t, out, "### Insights")
	assert.Contains(t, out, "## Assumptions")
	assert.Contains(t, out, "`10:00:01` **Analysis**")

	// Log lines are chronological.
	var clocks []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "- `") {
			clocks = append(clocks, line[3:11])
		}
	}
	assert.NotEmpty(t, clocks)
	for i := 1; i < len(clocks); i++ {
		assert.LessOrEqual(t, clocks[i-1], clocks[i])
	}
}

func TestRenderEmptyState(t *testing.T) {
	st := agent.Initialize("Ship feature X", base)
	out := Render(loop.Snapshot{Phase: loop.PhaseRunning, State: &st, MaxIterations: 12})

	assert.Contains(t, out, "# Ship feature X")
	assert.Contains(t, out, "**Running.**")
	assert.Contains(t, out, "_No tasks yet.")
	assert.Contains(t, out, "_No activity yet._")
	assert.NotContains(t, out, "## Assumptions")
}

func TestRenderEscapesTableCells(t *testing.T) {
	st := agent.State{
		Goal: "pipes",
		Tasks: []agent.Task{
			{ID: "task-1", Title: "a | b", Phase: agent.PhaseBuild, Status: agent.TaskBlocked},
		},
	}
	out := Render(loop.Snapshot{State: &st})

	assert.Contains(t, out, `| a \| b | build | Blocked | 0 |`)
}

func TestRenderWithoutState(t *testing.T) {
	out := Render(loop.Snapshot{})

	assert.Contains(t, out, "# (no goal)")
	assert.Contains(t, out, "**Idle.**")
	assert.NotContains(t, out, "## Metrics")
}
