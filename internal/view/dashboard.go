package view

import (
	"fmt"

	"github.com/thruflo/goalboard/internal/agent"
	"github.com/thruflo/goalboard/internal/loop"
)

// Placeholder text shown when a panel has nothing to list.
const (
	TasksPlaceholder = "No tasks yet. Submit a goal to generate a plan."
	LogsPlaceholder  = "No activity yet."
)

// Dashboard is the render tree for one snapshot.
type Dashboard struct {
	RunID         string
	Goal          string
	Running       bool
	StopRequested bool

	// Form controls. Submit is only offered while idle, stop only while
	// running.
	CanSubmit     bool
	CanStop       bool
	GoalDisabled  bool
	StatusMessage string

	Metrics *Metrics

	ShowAssumptions bool
	Assumptions     []Assumption

	Tasks            []Task
	TasksPlaceholder string

	Logs            []Log
	LogsPlaceholder string

	Outcome *Outcome
}

// Metrics is the metrics strip.
type Metrics struct {
	Iteration     string
	Completion    string
	CompletionPct int
	Momentum      string
	Blocked       int
	Focus         string
}

// Assumption is one row of the assumptions panel.
type Assumption struct {
	ID        string
	Statement string
	Label     string
	Class     string
}

// Task is one card in the task panel.
type Task struct {
	ID          string
	Title       string
	Detail      string
	Phase       string
	StatusLabel string
	StatusClass string
	Insights    []string
	Attempts    int
}

// Log is one entry in the activity feed.
type Log struct {
	ID         string
	TopicLabel string
	TopicClass string
	Message    string
	Clock      string
}

// Outcome is the banner shown once a run has ended.
type Outcome struct {
	Title   string
	Summary string
	Class   string
}

// Build derives the dashboard for snap.
func Build(snap loop.Snapshot) Dashboard {
	running := snap.Running()
	d := Dashboard{
		RunID:            snap.RunID,
		Running:          running,
		StopRequested:    running && snap.StopRequested,
		CanSubmit:        !running,
		CanStop:          running && !snap.StopRequested,
		GoalDisabled:     running,
		StatusMessage:    statusMessage(snap),
		Tasks:            []Task{},
		TasksPlaceholder: TasksPlaceholder,
		Logs:             []Log{},
		LogsPlaceholder:  LogsPlaceholder,
	}

	st := snap.State
	if st == nil {
		return d
	}

	d.Goal = st.Goal
	d.Metrics = &Metrics{
		Iteration:     iterationLabel(st.Iteration, snap.MaxIterations),
		Completion:    FormatPercent(st.Metrics.CompletionRate),
		CompletionPct: Percent(st.Metrics.CompletionRate),
		Momentum:      FormatMomentum(st.Metrics.Momentum),
		Blocked:       st.Metrics.BlockedCount,
		Focus:         st.Metrics.Focus,
	}

	if len(st.Assumptions) > 0 {
		d.ShowAssumptions = true
		for _, a := range st.Assumptions {
			d.Assumptions = append(d.Assumptions, Assumption{
				ID:        a.ID,
				Statement: a.Statement,
				Label:     ConfidenceLabel(a.Confidence),
				Class:     ConfidenceClass(a.Confidence),
			})
		}
	}

	for _, t := range st.Tasks {
		d.Tasks = append(d.Tasks, Task{
			ID:          t.ID,
			Title:       t.Title,
			Detail:      t.Detail,
			Phase:       string(t.Phase),
			StatusLabel: TaskStatusLabel(t.Status),
			StatusClass: TaskStatusClass(t.Status),
			Insights:    append([]string(nil), t.Insights...),
			Attempts:    t.Attempts,
		})
	}
	if len(d.Tasks) > 0 {
		d.TasksPlaceholder = ""
	}

	for _, l := range SortedLogs(st.Logs) {
		d.Logs = append(d.Logs, Log{
			ID:         l.ID,
			TopicLabel: TopicLabel(l.Topic),
			TopicClass: TopicClass(l.Topic),
			Message:    l.Message,
			Clock:      FormatClock(l.Timestamp),
		})
	}
	if len(d.Logs) > 0 {
		d.LogsPlaceholder = ""
	}

	d.Outcome = outcome(snap)
	return d
}

func iterationLabel(iteration, max int) string {
	if max <= 0 {
		return fmt.Sprintf("%d", iteration)
	}
	return fmt.Sprintf("%d / %d", iteration, max)
}

func statusMessage(snap loop.Snapshot) string {
	switch {
	case snap.Running() && snap.StopRequested:
		return "Stopping after the current iteration"
	case snap.Running():
		return "Running"
	case snap.Result != nil:
		return "Finished: " + snap.Result.Reason.String()
	default:
		return "Idle"
	}
}

// outcome returns the banner for a finished run or a terminal state, or
// nil while the run is still going.
func outcome(snap loop.Snapshot) *Outcome {
	st := snap.State
	if snap.Result == nil || snap.Running() {
		if st == nil || !st.Terminal() {
			return nil
		}
		return stateOutcome(*st)
	}

	res := snap.Result
	o := &Outcome{Summary: summaryFor(st, res)}
	switch res.Reason {
	case loop.ExitReasonCompleted:
		o.Title, o.Class = "Goal achieved", "outcome-completed"
	case loop.ExitReasonStalled:
		o.Title, o.Class = "Agent stalled", "outcome-stalled"
	case loop.ExitReasonMaxIterations:
		o.Title, o.Class = "Iteration limit reached", "outcome-limit"
	case loop.ExitReasonUserStopped:
		o.Title, o.Class = "Run stopped", "outcome-stopped"
	case loop.ExitReasonShutdown:
		o.Title, o.Class = "Run interrupted", "outcome-stopped"
	case loop.ExitReasonCrash:
		o.Title, o.Class = "Run crashed", "outcome-crash"
	default:
		o.Title, o.Class = "Run ended", "outcome-unknown"
	}
	return o
}

func stateOutcome(st agent.State) *Outcome {
	if st.IsComplete {
		return &Outcome{Title: "Goal achieved", Summary: st.ResultSummary, Class: "outcome-completed"}
	}
	return &Outcome{Title: "Agent stalled", Summary: st.ResultSummary, Class: "outcome-stalled"}
}

func summaryFor(st *agent.State, res *loop.Result) string {
	if res.Reason == loop.ExitReasonCrash && res.Error != "" {
		return res.Error
	}
	if st != nil && st.ResultSummary != "" {
		return st.ResultSummary
	}
	return fmt.Sprintf("Ended after %d iterations.", res.Iterations)
}
