// Package agent models the simulated goal agent as a pure state transition.
//
// Initialize builds the starting snapshot for a goal and Step advances it by
// exactly one iteration. Neither function performs I/O or reads the clock:
// log timestamps are derived from State.StartedAt, so the same input state
// always yields the same successor.
package agent

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

const (
	// MaxIterations is the default iteration ceiling for a run.
	MaxIterations = 12

	// StallThreshold is how many progress points without a completion
	// mark the agent as stalled.
	StallThreshold = 5

	// Tick is the simulated time that passes per iteration.
	Tick = time.Second

	maxWorkstreams  = 3
	maxAttempts     = 2
	momentumWindow  = 3
	reflectionEvery = 3
)

// Stepper produces agent snapshots. Implementations must be deterministic
// and must not modify the state they are given.
type Stepper interface {
	Initialize(goal string, startedAt time.Time) State
	Step(s State) State
}

// Simulator is the built-in Stepper.
type Simulator struct{}

var _ Stepper = Simulator{}

// Initialize implements Stepper.
func (Simulator) Initialize(goal string, startedAt time.Time) State {
	return Initialize(goal, startedAt)
}

// Step implements Stepper.
func (Simulator) Step(s State) State {
	return Step(s)
}

// Initialize returns the iteration-zero state for goal.
func Initialize(goal string, startedAt time.Time) State {
	return State{
		Goal:        strings.TrimSpace(goal),
		Tasks:       []Task{},
		Assumptions: []Assumption{},
		Logs:        []Log{},
		Metrics:     Metrics{Focus: "Framing the goal"},
		StartedAt:   startedAt.UTC(),
		Progress:    []ProgressPoint{},
	}
}

// Step advances s by one iteration. Terminal states are returned unchanged.
func Step(s State) State {
	if s.Terminal() {
		return s
	}

	st := &stepper{next: s.clone()}
	st.next.Iteration++

	if st.next.Iteration == 1 {
		st.plan()
	} else {
		st.finishInProgress()
		if st.next.Iteration%reflectionEvery == 0 {
			st.reflect()
		}
	}
	st.startNext()

	completed, _ := CountTasks(st.next.Tasks)
	st.next.Progress = append(st.next.Progress, ProgressPoint{
		Iteration:      st.next.Iteration,
		TasksCompleted: completed,
	})
	st.next.Metrics = computeMetrics(st.next)
	st.checkTerminal()

	return st.next
}

// stepper accumulates the changes for one iteration.
type stepper struct {
	next State
	seq  int
}

func (st *stepper) log(topic Topic, format string, args ...any) {
	st.seq++
	it := st.next.Iteration
	st.next.Logs = append(st.next.Logs, Log{
		ID:        fmt.Sprintf("log-%d-%d", it, st.seq),
		Topic:     topic,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: st.next.StartedAt.Add(time.Duration(it)*Tick + time.Duration(st.seq)*time.Millisecond),
	})
}

// plan derives the task list and assumptions from the goal.
func (st *stepper) plan() {
	goal := st.next.Goal
	streams := Workstreams(goal)
	st.log(TopicAnalysis, "Analyzing goal: %s", goal)
	st.log(TopicAnalysis, "Identified %d workstream(s): %s", len(streams), strings.Join(streams, "; "))

	for _, ws := range streams {
		for _, phase := range []Phase{PhaseScope, PhaseBuild, PhaseVerify} {
			id := fmt.Sprintf("task-%d", len(st.next.Tasks)+1)
			title, detail := describe(phase, ws)
			st.next.Tasks = append(st.next.Tasks, Task{
				ID:       id,
				Title:    title,
				Detail:   detail,
				Phase:    phase,
				Status:   TaskPending,
				Insights: []string{},
			})
		}
	}

	split := ConfidenceHigh
	if len(streams) > 1 {
		split = ConfidenceMedium
	}
	tooling := ConfidenceMedium
	if len(strings.Fields(goal)) > 8 {
		tooling = ConfidenceLow
	}
	st.next.Assumptions = append(st.next.Assumptions,
		Assumption{
			ID:         "assumption-1",
			Statement:  fmt.Sprintf("The goal can be split into %d independent workstream(s).", len(streams)),
			Confidence: split,
		},
		Assumption{
			ID:         "assumption-2",
			Statement:  "Existing tooling is enough to make progress without new dependencies.",
			Confidence: tooling,
		},
		Assumption{
			ID:         "assumption-3",
			Statement:  "Success can be verified within the iteration budget.",
			Confidence: ConfidenceMedium,
		},
	)

	st.log(TopicPlan, "Planned %d tasks across %d phases.", len(st.next.Tasks), 3)
}

func describe(phase Phase, ws string) (title, detail string) {
	switch phase {
	case PhaseScope:
		return "Scope " + ws, fmt.Sprintf("Pin down what done looks like for %s.", ws)
	case PhaseBuild:
		return "Build " + ws, fmt.Sprintf("Produce the smallest working version of %s.", ws)
	default:
		return "Verify " + ws, fmt.Sprintf("Check %s against the success criteria.", ws)
	}
}

// finishInProgress resolves the task started on the previous iteration.
func (st *stepper) finishInProgress() {
	for i := range st.next.Tasks {
		t := &st.next.Tasks[i]
		if t.Status != TaskInProgress {
			continue
		}
		if blocks(st.next.Goal, *t) {
			t.Status = TaskBlocked
			t.Insights = append(t.Insights, fmt.Sprintf("Blocked on attempt %d: waiting on an external dependency.", t.Attempts))
			st.log(TopicExecution, "%s is blocked.", t.Title)
			continue
		}
		t.Status = TaskCompleted
		t.Insights = append(t.Insights, insightFor(*t, st.next.Iteration))
		st.log(TopicExecution, "Completed %s.", t.Title)
	}
}

func insightFor(t Task, iteration int) string {
	switch t.Phase {
	case PhaseScope:
		return fmt.Sprintf("Success criteria captured on iteration %d.", iteration)
	case PhaseBuild:
		return fmt.Sprintf("Working version produced on iteration %d.", iteration)
	default:
		return fmt.Sprintf("Checks passed on iteration %d.", iteration)
	}
}

// blocks decides whether the current attempt at t fails. Roughly one task in
// five blocks on its first attempt and half of those block again on retry.
func blocks(goal string, t Task) bool {
	h := fnv.New32a()
	h.Write([]byte(goal))
	h.Write([]byte{'/'})
	h.Write([]byte(t.ID))
	v := h.Sum32()
	switch t.Attempts {
	case 1:
		return v%5 == 0
	case 2:
		return v%10 == 0
	default:
		return false
	}
}

// reflect retries blocked work and revises assumptions by momentum.
func (st *stepper) reflect() {
	completed, blocked := CountTasks(st.next.Tasks)
	momentum := Momentum(st.next.Progress, momentumWindow)
	st.log(TopicReflection, "Reflection: %d of %d tasks done, momentum %.2f, %d blocked.",
		completed, len(st.next.Tasks), momentum, blocked)

	for i := range st.next.Tasks {
		t := &st.next.Tasks[i]
		if t.Status == TaskBlocked && t.Attempts < maxAttempts {
			t.Status = TaskPending
			st.log(TopicReflection, "Retrying %s.", t.Title)
		}
	}

	switch {
	case momentum >= 0.5:
		st.revise("assumption-3", +1)
	case blocked > 0:
		st.revise("assumption-2", -1)
	}
}

func (st *stepper) revise(id string, delta int) {
	levels := []Confidence{ConfidenceLow, ConfidenceMedium, ConfidenceHigh}
	for i := range st.next.Assumptions {
		a := &st.next.Assumptions[i]
		if a.ID != id {
			continue
		}
		cur := 0
		for j, l := range levels {
			if l == a.Confidence {
				cur = j
			}
		}
		to := cur + delta
		if to < 0 || to >= len(levels) {
			return
		}
		a.Confidence = levels[to]
		st.log(TopicReflection, "Confidence in %q is now %s.", a.Statement, a.Confidence)
	}
}

// startNext moves the first pending task into progress when nothing else is.
func (st *stepper) startNext() {
	for _, t := range st.next.Tasks {
		if t.Status == TaskInProgress {
			return
		}
	}
	for i := range st.next.Tasks {
		t := &st.next.Tasks[i]
		if t.Status == TaskPending {
			t.Status = TaskInProgress
			t.Attempts++
			st.log(TopicExecution, "Started %s.", t.Title)
			return
		}
	}
}

// canMove reports whether any task can still change status.
func canMove(tasks []Task) bool {
	for _, t := range tasks {
		switch t.Status {
		case TaskPending, TaskInProgress:
			return true
		case TaskBlocked:
			if t.Attempts < maxAttempts {
				return true
			}
		}
	}
	return false
}

func (st *stepper) checkTerminal() {
	s := &st.next
	completed, blocked := CountTasks(s.Tasks)

	if len(s.Tasks) > 0 && completed == len(s.Tasks) {
		s.IsComplete = true
		s.ResultSummary = fmt.Sprintf("Reached the goal %q in %d iterations: %d tasks completed.",
			s.Goal, s.Iteration, completed)
		st.log(TopicSummary, "%s", s.ResultSummary)
		return
	}

	if !canMove(s.Tasks) || DetectStall(s.Progress, StallThreshold) {
		s.IsStalled = true
		s.ResultSummary = fmt.Sprintf("Stalled on %q after %d iterations: %d of %d tasks completed, %d blocked.",
			s.Goal, s.Iteration, completed, len(s.Tasks), blocked)
		st.log(TopicSummary, "%s", s.ResultSummary)
	}
}

func computeMetrics(s State) Metrics {
	_, blocked := CountTasks(s.Tasks)
	m := Metrics{
		CompletionRate: CompletionRate(s.Tasks),
		Momentum:       Momentum(s.Progress, momentumWindow),
		BlockedCount:   blocked,
	}

	m.Focus = "Waiting on blocked work"
	for _, t := range s.Tasks {
		if t.Status == TaskInProgress {
			m.Focus = t.Title
			break
		}
	}
	if len(s.Tasks) > 0 && m.CompletionRate == 1 {
		m.Focus = "Wrapping up"
	}
	return m
}

// Workstreams splits a goal into at most three clauses on commas,
// semicolons and the word "and".
func Workstreams(goal string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(goal, func(r rune) bool { return r == ',' || r == ';' }) {
		for _, clause := range splitAnd(part) {
			clause = strings.TrimSpace(clause)
			if clause == "" {
				continue
			}
			out = append(out, clause)
		}
	}
	if len(out) == 0 {
		out = []string{strings.TrimSpace(goal)}
	}
	if len(out) > maxWorkstreams {
		out = append(out[:maxWorkstreams-1], strings.Join(out[maxWorkstreams-1:], ", "))
	}
	return out
}

func splitAnd(s string) []string {
	var out []string
	words := strings.Fields(s)
	start := 0
	for i, w := range words {
		if strings.EqualFold(w, "and") {
			out = append(out, strings.Join(words[start:i], " "))
			start = i + 1
		}
	}
	return append(out, strings.Join(words[start:], " "))
}
