package testutil

import (
	"time"

	"github.com/thruflo/goalboard/internal/agent"
	"github.com/thruflo/goalboard/internal/loop"
)

// Base is the start time of every fixture run.
var Base = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

const (
	// SampleGoal completes after seven iterations.
	SampleGoal = "Write docs"
	// SampleRunID is the run ID used by snapshot fixtures.
	SampleRunID = "0123abcd-0000-4000-8000-000000000001"
)

// InitialState returns the simulator's initial state for goal.
func InitialState(goal string) agent.State {
	return agent.Initialize(goal, Base)
}

// StateAfter returns the state after n steps.
func StateAfter(goal string, n int) agent.State {
	st := InitialState(goal)
	for i := 0; i < n; i++ {
		st = agent.Step(st)
	}
	return st
}

// TerminalState steps goal until it completes, stalls or reaches the
// default iteration ceiling.
func TerminalState(goal string) agent.State {
	st := InitialState(goal)
	for !st.Terminal() && st.Iteration < agent.MaxIterations {
		st = agent.Step(st)
	}
	return st
}

// ReasonFor returns the exit reason the controller would report for a
// state produced by TerminalState.
func ReasonFor(st agent.State) loop.ExitReason {
	switch {
	case st.IsComplete:
		return loop.ExitReasonCompleted
	case st.IsStalled:
		return loop.ExitReasonStalled
	default:
		return loop.ExitReasonMaxIterations
	}
}

// RunningSnapshot returns a running snapshot one iteration into goal.
func RunningSnapshot(goal string) loop.Snapshot {
	st := StateAfter(goal, 1)
	return loop.Snapshot{
		RunID:         SampleRunID,
		Phase:         loop.PhaseRunning,
		MaxIterations: agent.MaxIterations,
		State:         &st,
	}
}

// FinishedSnapshot returns the snapshot a controller holds after running
// goal to the end. The run finishes took after Base.
func FinishedSnapshot(id, goal string, took time.Duration) loop.Snapshot {
	st := TerminalState(goal)
	return loop.Snapshot{
		RunID:         id,
		Phase:         loop.PhaseIdle,
		MaxIterations: agent.MaxIterations,
		State:         &st,
		Result: &loop.Result{
			RunID:      id,
			Reason:     ReasonFor(st),
			Iterations: st.Iteration,
			StartedAt:  Base,
			FinishedAt: Base.Add(took),
		},
	}
}
