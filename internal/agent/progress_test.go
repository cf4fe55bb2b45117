package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func points(completed ...int) []ProgressPoint {
	out := make([]ProgressPoint, len(completed))
	for i, c := range completed {
		out[i] = ProgressPoint{Iteration: i + 1, TasksCompleted: c}
	}
	return out
}

func TestDetectStall(t *testing.T) {
	tests := []struct {
		name      string
		progress  []ProgressPoint
		threshold int
		want      bool
	}{
		{name: "empty progress", progress: nil, threshold: 3, want: false},
		{name: "shorter than threshold", progress: points(1, 1), threshold: 3, want: false},
		{name: "progress made", progress: points(1, 2, 3), threshold: 3, want: false},
		{name: "no progress", progress: points(2, 2, 2), threshold: 3, want: true},
		{name: "progress then stall", progress: points(1, 2, 2, 2, 2), threshold: 3, want: true},
		{name: "progress at end breaks stall", progress: points(2, 2, 2, 2, 3), threshold: 3, want: false},
		{name: "zero threshold", progress: points(2), threshold: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectStall(tt.progress, tt.threshold))
		})
	}
}

func TestCountTasks(t *testing.T) {
	tasks := []Task{
		{Status: TaskCompleted},
		{Status: TaskBlocked},
		{Status: TaskPending},
		{Status: TaskCompleted},
		{Status: TaskInProgress},
	}
	completed, blocked := CountTasks(tasks)
	assert.Equal(t, 2, completed)
	assert.Equal(t, 1, blocked)
	assert.InDelta(t, 0.4, CompletionRate(tasks), 1e-9)
	assert.Zero(t, CompletionRate(nil))
}

func TestMomentum(t *testing.T) {
	tests := []struct {
		name     string
		progress []ProgressPoint
		window   int
		want     float64
	}{
		{name: "empty", progress: nil, window: 3, want: 0},
		{name: "single point", progress: points(1), window: 3, want: 0},
		{name: "steady", progress: points(1, 2, 3), window: 3, want: 1},
		{name: "window narrower than history", progress: points(0, 0, 0, 1, 2), window: 3, want: 1},
		{name: "window wider than history", progress: points(0, 1), window: 10, want: 1},
		{name: "half speed", progress: points(0, 0, 1), window: 3, want: 0.5},
		{name: "window of one", progress: points(0, 1, 2), window: 1, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Momentum(tt.progress, tt.window), 1e-9)
		})
	}
}
