// Package view derives display data from controller snapshots.
//
// Everything here is pure. The HTML templates, the terminal dashboard and
// the Markdown report all render from the same labels and classes.
package view

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/thruflo/goalboard/internal/agent"
)

// TaskStatusLabel returns the display label for a task status.
func TaskStatusLabel(s agent.TaskStatus) string {
	switch s {
	case agent.TaskPending:
		return "Pending"
	case agent.TaskInProgress:
		return "In progress"
	case agent.TaskCompleted:
		return "Completed"
	case agent.TaskBlocked:
		return "Blocked"
	default:
		return "Unknown"
	}
}

// TaskStatusClass returns the style class for a task status.
func TaskStatusClass(s agent.TaskStatus) string {
	switch s {
	case agent.TaskPending, agent.TaskInProgress, agent.TaskCompleted, agent.TaskBlocked:
		return "status-" + string(s)
	default:
		return "status-unknown"
	}
}

// ConfidenceLabel returns the display label for an assumption confidence.
func ConfidenceLabel(c agent.Confidence) string {
	switch c {
	case agent.ConfidenceLow:
		return "Low confidence"
	case agent.ConfidenceMedium:
		return "Medium confidence"
	case agent.ConfidenceHigh:
		return "High confidence"
	default:
		return "Unrated"
	}
}

// ConfidenceClass returns the style class for an assumption confidence.
func ConfidenceClass(c agent.Confidence) string {
	switch c {
	case agent.ConfidenceLow, agent.ConfidenceMedium, agent.ConfidenceHigh:
		return "confidence-" + string(c)
	default:
		return "confidence-unknown"
	}
}

// TopicLabel returns the display label for a log topic.
func TopicLabel(t agent.Topic) string {
	switch t {
	case agent.TopicAnalysis:
		return "Analysis"
	case agent.TopicPlan:
		return "Plan"
	case agent.TopicExecution:
		return "Execution"
	case agent.TopicReflection:
		return "Reflection"
	case agent.TopicSummary:
		return "Summary"
	default:
		return "Update"
	}
}

// TopicClass returns the style class for a log topic.
func TopicClass(t agent.Topic) string {
	switch t {
	case agent.TopicAnalysis, agent.TopicPlan, agent.TopicExecution, agent.TopicReflection, agent.TopicSummary:
		return "topic-" + string(t)
	default:
		return "topic-update"
	}
}

// FormatPercent renders a 0..1 rate as a whole percentage. Out of range
// values are clamped.
func FormatPercent(rate float64) string {
	return fmt.Sprintf("%d%%", Percent(rate))
}

// Percent converts a 0..1 rate to a clamped whole percentage.
func Percent(rate float64) int {
	if math.IsNaN(rate) || rate < 0 {
		return 0
	}
	if rate > 1 {
		return 100
	}
	return int(math.Round(rate * 100))
}

// FormatMomentum renders tasks completed per iteration.
func FormatMomentum(m float64) string {
	if math.IsNaN(m) || m < 0 {
		m = 0
	}
	return fmt.Sprintf("%.2f tasks/iter", m)
}

// FormatClock renders a log timestamp as a wall clock time in UTC.
func FormatClock(t time.Time) string {
	if t.IsZero() {
		return "--:--:--"
	}
	return t.UTC().Format("15:04:05")
}

// SortedLogs returns a copy of logs ordered by timestamp. Entries with equal
// timestamps keep their relative order and logs itself is left untouched.
func SortedLogs(logs []agent.Log) []agent.Log {
	sorted := make([]agent.Log, len(logs))
	copy(sorted, logs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}
