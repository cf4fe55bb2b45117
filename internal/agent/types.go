package agent

import "time"

// TaskStatus is the lifecycle position of a task.
type TaskStatus string

// Task status values.
const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
	TaskBlocked    TaskStatus = "blocked"
)

// Confidence rates how strongly the agent holds an assumption.
type Confidence string

// Confidence values, weakest first.
const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Topic classifies a log entry.
type Topic string

// Log topics.
const (
	TopicAnalysis   Topic = "analysis"
	TopicPlan       Topic = "plan"
	TopicExecution  Topic = "execution"
	TopicReflection Topic = "reflection"
	TopicSummary    Topic = "summary"
)

// Phase is the stage of work a task belongs to.
type Phase string

// Task phases, in execution order for each workstream.
const (
	PhaseScope  Phase = "scope"
	PhaseBuild  Phase = "build"
	PhaseVerify Phase = "verify"
)

// Task is one unit of planned work.
type Task struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Detail   string     `json:"detail"`
	Phase    Phase      `json:"phase"`
	Status   TaskStatus `json:"status"`
	Insights []string   `json:"insights"`
	Attempts int        `json:"attempts"`
}

// Assumption is a belief the plan depends on.
type Assumption struct {
	ID         string     `json:"id"`
	Statement  string     `json:"statement"`
	Confidence Confidence `json:"confidence"`
}

// Log is a single entry in the agent's activity feed.
type Log struct {
	ID        string    `json:"id"`
	Topic     Topic     `json:"topic"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Metrics aggregates progress. It is recomputed on every step.
type Metrics struct {
	CompletionRate float64 `json:"completion_rate"`
	Momentum       float64 `json:"momentum"`
	BlockedCount   int     `json:"blocked_count"`
	Focus          string  `json:"focus"`
}

// ProgressPoint records completed work at the end of an iteration.
type ProgressPoint struct {
	Iteration      int `json:"iteration"`
	TasksCompleted int `json:"tasks_completed"`
}

// State is an immutable snapshot of the agent. Step produces a new value
// for every iteration and never modifies the one it was given.
type State struct {
	Goal          string          `json:"goal"`
	Iteration     int             `json:"iteration"`
	Tasks         []Task          `json:"tasks"`
	Assumptions   []Assumption    `json:"assumptions"`
	Logs          []Log           `json:"logs"`
	Metrics       Metrics         `json:"metrics"`
	IsComplete    bool            `json:"is_complete"`
	IsStalled     bool            `json:"is_stalled"`
	ResultSummary string          `json:"result_summary,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	Progress      []ProgressPoint `json:"progress"`
}

// Terminal reports whether the stepper will make no further changes.
func (s State) Terminal() bool {
	return s.IsComplete || s.IsStalled
}

// clone returns a deep copy so the receiver is never aliased by a successor.
func (s State) clone() State {
	next := s
	next.Tasks = make([]Task, len(s.Tasks))
	for i, t := range s.Tasks {
		t.Insights = append(make([]string, 0, len(t.Insights)+1), t.Insights...)
		next.Tasks[i] = t
	}
	next.Assumptions = append(make([]Assumption, 0, len(s.Assumptions)), s.Assumptions...)
	next.Logs = append(make([]Log, 0, len(s.Logs)+4), s.Logs...)
	next.Progress = append(make([]ProgressPoint, 0, len(s.Progress)+1), s.Progress...)
	return next
}
