package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/thruflo/goalboard/internal/agent"
	"github.com/thruflo/goalboard/internal/logging"
	"github.com/thruflo/goalboard/internal/stream"
)

var (
	// ErrBlankGoal is returned when Start is called with an empty goal.
	ErrBlankGoal = errors.New("goal is blank")
	// ErrAlreadyRunning is returned when Start is called during a run.
	ErrAlreadyRunning = errors.New("a run is already active")
)

// ExitReason indicates why a run stopped.
type ExitReason int

const (
	ExitReasonUnknown       ExitReason = iota
	ExitReasonCompleted                // Agent reported completion
	ExitReasonStalled                  // Agent reported a stall
	ExitReasonMaxIterations            // Hit iteration ceiling
	ExitReasonUserStopped              // Stop was requested
	ExitReasonShutdown                 // Context cancelled
	ExitReasonCrash                    // Step function panicked
)

// String returns a human-readable description of the exit reason.
func (r ExitReason) String() string {
	switch r {
	case ExitReasonCompleted:
		return "completed"
	case ExitReasonStalled:
		return "stalled"
	case ExitReasonMaxIterations:
		return "max iterations"
	case ExitReasonUserStopped:
		return "user stopped"
	case ExitReasonShutdown:
		return "shutdown"
	case ExitReasonCrash:
		return "crash"
	default:
		return "unknown"
	}
}

// MarshalText encodes the reason as its string form.
func (r ExitReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a reason produced by MarshalText.
func (r *ExitReason) UnmarshalText(text []byte) error {
	for c := ExitReasonCompleted; c <= ExitReasonCrash; c++ {
		if c.String() == string(text) {
			*r = c
			return nil
		}
	}
	*r = ExitReasonUnknown
	return nil
}

// Phase is the controller's lifecycle position.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
)

// Result contains the outcome of a run.
type Result struct {
	RunID      string     `json:"run_id"`
	Reason     ExitReason `json:"reason"`
	Iterations int        `json:"iterations"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Error      string     `json:"error,omitempty"`
}

// Snapshot is what clients render: the controller phase plus the latest
// agent state and, once a run has ended, its result.
type Snapshot struct {
	RunID         string       `json:"run_id,omitempty"`
	Phase         Phase        `json:"phase"`
	StopRequested bool         `json:"stop_requested"`
	MaxIterations int          `json:"max_iterations"`
	State         *agent.State `json:"state,omitempty"`
	Result        *Result      `json:"result,omitempty"`
}

// Running reports whether a run is active.
func (s Snapshot) Running() bool {
	return s.Phase == PhaseRunning
}

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, snap Snapshot) error
}

// Options configures a Controller. Zero values select defaults.
type Options struct {
	Stepper       agent.Stepper
	MaxIterations int
	SettleDelay   time.Duration
	StepDelay     time.Duration

	Hub      *stream.Hub // Optional: receives every snapshot and result
	Recorder Recorder    // Optional: receives each finished run
	Logger   *logging.Logger

	// OnSnapshot, if set, is called after every publish. It runs on the
	// loop goroutine and must not call back into the Controller.
	OnSnapshot func(Snapshot)

	// Test seams.
	Clock    func() time.Time
	Sleep    func(ctx context.Context, d time.Duration) error
	NewRunID func() string
}

// Controller drives one agent run at a time.
type Controller struct {
	stepper       agent.Stepper
	maxIterations int
	settleDelay   time.Duration
	stepDelay     time.Duration
	hub           *stream.Hub
	recorder      Recorder
	log           *logging.Logger
	onSnapshot    func(Snapshot)
	clock         func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
	newRunID      func() string

	stopRequested atomic.Bool

	mu      sync.Mutex
	running bool
	runID   string
	state   *agent.State
	result  *Result
	done    chan struct{}
}

// NewController creates a Controller from opts.
func NewController(opts Options) *Controller {
	c := &Controller{
		stepper:       opts.Stepper,
		maxIterations: opts.MaxIterations,
		settleDelay:   opts.SettleDelay,
		stepDelay:     opts.StepDelay,
		hub:           opts.Hub,
		recorder:      opts.Recorder,
		log:           opts.Logger,
		onSnapshot:    opts.OnSnapshot,
		clock:         opts.Clock,
		sleep:         opts.Sleep,
		newRunID:      opts.NewRunID,
	}
	if c.stepper == nil {
		c.stepper = agent.Simulator{}
	}
	if c.maxIterations <= 0 {
		c.maxIterations = agent.MaxIterations
	}
	if c.log == nil {
		c.log = logging.With("component", "loop")
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	if c.newRunID == nil {
		c.newRunID = uuid.NewString
	}
	done := make(chan struct{})
	close(done)
	c.done = done
	return c
}

// MaxIterations returns the iteration ceiling.
func (c *Controller) MaxIterations() int {
	return c.maxIterations
}

// Start begins a run in the background and returns its ID. The run lives
// until it terminates or ctx is cancelled, so ctx should be scoped to the
// process rather than to a single request.
func (c *Controller) Start(ctx context.Context, goal string) (string, error) {
	initial, runID, started, err := c.begin(goal)
	if err != nil {
		return "", err
	}
	go c.execute(ctx, runID, initial, started)
	return runID, nil
}

// Run executes a run on the calling goroutine and returns its result.
func (c *Controller) Run(ctx context.Context, goal string) (Result, error) {
	initial, runID, started, err := c.begin(goal)
	if err != nil {
		return Result{}, err
	}
	return c.execute(ctx, runID, initial, started), nil
}

// Stop requests that the active run end after its current iteration.
// It returns false when no run is active.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return false
	}
	if c.stopRequested.CompareAndSwap(false, true) {
		c.log.Info("stop requested", "run_id", c.runID)
	}
	return true
}

// Done returns a channel that is closed when the current (or most recent)
// run has finished.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Snapshot returns the current view of the controller.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		RunID:         c.runID,
		Phase:         PhaseIdle,
		StopRequested: c.running && c.stopRequested.Load(),
		MaxIterations: c.maxIterations,
	}
	if c.running {
		snap.Phase = PhaseRunning
	}
	if c.state != nil {
		st := *c.state
		snap.State = &st
	}
	if c.result != nil {
		res := *c.result
		snap.Result = &res
	}
	return snap
}

// begin validates goal and moves the controller into the running phase.
func (c *Controller) begin(goal string) (agent.State, string, time.Time, error) {
	if strings.TrimSpace(goal) == "" {
		return agent.State{}, "", time.Time{}, ErrBlankGoal
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return agent.State{}, "", time.Time{}, ErrAlreadyRunning
	}

	started := c.clock()
	initial := c.stepper.Initialize(goal, started)

	c.running = true
	c.stopRequested.Store(false)
	c.runID = c.newRunID()
	c.result = nil
	c.done = make(chan struct{})
	c.publishLocked(initial)

	c.log.Info("run started", "run_id", c.runID, "goal", initial.Goal)
	return initial, c.runID, started, nil
}

// execute is the run loop.
func (c *Controller) execute(ctx context.Context, runID string, current agent.State, started time.Time) Result {
	res := Result{RunID: runID, StartedAt: started}
	log := c.log.With("run_id", runID)

	if err := c.sleep(ctx, c.settleDelay); err != nil {
		res.Reason = ExitReasonShutdown
		return c.finish(ctx, res, current)
	}

	for {
		if c.stopRequested.Load() {
			res.Reason = ExitReasonUserStopped
			break
		}

		if err := c.sleep(ctx, c.stepDelay); err != nil {
			res.Reason = ExitReasonShutdown
			break
		}

		next, err := c.step(current)
		if err != nil {
			log.Error("step failed", "iteration", current.Iteration+1, "error", err)
			res.Reason = ExitReasonCrash
			res.Error = err.Error()
			break
		}
		current = next
		c.publish(current)
		log.Debug("step", "iteration", current.Iteration, "completion", current.Metrics.CompletionRate)

		if current.IsComplete {
			res.Reason = ExitReasonCompleted
			break
		}
		if current.IsStalled {
			res.Reason = ExitReasonStalled
			break
		}
		if current.Iteration >= c.maxIterations {
			res.Reason = ExitReasonMaxIterations
			break
		}
	}

	return c.finish(ctx, res, current)
}

// step calls the stepper, turning a panic into an error.
func (c *Controller) step(s agent.State) (next agent.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step panicked: %v", r)
		}
	}()
	return c.stepper.Step(s), nil
}

func (c *Controller) publish(s agent.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishLocked(s)
}

func (c *Controller) publishLocked(s agent.State) {
	c.state = &s
	snap := c.snapshotLocked()
	if c.hub != nil {
		if _, err := c.hub.Publish(stream.MessageTypeState, snap); err != nil {
			c.log.Warn("failed to publish snapshot", "run_id", c.runID, "error", err)
		}
	}
	if c.onSnapshot != nil {
		c.onSnapshot(snap)
	}
}

// finish records the result and returns the controller to idle.
func (c *Controller) finish(ctx context.Context, res Result, final agent.State) Result {
	res.Iterations = final.Iteration
	res.FinishedAt = c.clock()

	c.mu.Lock()
	c.running = false
	c.result = &res
	snap := c.snapshotLocked()
	if c.hub != nil {
		if _, err := c.hub.Publish(stream.MessageTypeResult, snap); err != nil {
			c.log.Warn("failed to publish result", "run_id", res.RunID, "error", err)
		}
	}
	if c.onSnapshot != nil {
		c.onSnapshot(snap)
	}
	done := c.done
	c.mu.Unlock()

	if c.recorder != nil {
		if err := c.recorder.RecordRun(context.WithoutCancel(ctx), snap); err != nil {
			c.log.Warn("failed to record run", "run_id", res.RunID, "error", err)
		}
	}

	c.log.Info("run finished", "run_id", res.RunID, "reason", res.Reason.String(), "iterations", res.Iterations)
	close(done)
	return res
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
