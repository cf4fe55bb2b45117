package loop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/thruflo/goalboard/internal/agent"
	"github.com/thruflo/goalboard/internal/stream"
)

var epoch = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

// scriptedStepper terminates at fixed iterations so tests can hit every
// exit path without depending on the simulator's plan.
type scriptedStepper struct {
	completeAt int
	stallAt    int
	panicAt    int

	mu    sync.Mutex
	calls int
}

func (s *scriptedStepper) Initialize(goal string, startedAt time.Time) agent.State {
	return agent.Initialize(goal, startedAt)
}

func (s *scriptedStepper) Step(st agent.State) agent.State {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	next := st
	next.Iteration++
	if next.Iteration == s.panicAt {
		panic("boom")
	}
	next.Logs = append(append([]agent.Log(nil), st.Logs...), agent.Log{
		ID:        fmt.Sprintf("log-%d", next.Iteration),
		Topic:     agent.TopicExecution,
		Message:   "tick",
		Timestamp: st.StartedAt.Add(time.Duration(next.Iteration) * time.Second),
	})
	next.IsComplete = next.Iteration == s.completeAt
	next.IsStalled = next.Iteration == s.stallAt
	return next
}

func (s *scriptedStepper) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingSleep struct {
	mu        sync.Mutex
	durations []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.durations = append(r.durations, d)
	r.mu.Unlock()
	return ctx.Err()
}

// gatedSleep blocks every delay until the test releases it.
type gatedSleep struct {
	calls   chan time.Duration
	release chan struct{}
}

func newGatedSleep() *gatedSleep {
	return &gatedSleep{calls: make(chan time.Duration), release: make(chan struct{})}
}

func (g *gatedSleep) sleep(ctx context.Context, d time.Duration) error {
	select {
	case g.calls <- d:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
	err   error
}

func (f *fakeRecorder) RecordRun(ctx context.Context, snap Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, snap)
	return f.err
}

func newTestController(t *testing.T, stepper agent.Stepper, opts Options) (*Controller, *stream.Hub) {
	t.Helper()
	hub := stream.NewHub(0)
	opts.Stepper = stepper
	opts.Hub = hub
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return epoch }
	}
	if opts.Sleep == nil {
		opts.Sleep = (&recordingSleep{}).sleep
	}
	if opts.NewRunID == nil {
		opts.NewRunID = func() string { return "run-1" }
	}
	return NewController(opts), hub
}

func waitDone(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
}

func stateEvents(t *testing.T, hub *stream.Hub) []Snapshot {
	t.Helper()
	var out []Snapshot
	for _, e := range hub.Read(0) {
		if e.Type != stream.MessageTypeState {
			continue
		}
		var snap Snapshot
		require.NoError(t, e.Decode(&snap))
		out = append(out, snap)
	}
	return out
}

func TestStartRejectsBlankGoal(t *testing.T) {
	for _, goal := range []string{"", "   ", "\t\n"} {
		c, hub := newTestController(t, &scriptedStepper{}, Options{})

		_, err := c.Start(context.Background(), goal)
		assert.ErrorIs(t, err, ErrBlankGoal)

		snap := c.Snapshot()
		assert.Equal(t, PhaseIdle, snap.Phase)
		assert.Nil(t, snap.State)
		assert.Equal(t, uint64(0), hub.LastSeq(), "rejected start publishes nothing")
	}
}

func TestRunCompletes(t *testing.T) {
	sleeps := &recordingSleep{}
	stepper := &scriptedStepper{completeAt: 3}
	c, hub := newTestController(t, stepper, Options{
		SettleDelay: 400 * time.Millisecond,
		StepDelay:   time.Second,
		Sleep:       sleeps.sleep,
	})

	res, err := c.Run(context.Background(), "Ship feature X")
	require.NoError(t, err)

	assert.Equal(t, ExitReasonCompleted, res.Reason)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, []time.Duration{400 * time.Millisecond, time.Second, time.Second, time.Second}, sleeps.durations)

	states := stateEvents(t, hub)
	require.Len(t, states, 4, "initial snapshot plus one per step")
	assert.Equal(t, 0, states[0].State.Iteration)
	assert.Empty(t, states[0].State.Logs)
	for i, s := range states {
		assert.Equal(t, i, s.State.Iteration)
		assert.Equal(t, PhaseRunning, s.Phase)
	}

	latest := hub.Latest(stream.MessageTypeResult)
	require.NotNil(t, latest)
	var final Snapshot
	require.NoError(t, latest.Decode(&final))
	assert.Equal(t, PhaseIdle, final.Phase)
	require.NotNil(t, final.Result)
	assert.Equal(t, ExitReasonCompleted, final.Result.Reason)
}

func TestRunStalls(t *testing.T) {
	c, _ := newTestController(t, &scriptedStepper{stallAt: 2}, Options{})

	res, err := c.Run(context.Background(), "goal")
	require.NoError(t, err)
	assert.Equal(t, ExitReasonStalled, res.Reason)
	assert.Equal(t, 2, res.Iterations)
}

func TestRunStopsAtMaxIterations(t *testing.T) {
	stepper := &scriptedStepper{}
	c, _ := newTestController(t, stepper, Options{MaxIterations: 4})

	res, err := c.Run(context.Background(), "never finishes")
	require.NoError(t, err)
	assert.Equal(t, ExitReasonMaxIterations, res.Reason)
	assert.Equal(t, 4, res.Iterations)
	assert.Equal(t, 4, stepper.Calls())
}

func TestRunWithSimulator(t *testing.T) {
	c, hub := newTestController(t, agent.Simulator{}, Options{})

	res, err := c.Run(context.Background(), "Write docs")
	require.NoError(t, err)
	assert.Equal(t, ExitReasonCompleted, res.Reason)
	assert.Equal(t, 7, res.Iterations)

	snap := c.Snapshot()
	require.NotNil(t, snap.State)
	assert.True(t, snap.State.IsComplete)
	assert.Len(t, stateEvents(t, hub), 8)
}

func TestStartWhileRunningIsRejected(t *testing.T) {
	defer goleak.VerifyNone(t)

	gate := newGatedSleep()
	c, hub := newTestController(t, &scriptedStepper{completeAt: 1}, Options{Sleep: gate.sleep})

	runID, err := c.Start(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)
	<-gate.calls // settle delay

	assert.True(t, c.Snapshot().Running())
	seq := hub.LastSeq()

	_, err = c.Start(context.Background(), "second")
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, seq, hub.LastSeq(), "rejected start publishes nothing")
	assert.Equal(t, "first", c.Snapshot().State.Goal)

	gate.release <- struct{}{}
	<-gate.calls
	gate.release <- struct{}{}
	waitDone(t, c)

	assert.False(t, c.Snapshot().Running())
}

func TestStopTakesEffectAfterInFlightIteration(t *testing.T) {
	defer goleak.VerifyNone(t)

	gate := newGatedSleep()
	stepper := &scriptedStepper{}
	c, hub := newTestController(t, stepper, Options{Sleep: gate.sleep})

	_, err := c.Start(context.Background(), "goal")
	require.NoError(t, err)

	<-gate.calls // settle delay
	gate.release <- struct{}{}
	<-gate.calls // first step delay is now in flight

	assert.True(t, c.Stop())
	assert.True(t, c.Snapshot().StopRequested)
	assert.Equal(t, 0, stepper.Calls(), "stop does not interrupt the delay")

	gate.release <- struct{}{}
	waitDone(t, c)

	assert.Equal(t, 1, stepper.Calls(), "the in-flight iteration completes")
	states := stateEvents(t, hub)
	require.Len(t, states, 2)
	assert.Equal(t, 1, states[1].State.Iteration)

	snap := c.Snapshot()
	require.NotNil(t, snap.Result)
	assert.Equal(t, ExitReasonUserStopped, snap.Result.Reason)
	assert.Equal(t, 1, snap.Result.Iterations)
	assert.False(t, snap.StopRequested)
}

func TestStopDuringSettleSkipsStepping(t *testing.T) {
	defer goleak.VerifyNone(t)

	gate := newGatedSleep()
	stepper := &scriptedStepper{}
	c, _ := newTestController(t, stepper, Options{Sleep: gate.sleep})

	_, err := c.Start(context.Background(), "goal")
	require.NoError(t, err)
	<-gate.calls

	c.Stop()
	gate.release <- struct{}{}
	waitDone(t, c)

	assert.Equal(t, 0, stepper.Calls())
	assert.Equal(t, ExitReasonUserStopped, c.Snapshot().Result.Reason)
}

func TestStopWhenIdle(t *testing.T) {
	c, _ := newTestController(t, &scriptedStepper{}, Options{})
	assert.False(t, c.Stop())
}

func TestShutdownCancelsDelay(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewController(Options{
		Stepper:     &scriptedStepper{},
		SettleDelay: time.Hour,
		Clock:       func() time.Time { return epoch },
	})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := c.Start(ctx, "goal")
	require.NoError(t, err)
	cancel()
	waitDone(t, c)

	assert.Equal(t, ExitReasonShutdown, c.Snapshot().Result.Reason)
}

func TestStepPanicEndsRunAsCrash(t *testing.T) {
	c, _ := newTestController(t, &scriptedStepper{panicAt: 2}, Options{})

	res, err := c.Run(context.Background(), "goal")
	require.NoError(t, err)
	assert.Equal(t, ExitReasonCrash, res.Reason)
	assert.Equal(t, 1, res.Iterations)
	assert.Contains(t, res.Error, "boom")
	assert.False(t, c.Snapshot().Running())
}

func TestRecorderReceivesFinishedRun(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk full")}
	c, _ := newTestController(t, &scriptedStepper{completeAt: 2}, Options{Recorder: rec})

	res, err := c.Run(context.Background(), "goal")
	require.NoError(t, err)
	assert.Equal(t, ExitReasonCompleted, res.Reason, "recorder errors do not change the outcome")

	require.Len(t, rec.snaps, 1)
	snap := rec.snaps[0]
	assert.Equal(t, "run-1", snap.RunID)
	require.NotNil(t, snap.Result)
	require.NotNil(t, snap.State)
	assert.Equal(t, 2, snap.State.Iteration)
}

func TestOnSnapshotObservesEveryPublish(t *testing.T) {
	var phases []Phase
	c, _ := newTestController(t, &scriptedStepper{completeAt: 2}, Options{
		OnSnapshot: func(s Snapshot) { phases = append(phases, s.Phase) },
	})

	_, err := c.Run(context.Background(), "goal")
	require.NoError(t, err)
	assert.Equal(t, []Phase{PhaseRunning, PhaseRunning, PhaseRunning, PhaseIdle}, phases)
}

func TestControllerCanRunAgain(t *testing.T) {
	ids := []string{"a", "b"}
	c, _ := newTestController(t, &scriptedStepper{completeAt: 1}, Options{
		NewRunID: func() string {
			id := ids[0]
			ids = ids[1:]
			return id
		},
	})

	first, err := c.Run(context.Background(), "one")
	require.NoError(t, err)
	second, err := c.Run(context.Background(), "two")
	require.NoError(t, err)

	assert.Equal(t, "a", first.RunID)
	assert.Equal(t, "b", second.RunID)
	assert.Equal(t, "two", c.Snapshot().State.Goal)
}

func TestNewControllerDefaults(t *testing.T) {
	c := NewController(Options{})
	assert.Equal(t, agent.MaxIterations, c.MaxIterations())
	assert.IsType(t, agent.Simulator{}, c.stepper)

	snap := c.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, agent.MaxIterations, snap.MaxIterations)

	select {
	case <-c.Done():
	default:
		t.Fatal("Done should be closed before any run")
	}
}

func TestExitReasonString(t *testing.T) {
	tests := []struct {
		reason ExitReason
		want   string
	}{
		{ExitReasonUnknown, "unknown"},
		{ExitReasonCompleted, "completed"},
		{ExitReasonStalled, "stalled"},
		{ExitReasonMaxIterations, "max iterations"},
		{ExitReasonUserStopped, "user stopped"},
		{ExitReasonShutdown, "shutdown"},
		{ExitReasonCrash, "crash"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.reason.String())

			data, err := json.Marshal(tt.reason)
			require.NoError(t, err)
			var back ExitReason
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, tt.reason, back)
		})
	}
}
