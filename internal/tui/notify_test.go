package tui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/goalboard/internal/loop"
)

type osCall struct {
	title, message string
}

func newTestNotifier() (*Notifier, *bytes.Buffer, *[]osCall) {
	var buf bytes.Buffer
	var calls []osCall
	n := NewNotifier(&buf)
	n.notifyOS = func(title, message string) error {
		calls = append(calls, osCall{title, message})
		return nil
	}
	return n, &buf, &calls
}

func TestNotifierBell(t *testing.T) {
	n, buf, _ := newTestNotifier()

	n.Bell()
	n.Bell()

	assert.Equal(t, Bell+Bell, buf.String())
}

func TestNotifierForegroundRingsBell(t *testing.T) {
	n, buf, calls := newTestNotifier()

	require.NoError(t, n.NotifyAttention("title", "message", true))

	assert.Equal(t, Bell, buf.String())
	assert.Empty(t, *calls)
}

func TestNotifierBackgroundUsesOS(t *testing.T) {
	n, buf, calls := newTestNotifier()

	require.NoError(t, n.NotifyAttention("title", "message", false))

	assert.Empty(t, buf.String())
	assert.Equal(t, []osCall{{"title", "message"}}, *calls)
}

func TestNotifyResult(t *testing.T) {
	n, _, calls := newTestNotifier()

	res := loop.Result{Reason: loop.ExitReasonCompleted, Iterations: 7}
	require.NoError(t, n.NotifyResult(res, "Write docs", false))

	require.Len(t, *calls, 1)
	assert.Equal(t, "goalboard: Completed", (*calls)[0].title)
	assert.Equal(t, `"Write docs" completed after 7 iterations`, (*calls)[0].message)
}

func TestResultTitleAndMessage(t *testing.T) {
	tests := []struct {
		res     loop.Result
		title   string
		message string
	}{
		{loop.Result{Reason: loop.ExitReasonStalled, Iterations: 5}, "goalboard: Stalled", `"g" stalled after 5 iterations`},
		{loop.Result{Reason: loop.ExitReasonMaxIterations, Iterations: 12}, "goalboard: Iteration Limit", `"g" reached the iteration limit`},
		{loop.Result{Reason: loop.ExitReasonUserStopped, Iterations: 2}, "goalboard: Stopped", `"g" ended after 2 iterations`},
		{loop.Result{Reason: loop.ExitReasonShutdown}, "goalboard: Interrupted", `"g" ended after 0 iterations`},
		{loop.Result{Reason: loop.ExitReasonCrash, Error: "boom"}, "goalboard: Crashed", `"g" crashed: boom`},
		{loop.Result{}, "goalboard", `"g" ended after 0 iterations`},
	}

	for _, tt := range tests {
		t.Run(tt.res.Reason.String(), func(t *testing.T) {
			assert.Equal(t, tt.title, ResultTitle(tt.res.Reason))
			assert.Equal(t, tt.message, ResultMessage(tt.res, "g"))
		})
	}
}
