//go:build integration

// Package integration exercises goalboard end to end: a real controller,
// event hub, sqlite history and HTTP server on a loopback port.
//
//	go test -tags=integration ./internal/integration/...
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thruflo/goalboard/internal/loop"
	"github.com/thruflo/goalboard/internal/server"
	"github.com/thruflo/goalboard/internal/store"
	"github.com/thruflo/goalboard/internal/stream"
	"github.com/thruflo/goalboard/internal/testutil"
)

// stack is a running dashboard.
type stack struct {
	baseURL string
	ctrl    *loop.Controller
	hub     *stream.Hub
	history *store.Store
	client  *http.Client
	token   string
}

type stackOptions struct {
	stepDelay    time.Duration
	passwordHash string
}

// startStack wires the same components as `goalboard serve` and tears
// them down when the test ends.
func startStack(t *testing.T, opts stackOptions) *stack {
	t.Helper()

	history, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)

	hub := stream.NewHub(0)
	ctrl := loop.NewController(loop.Options{
		StepDelay: opts.stepDelay,
		Hub:       hub,
		Recorder:  history,
	})

	srv, err := server.NewServer(&server.Config{
		Port:            0,
		PasswordHash:    opts.passwordHash,
		Controller:      ctrl,
		Hub:             hub,
		History:         history,
		LongPollTimeout: 2 * time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()
	require.Eventually(t, func() bool { return srv.ListenAddr() != "" }, 5*time.Second, 10*time.Millisecond)

	client := &http.Client{Timeout: 10 * time.Second}
	t.Cleanup(func() {
		cancel()
		require.NoError(t, srv.Stop())
		require.NoError(t, <-errCh)
		<-ctrl.Done()
		hub.Close()
		client.CloseIdleConnections()
		require.NoError(t, history.Close())
	})

	_, port, err := net.SplitHostPort(srv.ListenAddr())
	require.NoError(t, err)
	return &stack{
		baseURL: "http://127.0.0.1:" + port,
		ctrl:    ctrl,
		hub:     hub,
		history: history,
		client:  client,
	}
}

// do sends a JSON request and returns the response with its body read.
func (s *stack) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(testutil.MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, s.baseURL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

// startRun submits goal and returns the run ID.
func (s *stack) startRun(t *testing.T, goal string) string {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/api/runs", map[string]string{"goal": goal})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var out struct {
		RunID string `json:"run_id"`
	}
	testutil.MustUnmarshalJSON(t, body, &out)
	require.NotEmpty(t, out.RunID)
	return out.RunID
}

// readEvents long-polls from offset and returns the events and the next
// offset to resume from.
func (s *stack) readEvents(t *testing.T, offset uint64) ([]*stream.Event, uint64) {
	t.Helper()
	resp, body := s.do(t, http.MethodGet, "/api/events?live=long-poll&offset="+strconv.FormatUint(offset, 10), nil)

	next, err := strconv.ParseUint(resp.Header.Get("Stream-Next-Offset"), 10, 64)
	require.NoError(t, err)
	if resp.StatusCode == http.StatusNoContent {
		return nil, next
	}
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var events []*stream.Event
	testutil.MustUnmarshalJSON(t, body, &events)
	return events, next
}

// collectUntilResult reads events from offset until a result event
// arrives.
func (s *stack) collectUntilResult(t *testing.T, offset uint64) ([]*stream.Event, uint64) {
	t.Helper()
	ctx, cancel := testutil.ShortOperationContext(t)
	defer cancel()

	var all []*stream.Event
	for ctx.Err() == nil {
		events, next := s.readEvents(t, offset)
		all = append(all, events...)
		offset = next
		for _, ev := range events {
			if ev.Type == stream.MessageTypeResult {
				return all, offset
			}
		}
	}
	t.Fatal("no result event before the deadline")
	return nil, 0
}

func decodeSnapshot(t *testing.T, ev *stream.Event) loop.Snapshot {
	t.Helper()
	var snap loop.Snapshot
	require.NoError(t, ev.Decode(&snap))
	return snap
}

// requireContiguous checks that events carry consecutive sequence numbers
// starting at from.
func requireContiguous(t *testing.T, events []*stream.Event, from uint64) {
	t.Helper()
	for i, ev := range events {
		require.Equal(t, from+uint64(i), ev.Seq, "event %d", i)
	}
}
