package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thruflo/goalboard/internal/stream"
)

// Response headers describing the event log position.
const (
	headerNextOffset = "Stream-Next-Offset"
	headerUpToDate   = "Stream-Up-To-Date"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// parseOffset reads the first sequence number the client wants. Empty
// means everything retained and "now" means only future events.
func (s *Server) parseOffset(r *http.Request) (uint64, error) {
	if id := r.Header.Get("Last-Event-ID"); id != "" {
		seq, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid Last-Event-ID: %w", err)
		}
		return seq + 1, nil
	}

	switch v := r.URL.Query().Get("offset"); v {
	case "":
		return 0, nil
	case "now":
		return s.hub.LastSeq() + 1, nil
	default:
		seq, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid offset: %w", err)
		}
		return seq, nil
	}
}

// handleEvents serves the event log in catch-up, long-poll or SSE mode.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	offset, err := s.parseOffset(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	live := r.URL.Query().Get("live")
	if live == "sse" {
		s.handleSSE(w, r, offset)
		return
	}

	events := s.hub.Read(offset)
	if live == "long-poll" && len(events) == 0 {
		ctx, cancel := context.WithTimeout(r.Context(), s.longPollTimeout)
		events, err = s.hub.Wait(ctx, offset)
		cancel()
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			s.writeOffsetHeaders(w, offset, nil)
			w.WriteHeader(http.StatusNoContent)
			return
		case errors.Is(err, stream.ErrClosed):
			http.Error(w, "stream closed", http.StatusServiceUnavailable)
			return
		case err != nil:
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	s.writeOffsetHeaders(w, offset, events)
	if events == nil {
		events = []*stream.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// writeOffsetHeaders tells the client where to resume.
func (s *Server) writeOffsetHeaders(w http.ResponseWriter, offset uint64, events []*stream.Event) {
	last := s.hub.LastSeq()
	next := last + 1
	if len(events) > 0 {
		next = events[len(events)-1].Seq + 1
	} else if offset > next {
		next = offset
	}
	w.Header().Set(headerNextOffset, strconv.FormatUint(next, 10))
	if next > last {
		w.Header().Set(headerUpToDate, "true")
	}
}

// handleSSE streams events as they are appended. The connection is closed
// periodically so proxies do not hold it forever; EventSource reconnects
// with Last-Event-ID and resumes where it left off.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request, offset uint64) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	writeControl(w, offset, s.hub.LastSeq())
	flusher.Flush()

	ctx, cancel := context.WithTimeout(r.Context(), s.sseReconnect)
	defer cancel()

	for ev := range s.hub.Subscribe(ctx, offset) {
		data, err := json.Marshal(ev)
		if err != nil {
			s.log.Warn("failed to encode event", "seq", ev.Seq, "error", err)
			continue
		}
		fmt.Fprintf(w, "id: %d\nevent: data\ndata: %s\n\n", ev.Seq, data)
		writeControl(w, ev.Seq+1, s.hub.LastSeq())
		flusher.Flush()
	}
}

func writeControl(w http.ResponseWriter, next, last uint64) {
	control, _ := json.Marshal(map[string]any{
		"streamNextOffset": strconv.FormatUint(next, 10),
		"upToDate":         next > last,
	})
	fmt.Fprintf(w, "event: control\ndata: %s\n\n", control)
}

// handleWebSocket pushes events to a WebSocket client. Messages from the
// client are read only to notice when it goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	offset, err := s.parseOffset(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	events := s.hub.Subscribe(ctx, offset)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(wsWriteWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
