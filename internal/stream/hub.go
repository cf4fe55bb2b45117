package stream

import (
	"context"
	"errors"
	"sync"
)

// DefaultMaxEvents bounds how many events a Hub retains.
const DefaultMaxEvents = 1000

// ErrClosed is returned when appending to a closed Hub.
var ErrClosed = errors.New("stream closed")

// Hub is an append-only, sequence-numbered event log held in memory.
// Readers catch up from any retained sequence number and then wait for
// new events. When the retention bound is exceeded the oldest events are
// dropped; a reader asking for a dropped sequence resumes from the oldest
// retained event.
type Hub struct {
	mu        sync.Mutex
	events    []*Event
	nextSeq   uint64
	maxEvents int
	closed    bool

	longPoll *longPollManager
}

// longPollManager manages channels waiting for new events.
type longPollManager struct {
	mu      sync.Mutex
	waiters []chan struct{}
}

func (lp *longPollManager) notify() {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	for _, ch := range lp.waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (lp *longPollManager) register(ch chan struct{}) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.waiters = append(lp.waiters, ch)
}

func (lp *longPollManager) unregister(ch chan struct{}) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	for i, w := range lp.waiters {
		if w == ch {
			lp.waiters = append(lp.waiters[:i], lp.waiters[i+1:]...)
			break
		}
	}
}

// NewHub creates a Hub retaining at most maxEvents events.
// A non-positive maxEvents uses DefaultMaxEvents.
func NewHub(maxEvents int) *Hub {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &Hub{
		nextSeq:   1,
		maxEvents: maxEvents,
		longPoll:  &longPollManager{},
	}
}

// Append assigns the next sequence number to event and stores it.
func (h *Hub) Append(event *Event) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	event.Seq = h.nextSeq
	h.nextSeq++
	h.events = append(h.events, event)
	if over := len(h.events) - h.maxEvents; over > 0 {
		h.events = append([]*Event(nil), h.events[over:]...)
	}
	h.mu.Unlock()

	h.longPoll.notify()
	return nil
}

// Publish wraps data in an event of the given type and appends it.
func (h *Hub) Publish(msgType MessageType, data any) (*Event, error) {
	event, err := NewEvent(msgType, data)
	if err != nil {
		return nil, err
	}
	if err := h.Append(event); err != nil {
		return nil, err
	}
	return event, nil
}

// Read returns retained events with Seq >= fromSeq.
func (h *Hub) Read(fromSeq uint64) []*Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []*Event
	for _, e := range h.events {
		if e.Seq >= fromSeq {
			out = append(out, e)
		}
	}
	return out
}

// Wait blocks until at least one event with Seq >= fromSeq exists, then
// returns them. It returns the context error if ctx ends first.
func (h *Hub) Wait(ctx context.Context, fromSeq uint64) ([]*Event, error) {
	notifyCh := make(chan struct{}, 1)
	h.longPoll.register(notifyCh)
	defer h.longPoll.unregister(notifyCh)

	for {
		if events := h.Read(fromSeq); len(events) > 0 {
			return events, nil
		}
		if h.isClosed() {
			return nil, ErrClosed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-notifyCh:
		}
	}
}

// Subscribe streams events with Seq >= fromSeq until ctx is done or the
// hub is closed. The channel is closed when the subscription ends.
func (h *Hub) Subscribe(ctx context.Context, fromSeq uint64) <-chan *Event {
	ch := make(chan *Event, 64)

	go func() {
		defer close(ch)

		next := fromSeq
		for {
			events, err := h.Wait(ctx, next)
			if err != nil {
				return
			}
			for _, event := range events {
				select {
				case <-ctx.Done():
					return
				case ch <- event:
					next = event.Seq + 1
				}
			}
		}
	}()

	return ch
}

// LastSeq returns the sequence number of the last event appended,
// or 0 if no events have been appended.
func (h *Hub) LastSeq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextSeq - 1
}

// Latest returns the most recent event of the given type, or nil.
func (h *Hub) Latest(msgType MessageType) *Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].Type == msgType {
			return h.events[i]
		}
	}
	return nil
}

// Close stops the hub. Pending waits return ErrClosed.
// It is safe to call Close multiple times.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.longPoll.notify()
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
