package protocol

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/parallelcodex/codex-sdk-go/internal/errors"
)

// EventType categorizes events from the MCP server.
type EventType string

const (
	// EventRequest marks an outgoing request.
	EventRequest EventType = "request"

	// EventResponse marks a response to an earlier request.
	EventResponse EventType = "response"

	// EventNotification marks a generic server notification.
	EventNotification EventType = "notification"

	// EventProgress marks a progress notification.
	EventProgress EventType = "progress"

	// EventLogging marks a logging notification.
	EventLogging EventType = "logging"

	// EventError marks an error notification.
	EventError EventType = "error"
)

// ClassifyMethod maps a notification method name to an event type by
// case-insensitive substring. Purely advisory for rendering; it carries no
// correlation semantics.
func ClassifyMethod(method string) EventType {
	if method == "" {
		return EventNotification
	}

	lowered := strings.ToLower(method)

	switch {
	case strings.Contains(lowered, "progress"):
		return EventProgress
	case strings.Contains(lowered, "logging"):
		return EventLogging
	case strings.Contains(lowered, "error"):
		return EventError
	default:
		return EventNotification
	}
}

// CodexEvent is a decoded event or response from the MCP server, the unit
// published on event queues.
type CodexEvent struct {
	// Raw is the full decoded frame.
	Raw map[string]any

	// SessionID is the session the event belongs to, when known.
	SessionID string

	// IsNotification is true for server notifications, false for responses.
	IsNotification bool

	// Type is the advisory classification of the event.
	Type EventType

	// RelatedRequestID is the request this event correlates to, when known.
	RelatedRequestID string

	// RequestID is set on responses to the id they answer.
	RequestID string

	// Assumed is true when the session binding came from the FIFO fallback
	// rather than an explicit related request id. It makes a potentially
	// mis-attributed correlation observable to consumers.
	Assumed bool

	// Timestamp is when the event was processed.
	Timestamp time.Time
}

// EventQueue is an ordered, unbounded stream of events with destructive
// reads: each event is delivered to exactly one Next call.
//
// Queues are unbounded so a slow consumer of one session's stream can never
// stall the reader loop, which would stall every other session too.
type EventQueue struct {
	mu     sync.Mutex
	items  []CodexEvent
	wake   chan struct{}
	closed bool
}

// NewEventQueue creates an empty event queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{wake: make(chan struct{}, 1)}
}

// push appends an event and wakes one waiting reader.
func (q *EventQueue) push(ev CodexEvent) {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()

		return
	}

	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// close marks the queue terminal. Buffered events remain readable; once
// drained, Next returns ErrTransportClosed.
func (q *EventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available, the queue is closed and
// drained, or the context is cancelled.
func (q *EventQueue) Next(ctx context.Context) (CodexEvent, error) {
	for {
		q.mu.Lock()

		if len(q.items) > 0 {
			ev := q.items[0]
			q.items = q.items[1:]

			// Keep the wake token hot for the next reader
			if len(q.items) > 0 || q.closed {
				select {
				case q.wake <- struct{}{}:
				default:
				}
			}

			q.mu.Unlock()

			return ev, nil
		}

		closed := q.closed
		q.mu.Unlock()

		if closed {
			// Pass the wake token along so every other blocked reader also
			// observes the close instead of waiting forever.
			select {
			case q.wake <- struct{}{}:
			default:
			}

			return CodexEvent{}, errors.ErrTransportClosed
		}

		select {
		case <-q.wake:
		case <-ctx.Done():
			return CodexEvent{}, ctx.Err()
		}
	}
}

// TryNext pops the next event without blocking.
func (q *EventQueue) TryNext() (CodexEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return CodexEvent{}, false
	}

	ev := q.items[0]
	q.items = q.items[1:]

	return ev, true
}

// Len reports the number of buffered events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}
