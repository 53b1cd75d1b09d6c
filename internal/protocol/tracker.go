package protocol

import (
	"sync"
	"time"
)

// TimelineStatus is the lifecycle state of a tracked request.
type TimelineStatus string

const (
	// StatusPending means the request was sent and no response arrived yet.
	StatusPending TimelineStatus = "pending"

	// StatusComplete means a response (success or error) was recorded.
	StatusComplete TimelineStatus = "complete"
)

// TrackedNotification is a structured record of an intermediate
// notification, immutable once appended to its timeline.
type TrackedNotification struct {
	Type             EventType
	Message          map[string]any
	Timestamp        time.Time
	SessionID        string
	RelatedRequestID string
}

// RequestTimeline records the full lifecycle of one request: what was
// sent, every notification observed for it, and its response.
type RequestTimeline struct {
	RequestID     string
	Method        string
	Params        map[string]any
	SentAt        time.Time
	Response      map[string]any
	CompletedAt   time.Time
	Status        TimelineStatus
	SessionID     string
	Notifications []TrackedNotification
}

// EventTracker groups notifications and responses by request id.
//
// Timelines are created lazily on first reference and live for the process
// lifetime. A timeline's session id is bound first-write-wins: later
// correlation attempts never overwrite it.
type EventTracker struct {
	mu        sync.Mutex
	timelines map[string]*RequestTimeline
}

// NewEventTracker creates an empty tracker.
func NewEventTracker() *EventTracker {
	return &EventTracker{timelines: make(map[string]*RequestTimeline, 16)}
}

// ensureTimeline returns the timeline for requestID, creating it if needed.
// Caller must hold t.mu.
func (t *EventTracker) ensureTimeline(requestID string) *RequestTimeline {
	timeline, ok := t.timelines[requestID]
	if !ok {
		timeline = &RequestTimeline{RequestID: requestID, Status: StatusPending}
		t.timelines[requestID] = timeline
	}

	return timeline
}

// TrackOutgoing records an outgoing request.
func (t *EventTracker) TrackOutgoing(
	requestID string,
	method string,
	params map[string]any,
	sessionHint string,
	sentAt time.Time,
) {
	t.mu.Lock()
	defer t.mu.Unlock()

	timeline := t.ensureTimeline(requestID)
	timeline.Method = method
	timeline.Params = params
	timeline.SentAt = sentAt
	timeline.Status = StatusPending

	if sessionHint != "" && timeline.SessionID == "" {
		timeline.SessionID = sessionHint
	}
}

// SetSessionID binds a session id to the timeline, first-write-wins.
func (t *EventTracker) SetSessionID(requestID, sessionID string) {
	if sessionID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	timeline := t.ensureTimeline(requestID)
	if timeline.SessionID == "" {
		timeline.SessionID = sessionID
	}
}

// TrackNotification appends a notification to the timeline. If the
// notification carries a session id and the timeline has none, it binds.
func (t *EventTracker) TrackNotification(requestID string, notification TrackedNotification) {
	t.mu.Lock()
	defer t.mu.Unlock()

	timeline := t.ensureTimeline(requestID)
	timeline.Notifications = append(timeline.Notifications, notification)

	if notification.SessionID != "" && timeline.SessionID == "" {
		timeline.SessionID = notification.SessionID
	}
}

// TrackResponse records the terminal response for a request.
func (t *EventTracker) TrackResponse(
	requestID string,
	message map[string]any,
	completedAt time.Time,
	sessionID string,
) {
	t.mu.Lock()
	defer t.mu.Unlock()

	timeline := t.ensureTimeline(requestID)
	timeline.Response = message
	timeline.CompletedAt = completedAt
	timeline.Status = StatusComplete

	if sessionID != "" && timeline.SessionID == "" {
		timeline.SessionID = sessionID
	}
}

// SessionID returns the bound session id for a request, or "".
func (t *EventTracker) SessionID(requestID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timeline, ok := t.timelines[requestID]; ok {
		return timeline.SessionID
	}

	return ""
}

// GetTimeline returns a snapshot of the timeline for requestID.
// The second return is false if the request was never referenced.
func (t *EventTracker) GetTimeline(requestID string) (RequestTimeline, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	timeline, ok := t.timelines[requestID]
	if !ok {
		return RequestTimeline{}, false
	}

	snapshot := *timeline
	snapshot.Notifications = make([]TrackedNotification, len(timeline.Notifications))
	copy(snapshot.Notifications, timeline.Notifications)

	return snapshot, true
}
