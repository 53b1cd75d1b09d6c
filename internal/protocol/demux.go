package protocol

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/parallelcodex/codex-sdk-go/internal/config"
	"github.com/parallelcodex/codex-sdk-go/internal/errors"
	"github.com/parallelcodex/codex-sdk-go/internal/wire"
)

const (
	// ToolCodex starts a new Codex session. Calls to it are session-less:
	// the server assigns a session id asynchronously.
	ToolCodex = "codex"

	// ToolCodexReply continues an existing session.
	ToolCodexReply = "codex-reply"

	// sessionConfiguredMethod announces a server-assigned session id.
	sessionConfiguredMethod = "session_configured"
)

// SendFunc transmits a prepared request. The caller controls exact send
// timing; the pending call is already registered when SendFunc is returned,
// so a response can never race its registration.
type SendFunc func(ctx context.Context) error

// callOutcome is the terminal result of a call.
type callOutcome struct {
	result any
	err    error
}

// Call is the completion handle for one outstanding request.
type Call struct {
	id      int64
	tool    string
	outcome chan callOutcome
}

// ID returns the wire request id.
func (c *Call) ID() int64 { return c.id }

// StringID returns the request id in the form used by timelines and
// correlation hints.
func (c *Call) StringID() string { return strconv.FormatInt(c.id, 10) }

// Wait blocks until the call completes or ctx is cancelled.
//
// Cancelling the wait does not retract the request: it runs to completion
// on the server and the outcome is discarded if no one receives it.
func (c *Call) Wait(ctx context.Context) (any, error) {
	select {
	case out := <-c.outcome:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pendingCall is the registry entry for an outstanding request.
type pendingCall struct {
	call        *Call
	tool        string
	sessionHint string
}

// Demuxer owns all shared correlation state: the pending-call registry, the
// session-less FIFO, per-session event queues, and the request timelines.
//
// All mutation driven by incoming frames funnels through the single reader
// goroutine; callers enter only via PrepareToolCall/PrepareRequest and the
// queue accessors, which take the same mutex.
type Demuxer struct {
	log       *slog.Logger
	transport config.Transport
	tracker   *EventTracker

	mu            sync.Mutex
	nextID        int64
	pending       map[int64]*pendingCall
	sessionless   []*pendingCall
	sessionQueues map[string]*EventQueue
	sessions      map[string]struct{}

	global *EventQueue

	closeOnce sync.Once
	abortOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewDemuxer creates a demuxer over the given transport.
func NewDemuxer(log *slog.Logger, transport config.Transport) *Demuxer {
	return &Demuxer{
		log:           log.With("component", "demux"),
		transport:     transport,
		tracker:       NewEventTracker(),
		nextID:        1,
		pending:       make(map[int64]*pendingCall, 10),
		sessionQueues: make(map[string]*EventQueue, 4),
		sessions:      make(map[string]struct{}, 4),
		global:        NewEventQueue(),
		done:          make(chan struct{}),
	}
}

// Start launches the single reader goroutine for the connection.
//
// There must never be a second reader: the FIFO fallback depends on frames
// being processed strictly in arrival order.
func (d *Demuxer) Start(ctx context.Context) {
	messages, errs := d.transport.ReadMessages(ctx)

	d.wg.Add(1)

	go d.readLoop(ctx, messages, errs)

	d.log.Debug("Demuxer started")
}

// Stop signals the reader loop to exit and waits for it. Any calls still
// pending are rejected with ErrTransportClosed. Safe to call multiple times.
func (d *Demuxer) Stop() {
	d.closeOnce.Do(func() {
		close(d.done)
	})

	d.wg.Wait()
}

// Done is closed when the reader loop has terminated.
func (d *Demuxer) Done() <-chan struct{} { return d.done }

// Tracker exposes the shared event tracker for request timelines.
func (d *Demuxer) Tracker() *EventTracker { return d.tracker }

// GlobalEvents returns the queue receiving every decoded frame.
func (d *Demuxer) GlobalEvents() *EventQueue { return d.global }

// SessionEvents returns the queue receiving events for sessionID, creating
// it if needed. Events published before the first read are buffered.
func (d *Demuxer) SessionEvents(sessionID string) *EventQueue {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.sessionQueueLocked(sessionID)
}

func (d *Demuxer) sessionQueueLocked(sessionID string) *EventQueue {
	queue, ok := d.sessionQueues[sessionID]
	if !ok {
		queue = NewEventQueue()
		d.sessionQueues[sessionID] = queue
	}

	return queue
}

// PrepareToolCall registers a tools/call request without sending it.
//
// The returned SendFunc performs the actual write. Calls to the
// session-establishing tool enter the session-less FIFO in preparation
// order, which is also id order.
func (d *Demuxer) PrepareToolCall(
	name string,
	arguments map[string]any,
	sessionHint string,
) (*Call, SendFunc, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}

	params := map[string]any{
		"name":      name,
		"arguments": arguments,
	}

	return d.prepare("tools/call", params, name, sessionHint, name == ToolCodex)
}

// PrepareRequest registers a plain JSON-RPC request without sending it.
func (d *Demuxer) PrepareRequest(method string, params map[string]any) (*Call, SendFunc, error) {
	return d.prepare(method, params, method, "", false)
}

// prepare allocates the next id, registers the pending call, and returns
// the deferred send. Registration happens before any data can be written,
// so a fast response cannot arrive before the registry knows the id.
func (d *Demuxer) prepare(
	method string,
	params map[string]any,
	trackedMethod string,
	sessionHint string,
	sessionless bool,
) (*Call, SendFunc, error) {
	d.mu.Lock()

	id := d.nextID
	d.nextID++

	call := &Call{
		id:      id,
		tool:    trackedMethod,
		outcome: make(chan callOutcome, 1),
	}

	pc := &pendingCall{
		call:        call,
		tool:        trackedMethod,
		sessionHint: sessionHint,
	}

	d.pending[id] = pc

	if sessionless {
		d.sessionless = append(d.sessionless, pc)
	}

	if sessionHint != "" {
		d.sessions[sessionHint] = struct{}{}
	}

	d.mu.Unlock()

	data, err := wire.EncodeRequest(id, method, params)
	if err != nil {
		d.mu.Lock()
		delete(d.pending, id)
		d.removeSessionlessLocked(pc)
		d.mu.Unlock()

		return nil, nil, err
	}

	// Track only once the frame is known to encode, so an unsendable request
	// never leaves a permanently pending timeline behind.
	d.tracker.TrackOutgoing(call.StringID(), trackedMethod, params, sessionHint, time.Now())

	d.log.Debug("Prepared request", "request_id", id, "method", trackedMethod, "session_hint", sessionHint)

	send := func(ctx context.Context) error {
		return d.transport.SendMessage(ctx, data)
	}

	return call, send, nil
}

// Notify sends a fire-and-forget notification frame.
func (d *Demuxer) Notify(ctx context.Context, method string, params map[string]any) error {
	data, err := wire.EncodeNotification(method, params)
	if err != nil {
		return err
	}

	return d.transport.SendMessage(ctx, data)
}

// readLoop consumes the transport's channels until end-of-stream or Stop.
func (d *Demuxer) readLoop(ctx context.Context, messages <-chan wire.Message, errs <-chan error) {
	defer d.wg.Done()
	defer d.abortPending()
	defer d.log.Debug("Demux read loop stopped")

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				d.log.Info("Transport closed, aborting pending calls")

				return
			}

			d.handleMessage(msg)

		case err, ok := <-errs:
			if !ok {
				errs = nil

				continue
			}

			// Decode errors are recovered locally; the loop continues.
			d.log.Debug("Transport reported error", "error", err)

		case <-d.done:
			return

		case <-ctx.Done():
			d.log.Debug("Context cancelled in demux read loop")

			return
		}
	}
}

// abortPending rejects every still-pending call with ErrTransportClosed,
// clears the registry, and closes all event queues. Runs exactly once.
func (d *Demuxer) abortPending() {
	d.abortOnce.Do(func() {
		d.mu.Lock()

		pending := make([]*pendingCall, 0, len(d.pending))
		for _, pc := range d.pending {
			pending = append(pending, pc)
		}

		d.pending = make(map[int64]*pendingCall)
		d.sessionless = nil

		queues := make([]*EventQueue, 0, len(d.sessionQueues))
		for _, q := range d.sessionQueues {
			queues = append(queues, q)
		}

		d.mu.Unlock()

		for _, pc := range pending {
			pc.call.outcome <- callOutcome{err: errors.ErrTransportClosed}
		}

		d.global.close()

		for _, q := range queues {
			q.close()
		}

		d.closeOnce.Do(func() {
			close(d.done)
		})
	})
}

// handleMessage routes one decoded frame.
func (d *Demuxer) handleMessage(msg wire.Message) {
	switch msg.Kind {
	case wire.KindResponse:
		d.handleResponse(msg)

	case wire.KindNotification:
		d.handleNotification(msg)

	default:
		d.log.Warn("Unhandled frame from codex mcp-server", "kind", msg.Kind.String(), "raw", msg.Raw)
	}
}

// handleResponse resolves or rejects the pending call for a response id.
func (d *Demuxer) handleResponse(msg wire.Message) {
	rid := strconv.FormatInt(msg.ID, 10)
	now := time.Now()

	d.mu.Lock()

	pc, known := d.pending[msg.ID]
	if known {
		delete(d.pending, msg.ID)
	}

	d.mu.Unlock()

	sessionID := ""
	if known {
		sessionID = pc.sessionHint
	}

	// A binding discovered after send wins over the original hint.
	if bound := d.tracker.SessionID(rid); bound != "" {
		sessionID = bound
	}

	if known {
		d.tracker.TrackResponse(rid, msg.Raw, now, sessionID)
	}

	event := CodexEvent{
		Raw:              msg.Raw,
		SessionID:        sessionID,
		IsNotification:   false,
		Type:             EventResponse,
		RelatedRequestID: rid,
		RequestID:        rid,
		Timestamp:        now,
	}

	d.publish(event)

	if !known {
		// Not an error state: a response to an id the registry never
		// tracked, or a duplicate for an already-resolved id.
		d.log.Warn("Received response for unknown request id", "request_id", msg.ID)

		return
	}

	if msg.Error != nil {
		d.log.Debug("Request failed", "request_id", msg.ID, "code", msg.Error.Code, "message", msg.Error.Message)

		pc.call.outcome <- callOutcome{err: &errors.RequestFailure{
			RequestID: msg.ID,
			Code:      msg.Error.Code,
			Message:   msg.Error.Message,
		}}

		return
	}

	d.log.Debug("Request completed", "request_id", msg.ID, "session_id", sessionID)

	pc.call.outcome <- callOutcome{result: msg.Result}
}

// handleNotification classifies a notification, attempts session
// correlation, and fans the event out.
func (d *Demuxer) handleNotification(msg wire.Message) {
	payload := flattenPayload(msg.Params)
	related := extractRelatedRequestID(msg.Params)
	sessionID, _ := payload["session_id"].(string)
	now := time.Now()
	assumed := false

	if msg.Method == sessionConfiguredMethod && sessionID != "" {
		assumed = d.bindSession(sessionID, related)
	}

	if sessionID != "" {
		d.mu.Lock()
		d.sessions[sessionID] = struct{}{}
		d.mu.Unlock()
	}

	event := CodexEvent{
		Raw:              msg.Raw,
		SessionID:        sessionID,
		IsNotification:   true,
		Type:             ClassifyMethod(msg.Method),
		RelatedRequestID: related,
		Assumed:          assumed,
		Timestamp:        now,
	}

	if related != "" {
		d.tracker.TrackNotification(related, TrackedNotification{
			Type:             event.Type,
			Message:          msg.Raw,
			Timestamp:        now,
			SessionID:        sessionID,
			RelatedRequestID: related,
		})
	}

	d.publish(event)
}

// bindSession matches a session_configured notification to a session-less
// call and binds the session id to it.
//
// An exact related-request-id match always wins, even out of send order.
// Without a usable hint the oldest session-less call is assumed; the
// return value reports that the FIFO fallback was used.
func (d *Demuxer) bindSession(sessionID, related string) (assumed bool) {
	d.mu.Lock()

	if len(d.sessionless) == 0 {
		d.mu.Unlock()

		// Recorded globally, bound to no call.
		d.log.Debug("session_configured with no session-less calls in flight", "session_id", sessionID)

		return false
	}

	idx := -1

	if related != "" {
		for i, pc := range d.sessionless {
			if pc.call.StringID() == related {
				idx = i

				break
			}
		}
	}

	if idx == -1 {
		// Best-effort: responses are assumed to arrive in send order when
		// no explicit id is available.
		idx = 0
		assumed = true
	}

	pc := d.sessionless[idx]
	d.sessionless = append(d.sessionless[:idx], d.sessionless[idx+1:]...)

	if pc.sessionHint == "" {
		pc.sessionHint = sessionID
	}

	d.sessions[sessionID] = struct{}{}
	d.mu.Unlock()

	d.log.Info("Bound session to request",
		"session_id", sessionID,
		"request_id", pc.call.ID(),
		"assumed", assumed,
	)

	d.tracker.SetSessionID(pc.call.StringID(), sessionID)

	return assumed
}

// publish delivers an event to the global queue and, when a session is
// resolvable, to that session's queue. Exactly one global publication per
// decoded frame; at most one more per session.
func (d *Demuxer) publish(event CodexEvent) {
	if sid := d.resolveSession(event); sid != "" {
		event.SessionID = sid
	}

	d.global.push(event)

	if event.SessionID == "" {
		d.log.Debug("Event without session id, global stream only", "type", string(event.Type))

		return
	}

	d.mu.Lock()
	queue := d.sessionQueueLocked(event.SessionID)
	d.mu.Unlock()

	queue.push(event)
}

// resolveSession applies the arbitrary-event resolution order: explicit
// session id, then related request id through the timeline table, then
// single-active-session attribution.
func (d *Demuxer) resolveSession(event CodexEvent) string {
	if event.SessionID != "" {
		return event.SessionID
	}

	if event.RelatedRequestID != "" {
		if sid := d.tracker.SessionID(event.RelatedRequestID); sid != "" {
			return sid
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.sessions) == 1 {
		for sid := range d.sessions {
			return sid
		}
	}

	return ""
}

// removeSessionlessLocked drops a pending call from the FIFO if present.
// Caller must hold d.mu.
func (d *Demuxer) removeSessionlessLocked(target *pendingCall) {
	for i, pc := range d.sessionless {
		if pc == target {
			d.sessionless = append(d.sessionless[:i], d.sessionless[i+1:]...)

			return
		}
	}
}

// flattenPayload returns the msg sub-object when present, the params
// otherwise. Codex nests notification payloads one level down.
func flattenPayload(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}

	if msg, ok := params["msg"].(map[string]any); ok {
		return msg
	}

	return params
}

// extractRelatedRequestID pulls a correlation hint out of notification
// params. Checked in order: the _meta requestId, the top-level fields, then
// the same fields nested inside the msg payload.
func extractRelatedRequestID(params map[string]any) string {
	if params == nil {
		return ""
	}

	if meta, ok := params["_meta"].(map[string]any); ok {
		if v, ok := meta["requestId"]; ok && v != nil {
			return stringifyID(v)
		}
	}

	keys := []string{"related_request_id", "request_id"}

	for _, key := range keys {
		if v, ok := params[key]; ok && v != nil {
			return stringifyID(v)
		}
	}

	if msg, ok := params["msg"].(map[string]any); ok {
		for _, key := range keys {
			if v, ok := msg[key]; ok && v != nil {
				return stringifyID(v)
			}
		}
	}

	return ""
}

// stringifyID normalizes a correlation hint to the string form used by
// timelines. JSON numbers arrive as float64; integral values must not
// render with an exponent or fraction.
func stringifyID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	default:
		return ""
	}
}
