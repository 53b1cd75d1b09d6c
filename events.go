package codexsdk

import "github.com/parallelcodex/codex-sdk-go/internal/protocol"

// Re-export event and correlation types from the protocol engine.
type (
	// CodexEvent is a decoded event or response from the MCP server.
	CodexEvent = protocol.CodexEvent

	// EventType categorizes events for rendering.
	EventType = protocol.EventType

	// EventQueue is an ordered stream of events with destructive reads.
	EventQueue = protocol.EventQueue

	// Call is the completion handle for one outstanding request.
	Call = protocol.Call

	// SendFunc transmits a prepared request when the caller chooses.
	SendFunc = protocol.SendFunc

	// EventTracker groups notifications and responses by request id.
	EventTracker = protocol.EventTracker

	// RequestTimeline records the full lifecycle of one request.
	RequestTimeline = protocol.RequestTimeline

	// TrackedNotification is one notification on a request's timeline.
	TrackedNotification = protocol.TrackedNotification
)

// Event type values.
const (
	EventRequest      = protocol.EventRequest
	EventResponse     = protocol.EventResponse
	EventNotification = protocol.EventNotification
	EventProgress     = protocol.EventProgress
	EventLogging      = protocol.EventLogging
	EventError        = protocol.EventError
)

// Codex tool names.
const (
	// ToolCodex starts a new session.
	ToolCodex = protocol.ToolCodex

	// ToolCodexReply continues an existing session.
	ToolCodexReply = protocol.ToolCodexReply
)
