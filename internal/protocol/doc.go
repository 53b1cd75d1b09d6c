// Package protocol implements the demultiplexing and session-correlation
// engine for codex mcp-server.
//
// A single reader goroutine consumes the transport's frame stream and
// routes each frame: responses resolve the pending call registered under
// their id, notifications are classified and tracked, and
// session_configured notifications bind server-assigned session ids to
// in-flight session-less calls. Binding prefers an explicit related
// request id embedded in the notification; when no hint matches, the
// oldest session-less call is assumed, relying on frames being processed
// strictly in arrival order.
//
// Every decoded frame is published exactly once to the global event queue
// and, when a session can be resolved, once more to that session's queue.
//
// The Demuxer handles:
//   - Monotonic integer request id allocation
//   - Registering pending calls before their frame is written
//   - Resolving or rejecting each completion handle at most once
//   - Rejecting all pending handles with ErrTransportClosed at end-of-stream
//   - Per-request timelines for diagnostics and correlation lookups
package protocol
