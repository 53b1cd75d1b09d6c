package codexsdk

import "github.com/parallelcodex/codex-sdk-go/internal/errors"

// Re-export error types from internal package

// CodexNotFoundError indicates the codex CLI binary was not found.
type CodexNotFoundError = errors.CodexNotFoundError

// NotLoggedInError indicates the codex CLI is not authenticated.
type NotLoggedInError = errors.NotLoggedInError

// StartupError indicates the codex mcp-server subprocess could not be started.
type StartupError = errors.StartupError

// ProtocolDecodeError indicates a stdout line could not be parsed as JSON.
type ProtocolDecodeError = errors.ProtocolDecodeError

// RequestFailure indicates a response carried a JSON-RPC error member.
type RequestFailure = errors.RequestFailure

// CodexSDKError is the base interface for all SDK errors.
type CodexSDKError = errors.CodexSDKError

// IsSDKError reports whether err (or anything it wraps) originated in this
// SDK, as opposed to a context or I/O error passed through.
func IsSDKError(err error) bool {
	return errors.IsSDKError(err)
}

// Re-export sentinel errors from internal package.
var (
	// ErrClientNotStarted indicates the client is not started.
	ErrClientNotStarted = errors.ErrClientNotStarted

	// ErrTransportNotStarted indicates the transport subprocess is not running.
	ErrTransportNotStarted = errors.ErrTransportNotStarted

	// ErrTransportClosed indicates the server closed the connection. Pending
	// calls reject with it, and drained event streams return it.
	ErrTransportClosed = errors.ErrTransportClosed

	// ErrStdinClosed indicates stdin was closed and no further frames can be sent.
	ErrStdinClosed = errors.ErrStdinClosed
)
