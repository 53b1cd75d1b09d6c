package errors

import (
	"errors"
	"fmt"
)

// CodexSDKError is the base interface for all SDK errors.
type CodexSDKError interface {
	error
	IsCodexSDKError() bool
}

// Compile-time verification that all error types implement CodexSDKError.
var (
	_ CodexSDKError = (*CodexNotFoundError)(nil)
	_ CodexSDKError = (*NotLoggedInError)(nil)
	_ CodexSDKError = (*StartupError)(nil)
	_ CodexSDKError = (*ProtocolDecodeError)(nil)
	_ CodexSDKError = (*RequestFailure)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrClientNotStarted indicates the client is not started.
	ErrClientNotStarted = errors.New("client not started")

	// ErrTransportNotStarted indicates the transport subprocess is not running.
	ErrTransportNotStarted = errors.New("transport not started")

	// ErrTransportClosed indicates the server closed the connection. Every
	// completion handle still pending at end-of-stream rejects with this error.
	ErrTransportClosed = errors.New("transport closed: codex mcp-server terminated unexpectedly")

	// ErrStdinClosed indicates stdin was closed and no further frames can be sent.
	ErrStdinClosed = errors.New("stdin closed")
)

// IsSDKError reports whether err (or anything it wraps) originated in this
// SDK, as opposed to a context or I/O error passed through.
func IsSDKError(err error) bool {
	var sdkErr CodexSDKError

	return errors.As(err, &sdkErr)
}

// CodexNotFoundError indicates the codex CLI binary was not found.
type CodexNotFoundError struct {
	SearchedPaths []string
}

func (e *CodexNotFoundError) Error() string {
	return fmt.Sprintf("codex CLI not found in: %v", e.SearchedPaths)
}

// IsCodexSDKError implements CodexSDKError.
func (e *CodexNotFoundError) IsCodexSDKError() bool { return true }

// NotLoggedInError indicates the codex CLI is not authenticated.
type NotLoggedInError struct {
	CodexPath string
}

func (e *NotLoggedInError) Error() string {
	return fmt.Sprintf("codex CLI at %s is not authenticated: run `codex login` and retry", e.CodexPath)
}

// IsCodexSDKError implements CodexSDKError.
func (e *NotLoggedInError) IsCodexSDKError() bool { return true }

// StartupError indicates the codex mcp-server subprocess or its stdio pipes
// could not be set up. Fatal to Start.
type StartupError struct {
	Err error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("failed to start codex mcp-server: %v", e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// IsCodexSDKError implements CodexSDKError.
func (e *StartupError) IsCodexSDKError() bool { return true }

// ProtocolDecodeError indicates a stdout line could not be parsed as JSON.
// The reader loop logs and skips these; they are never fatal.
type ProtocolDecodeError struct {
	RawLine string
	Err     error
}

func (e *ProtocolDecodeError) Error() string {
	return fmt.Sprintf("failed to decode JSON frame from codex mcp-server: %v", e.Err)
}

func (e *ProtocolDecodeError) Unwrap() error {
	return e.Err
}

// IsCodexSDKError implements CodexSDKError.
func (e *ProtocolDecodeError) IsCodexSDKError() bool { return true }

// RequestFailure indicates a response carried a JSON-RPC error member.
// Only the completion handle for the failing request rejects with it.
type RequestFailure struct {
	RequestID int64
	Code      int64
	Message   string
}

func (e *RequestFailure) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("request %d failed: %s (code %d)", e.RequestID, e.Message, e.Code)
	}

	return fmt.Sprintf("request %d failed: %s", e.RequestID, e.Message)
}

// IsCodexSDKError implements CodexSDKError.
func (e *RequestFailure) IsCodexSDKError() bool { return true }
