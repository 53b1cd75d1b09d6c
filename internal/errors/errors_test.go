package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodexNotFoundError(t *testing.T) {
	err := &CodexNotFoundError{SearchedPaths: []string{"$PATH", "/usr/local/bin/codex"}}

	require.Contains(t, err.Error(), "/usr/local/bin/codex")
	require.True(t, IsSDKError(err))
}

func TestNotLoggedInError(t *testing.T) {
	err := &NotLoggedInError{CodexPath: "/usr/bin/codex"}

	require.Contains(t, err.Error(), "/usr/bin/codex")
	require.Contains(t, err.Error(), "codex login")
}

func TestStartupErrorUnwraps(t *testing.T) {
	cause := errors.New("pipe failed")
	err := &StartupError{Err: cause}

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "pipe failed")
}

func TestProtocolDecodeErrorUnwraps(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := &ProtocolDecodeError{RawLine: `{"truncated`, Err: cause}

	require.ErrorIs(t, err, cause)
	require.Equal(t, `{"truncated`, err.RawLine)
}

func TestRequestFailureMessage(t *testing.T) {
	withCode := &RequestFailure{RequestID: 4, Code: -32601, Message: "method not found"}
	require.Contains(t, withCode.Error(), "request 4")
	require.Contains(t, withCode.Error(), "-32601")

	withoutCode := &RequestFailure{RequestID: 5, Message: "oops"}
	require.NotContains(t, withoutCode.Error(), "code")
}

func TestIsSDKError(t *testing.T) {
	require.True(t, IsSDKError(&RequestFailure{RequestID: 1}))
	require.True(t, IsSDKError(fmt.Errorf("wrapped: %w", &StartupError{Err: errors.New("x")})))

	require.False(t, IsSDKError(errors.New("plain")))
	require.False(t, IsSDKError(ErrTransportClosed))
	require.False(t, IsSDKError(nil))
}
