package config

import (
	"context"

	"github.com/parallelcodex/codex-sdk-go/internal/wire"
)

// Transport defines the interface for codex mcp-server communication.
// Implement this to provide custom transports for testing or alternative
// process management. The default implementation spawns a subprocess.
type Transport interface {
	// Start launches the server and prepares stdio. Idempotent: calling
	// Start on a running transport is a no-op.
	Start(ctx context.Context) error

	// ReadMessages returns channels yielding decoded frames and read-side
	// errors. It must be consumed by exactly one goroutine; concurrent
	// readers corrupt framing. Both channels close at end-of-stream.
	ReadMessages(ctx context.Context) (<-chan wire.Message, <-chan error)

	// SendMessage writes one frame (newline appended if missing).
	// Safe for concurrent use; frames are never interleaved mid-line.
	SendMessage(ctx context.Context, data []byte) error

	// CloseStdin signals end of input without killing the process.
	CloseStdin() error

	// Stop shuts the server down: close stdin, wait briefly for a graceful
	// exit, then kill. Safe to call multiple times.
	Stop(ctx context.Context) error
}
