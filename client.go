package codexsdk

import (
	"context"
)

// Client drives a single `codex mcp-server` subprocess and multiplexes any
// number of Codex conversational sessions over it.
//
// All messages from the server arrive on one line-framed stream; the client
// demultiplexes them into per-session event streams, correlating each frame
// to the session it belongs to even when the session id is only announced
// asynchronously after the call that created it.
//
// Lifecycle: create with NewClient(), Start(), use, Stop(). Safe for
// concurrent use: prompts may be issued from any number of goroutines.
//
// Example usage:
//
//	client := codexsdk.NewClient()
//	defer client.Stop(ctx)
//
//	err := client.Start(ctx,
//	    codexsdk.WithLogger(slog.Default()),
//	    codexsdk.WithModel("gpt-5-codex"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if _, err := client.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	call, err := client.CallCodex(ctx, "Summarize this repo", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := call.Wait(ctx)
type Client interface {
	// Start launches the codex mcp-server subprocess and the reader loop.
	// Must be called before any other methods. Idempotent.
	// Returns CodexNotFoundError if the CLI cannot be located and
	// NotLoggedInError if `codex login status` fails.
	Start(ctx context.Context, opts ...Option) error

	// Initialize performs the MCP handshake: the initialize request followed
	// by the notifications/initialized notification. Returns the server's
	// initialize result.
	Initialize(ctx context.Context) (any, error)

	// ListTools fetches the server's tool catalog. The catalog is cached and
	// used for argument validation when WithArgumentValidation is set.
	ListTools(ctx context.Context) ([]Tool, error)

	// CallCodex starts a new Codex session with the given prompt and returns
	// a handle that resolves when the session's tool call completes. Missing
	// model and sandbox entries in sessionConfig are filled from the
	// client's configuration; nil uses the configuration alone.
	// The session id is announced asynchronously; read it from the call's
	// timeline via Tracker() or from session_configured events.
	CallCodex(ctx context.Context, prompt string, sessionConfig map[string]any) (*Call, error)

	// PrepareCodex registers a new-session call without sending it. The
	// returned SendFunc writes the frame; registration happens here so a
	// response can never arrive before the call is known.
	PrepareCodex(prompt string, sessionConfig map[string]any) (*Call, SendFunc, error)

	// Reply sends a follow-up prompt to an existing session.
	Reply(ctx context.Context, sessionID, prompt string) (*Call, error)

	// PrepareReply registers a reply call without sending it.
	PrepareReply(sessionID, prompt string) (*Call, SendFunc, error)

	// GlobalEvents returns the stream that receives every decoded frame,
	// session-bound or not, in arrival order.
	GlobalEvents() (*EventQueue, error)

	// SessionEvents returns the dedicated stream for one session. Creates
	// the stream on first use so no event is dropped before a consumer
	// attaches.
	SessionEvents(sessionID string) (*EventQueue, error)

	// Tracker exposes the per-request timeline table: outgoing requests,
	// their correlated notifications, responses, and bound session ids.
	Tracker() (*EventTracker, error)

	// Stop shuts the subprocess down: closes stdin, waits briefly for a
	// graceful exit, then kills. Safe to call multiple times.
	Stop(ctx context.Context) error
}

// NewClient creates a new client.
//
// Call Start() with options to launch the subprocess:
//
//	client := codexsdk.NewClient()
//	err := client.Start(ctx,
//	    codexsdk.WithLogger(slog.Default()),
//	    codexsdk.WithSandbox("read-only"),
//	)
func NewClient() Client {
	return newClientImpl()
}
