package codexsdk

import (
	"context"

	"github.com/parallelcodex/codex-sdk-go/internal/client"
	"github.com/parallelcodex/codex-sdk-go/internal/tools"
)

// Tool describes one entry of the server's tool catalog.
type Tool = tools.Tool

// clientWrapper wraps the internal client to adapt it to the public interface.
type clientWrapper struct {
	impl *client.Client
}

// Compile-time check that *clientWrapper implements the Client interface.
var _ Client = (*clientWrapper)(nil)

// newClientImpl creates the internal client implementation.
func newClientImpl() Client {
	return &clientWrapper{impl: client.New()}
}

// Start launches the codex mcp-server subprocess and the reader loop.
func (c *clientWrapper) Start(ctx context.Context, opts ...Option) error {
	return c.impl.Start(ctx, applyOptions(opts))
}

// Initialize performs the MCP handshake.
func (c *clientWrapper) Initialize(ctx context.Context) (any, error) {
	return c.impl.Initialize(ctx)
}

// ListTools fetches the server's tool catalog.
func (c *clientWrapper) ListTools(ctx context.Context) ([]Tool, error) {
	return c.impl.ListTools(ctx)
}

// CallCodex starts a new Codex session.
func (c *clientWrapper) CallCodex(ctx context.Context, prompt string, sessionConfig map[string]any) (*Call, error) {
	return c.impl.CallCodex(ctx, prompt, sessionConfig)
}

// PrepareCodex registers a new-session call without sending it.
func (c *clientWrapper) PrepareCodex(prompt string, sessionConfig map[string]any) (*Call, SendFunc, error) {
	return c.impl.PrepareCodex(prompt, sessionConfig)
}

// Reply sends a follow-up prompt to an existing session.
func (c *clientWrapper) Reply(ctx context.Context, sessionID, prompt string) (*Call, error) {
	return c.impl.Reply(ctx, sessionID, prompt)
}

// PrepareReply registers a reply call without sending it.
func (c *clientWrapper) PrepareReply(sessionID, prompt string) (*Call, SendFunc, error) {
	return c.impl.PrepareReply(sessionID, prompt)
}

// GlobalEvents returns the stream receiving every decoded frame.
func (c *clientWrapper) GlobalEvents() (*EventQueue, error) {
	return c.impl.GlobalEvents()
}

// SessionEvents returns the dedicated stream for one session.
func (c *clientWrapper) SessionEvents(sessionID string) (*EventQueue, error) {
	return c.impl.SessionEvents(sessionID)
}

// Tracker exposes the request timeline table.
func (c *clientWrapper) Tracker() (*EventTracker, error) {
	return c.impl.Tracker()
}

// Stop shuts the subprocess down and waits for the reader loop.
func (c *clientWrapper) Stop(ctx context.Context) error {
	return c.impl.Stop(ctx)
}
