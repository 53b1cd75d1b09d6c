package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/parallelcodex/codex-sdk-go/internal/config"
	"github.com/parallelcodex/codex-sdk-go/internal/errors"
	"github.com/parallelcodex/codex-sdk-go/internal/protocol"
	"github.com/parallelcodex/codex-sdk-go/internal/subprocess"
	"github.com/parallelcodex/codex-sdk-go/internal/tools"
)

const (
	// mcpProtocolVersion is the MCP protocol version sent in initialize.
	mcpProtocolVersion = "2024-11-05"

	// clientName and clientVersion identify this SDK in the MCP handshake.
	clientName    = "codex-sdk-go"
	clientVersion = "0.1.0"
)

// Client drives a single codex mcp-server subprocess and multiplexes any
// number of Codex sessions over it.
type Client struct {
	log       *slog.Logger
	options   *config.Options
	transport config.Transport
	demux     *protocol.Demuxer

	catalogMu sync.Mutex
	catalog   *tools.Catalog

	mu      sync.Mutex
	started bool
}

// New creates a new client. It is not started; call Start.
func New() *Client {
	return &Client{}
}

// Start launches the codex mcp-server subprocess and the reader loop.
//
// Idempotent: starting a started client is a no-op. The context governs
// the connection's lifetime; cancelling it terminates the reader loop.
func (c *Client) Start(ctx context.Context, options *config.Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		c.log.Debug("Client already started, ignoring Start")

		return nil
	}

	if options == nil {
		options = &config.Options{}
	}

	log := options.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c.log = log.With("component", "client")
	c.options = options

	c.transport = options.Transport
	if c.transport == nil {
		c.transport = subprocess.NewCodexTransport(log, options)
	}

	if err := c.transport.Start(ctx); err != nil {
		return err
	}

	c.demux = protocol.NewDemuxer(log, c.transport)
	c.demux.Start(ctx)

	c.started = true
	c.log.Info("Codex client started")

	return nil
}

// Stop shuts the subprocess down and waits for the reader loop.
//
// Graceful first: the write side closes and the server gets a bounded
// window to exit before being killed. Safe to call multiple times.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}

	c.log.Info("Stopping Codex client")

	err := c.transport.Stop(ctx)

	c.demux.Stop()

	c.started = false

	return err
}

// Initialize performs the MCP handshake: the initialize request followed by
// the fire-and-forget notifications/initialized.
func (c *Client) Initialize(ctx context.Context) (any, error) {
	demux, err := c.demuxer()
	if err != nil {
		return nil, err
	}

	call, send, err := demux.PrepareRequest("initialize", map[string]any{
		"protocolVersion": mcpProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := send(ctx); err != nil {
		return nil, err
	}

	result, err := call.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}

	if err := demux.Notify(ctx, "notifications/initialized", map[string]any{}); err != nil {
		return nil, fmt.Errorf("send initialized notification: %w", err)
	}

	c.log.Debug("MCP handshake complete")

	return result, nil
}

// ListTools fetches the server's tool catalog and caches it for argument
// validation.
func (c *Client) ListTools(ctx context.Context) ([]tools.Tool, error) {
	demux, err := c.demuxer()
	if err != nil {
		return nil, err
	}

	call, send, err := demux.PrepareRequest("tools/list", nil)
	if err != nil {
		return nil, err
	}

	if err := send(ctx); err != nil {
		return nil, err
	}

	result, err := call.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}

	list, err := tools.ParseListResult(result)
	if err != nil {
		return nil, err
	}

	c.catalogMu.Lock()
	c.catalog = tools.NewCatalog(list)
	c.catalogMu.Unlock()

	return list, nil
}

// CallCodex starts a new Codex session and returns its completion handle.
//
// The call is session-less: the server assigns a session id asynchronously
// and announces it via a session_configured notification, which the demuxer
// binds to this call's timeline. Missing model and sandbox entries in
// sessionConfig are filled from the client's configuration.
func (c *Client) CallCodex(ctx context.Context, prompt string, sessionConfig map[string]any) (*protocol.Call, error) {
	call, send, err := c.PrepareCodex(prompt, sessionConfig)
	if err != nil {
		return nil, err
	}

	if err := send(ctx); err != nil {
		return nil, err
	}

	return call, nil
}

// PrepareCodex registers a new-session call without sending it. The caller
// controls exact send timing via the returned SendFunc.
func (c *Client) PrepareCodex(prompt string, sessionConfig map[string]any) (*protocol.Call, protocol.SendFunc, error) {
	demux, err := c.demuxer()
	if err != nil {
		return nil, nil, err
	}

	config := map[string]any{
		"model":   c.options.EffectiveModel(),
		"sandbox": c.options.EffectiveSandbox(),
	}
	for key, value := range sessionConfig {
		config[key] = value
	}

	arguments := map[string]any{
		"prompt": prompt,
		"config": config,
	}

	if err := c.validateArguments(protocol.ToolCodex, arguments); err != nil {
		return nil, nil, err
	}

	return demux.PrepareToolCall(protocol.ToolCodex, arguments, "")
}

// Reply sends a follow-up prompt to an existing session.
func (c *Client) Reply(ctx context.Context, sessionID, prompt string) (*protocol.Call, error) {
	call, send, err := c.PrepareReply(sessionID, prompt)
	if err != nil {
		return nil, err
	}

	if err := send(ctx); err != nil {
		return nil, err
	}

	return call, nil
}

// PrepareReply registers a reply call without sending it.
func (c *Client) PrepareReply(sessionID, prompt string) (*protocol.Call, protocol.SendFunc, error) {
	demux, err := c.demuxer()
	if err != nil {
		return nil, nil, err
	}

	arguments := map[string]any{
		"prompt":    prompt,
		"sessionId": sessionID,
	}

	if err := c.validateArguments(protocol.ToolCodexReply, arguments); err != nil {
		return nil, nil, err
	}

	return demux.PrepareToolCall(protocol.ToolCodexReply, arguments, sessionID)
}

// GlobalEvents returns the stream receiving every decoded frame.
func (c *Client) GlobalEvents() (*protocol.EventQueue, error) {
	demux, err := c.demuxer()
	if err != nil {
		return nil, err
	}

	return demux.GlobalEvents(), nil
}

// SessionEvents returns the dedicated stream for one session.
func (c *Client) SessionEvents(sessionID string) (*protocol.EventQueue, error) {
	demux, err := c.demuxer()
	if err != nil {
		return nil, err
	}

	return demux.SessionEvents(sessionID), nil
}

// Tracker exposes the request timeline table.
func (c *Client) Tracker() (*protocol.EventTracker, error) {
	demux, err := c.demuxer()
	if err != nil {
		return nil, err
	}

	return demux.Tracker(), nil
}

// demuxer returns the running demuxer or ErrClientNotStarted.
func (c *Client) demuxer() (*protocol.Demuxer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil, errors.ErrClientNotStarted
	}

	return c.demux, nil
}

// validateArguments checks tool arguments against the cached catalog when
// validation is enabled and the catalog was fetched.
func (c *Client) validateArguments(tool string, arguments map[string]any) error {
	if c.options == nil || !c.options.ValidateArguments {
		return nil
	}

	c.catalogMu.Lock()
	catalog := c.catalog
	c.catalogMu.Unlock()

	if catalog == nil {
		return nil
	}

	return catalog.ValidateArguments(tool, arguments)
}
