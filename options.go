package codexsdk

import (
	"log/slog"

	"github.com/parallelcodex/codex-sdk-go/internal/config"
)

// CodexOptions configures the client. Use the With* functional options.
type CodexOptions = config.Options

// Option configures CodexOptions using the functional options pattern.
type Option func(*CodexOptions)

// applyOptions applies functional options to a CodexOptions struct.
func applyOptions(opts []Option) *CodexOptions {
	options := &CodexOptions{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *CodexOptions) {
		o.Logger = logger
	}
}

// WithCodexPath sets the explicit path to the codex CLI binary.
// If not set, discovery checks $PARALLEL_CODEX_CODEX_PATH and then PATH.
func WithCodexPath(path string) Option {
	return func(o *CodexOptions) {
		o.CodexPath = path
	}
}

// WithModel sets the Codex model used for new sessions (e.g. "gpt-5-codex").
func WithModel(model string) Option {
	return func(o *CodexOptions) {
		o.Model = model
	}
}

// WithSandbox sets the Codex sandbox mode used for new sessions
// (e.g. "workspace-write", "read-only").
func WithSandbox(sandbox string) Option {
	return func(o *CodexOptions) {
		o.Sandbox = sandbox
	}
}

// WithCwd sets the working directory for the subprocess.
func WithCwd(cwd string) Option {
	return func(o *CodexOptions) {
		o.Cwd = cwd
	}
}

// WithEnv adds environment variables for the subprocess. Entries override
// the SDK's DEBUG/LOG_LEVEL defaults.
func WithEnv(env map[string]string) Option {
	return func(o *CodexOptions) {
		o.Env = env
	}
}

// WithSkipLoginCheck disables the `codex login status` probe during Start.
func WithSkipLoginCheck() Option {
	return func(o *CodexOptions) {
		o.SkipLoginCheck = true
	}
}

// WithStderrCallback streams each line of the server's stderr diagnostics
// to the callback. The drain runs regardless so the pipe never backs up.
func WithStderrCallback(callback func(line string)) Option {
	return func(o *CodexOptions) {
		o.Stderr = callback
	}
}

// WithArgumentValidation validates tools/call arguments against the input
// schema advertised by tools/list before any frame is written. Requires a
// prior ListTools call to populate the catalog.
func WithArgumentValidation() Option {
	return func(o *CodexOptions) {
		o.ValidateArguments = true
	}
}

// WithTransport overrides the subprocess transport. Intended for tests.
func WithTransport(transport config.Transport) Option {
	return func(o *CodexOptions) {
		o.Transport = transport
	}
}
