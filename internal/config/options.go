// Package config provides configuration types for the Codex SDK.
package config

import (
	"log/slog"
)

// DefaultModel is the Codex model requested when none is configured.
const DefaultModel = "gpt-5-codex"

// DefaultSandbox is the Codex sandbox mode requested when none is configured.
const DefaultSandbox = "workspace-write"

// Options configures the behavior of the Codex client.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// CodexPath is an explicit path to the codex CLI binary.
	// If empty, discovery checks $PARALLEL_CODEX_CODEX_PATH and then PATH.
	CodexPath string

	// Model is the Codex model passed in session configuration
	// (e.g. "gpt-5-codex").
	Model string

	// Sandbox is the Codex sandbox mode passed in session configuration
	// (e.g. "workspace-write", "read-only").
	Sandbox string

	// Cwd is the working directory for the subprocess.
	// If empty, the current directory is used.
	Cwd string

	// Env holds extra environment variables for the subprocess. They are
	// appended to the current environment; DEBUG and LOG_LEVEL default to
	// verbose values so the server emits progress/logging notifications,
	// and entries here override those defaults.
	Env map[string]string

	// SkipLoginCheck disables the `codex login status` probe during Start.
	SkipLoginCheck bool

	// Stderr, if set, receives each line of the subprocess's stderr.
	// The drain goroutine runs regardless so the pipe never backs up.
	Stderr func(line string)

	// ValidateArguments enables checking tools/call arguments against the
	// input schema advertised by tools/list before sending.
	ValidateArguments bool

	// Transport overrides the subprocess transport. Used in tests.
	Transport Transport
}

// EffectiveModel returns the configured model or the default.
func (o *Options) EffectiveModel() string {
	if o.Model != "" {
		return o.Model
	}

	return DefaultModel
}

// EffectiveSandbox returns the configured sandbox mode or the default.
func (o *Options) EffectiveSandbox() string {
	if o.Sandbox != "" {
		return o.Sandbox
	}

	return DefaultSandbox
}
