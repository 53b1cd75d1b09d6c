package cli

import (
	"fmt"
	"os"

	"github.com/parallelcodex/codex-sdk-go/internal/config"
)

// BuildArgs returns the argument list for the codex mcp-server invocation.
//
// The rmcp_client feature is enabled so the server emits rich MCP
// notifications (progress, logging, session_configured) over stdout.
func BuildArgs() []string {
	return []string{"--enable", "rmcp_client", "mcp-server"}
}

// BuildEnvironment builds the environment for the subprocess.
//
// DEBUG and LOG_LEVEL default to verbose values so the server actually
// emits progress and logging notifications; user-provided entries in
// options.Env override them.
func BuildEnvironment(options *config.Options) []string {
	// Start with current environment
	env := os.Environ()

	if _, ok := options.Env["DEBUG"]; !ok {
		if _, present := os.LookupEnv("DEBUG"); !present {
			env = append(env, "DEBUG=true")
		}
	}

	if _, ok := options.Env["LOG_LEVEL"]; !ok {
		if _, present := os.LookupEnv("LOG_LEVEL"); !present {
			env = append(env, "LOG_LEVEL=debug")
		}
	}

	// Add or override with user-provided environment variables
	for key, value := range options.Env {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}

	return env
}
