// Package subprocess provides the subprocess-based transport for
// codex mcp-server.
//
// This package implements the Transport interface by spawning codex as a
// child process and communicating over newline-delimited JSON on
// stdin/stdout. It handles process lifecycle, write serialization, and
// draining of the server's stderr diagnostics.
package subprocess
