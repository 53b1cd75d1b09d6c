// Package cli provides discovery, authentication probing, and command
// building for the codex CLI binary.
//
// Discovery searches in the following order:
//  1. Explicit path in Config.CodexPath (if provided)
//  2. The PARALLEL_CODEX_CODEX_PATH environment variable
//  3. System PATH
//  4. Common installation directories (/usr/local/bin, /usr/bin, ~/.local/bin)
//
// The package also builds the mcp-server invocation and its environment:
//
//	args := cli.BuildArgs()
//	env := cli.BuildEnvironment(options)
package cli
