// Package client implements the Codex client that ties the subprocess
// transport, the demultiplexing engine, and the tool catalog together.
package client
