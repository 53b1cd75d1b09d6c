// Package errors defines error types for the Codex SDK.
//
// This package provides structured error types that wrap different failure
// scenarios when driving a codex mcp-server subprocess. All error types
// support error unwrapping and can be checked using errors.Is and
// errors.As.
package errors
