// Package wire implements the newline-delimited JSON-RPC 2.0 framing used
// by codex mcp-server.
//
// Incoming frames are shape-varying: the same stream carries responses and
// notifications, and some servers attach an id to notifications. Decoding
// therefore classifies by field presence in a fixed order instead of relying
// on structural unmarshalling: a frame with a method and no result/error is
// a notification regardless of id; a frame with an id and a result or error
// is a response.
package wire
