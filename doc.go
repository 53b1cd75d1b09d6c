// Package codexsdk provides a Go SDK for driving parallel Codex sessions
// over a single codex mcp-server subprocess.
//
// The SDK multiplexes any number of independent conversational sessions
// over one newline-delimited JSON-RPC 2.0 stream. A single reader loop
// demultiplexes the stream: responses resolve the call that produced them,
// notifications are classified and tracked per request, and
// session_configured notifications bind server-assigned session ids to
// in-flight session-starting calls.
//
// # Basic Usage
//
//	ctx := context.Background()
//
//	client := codexsdk.NewClient()
//	defer client.Stop(ctx)
//
//	if err := client.Start(ctx, codexsdk.WithLogger(slog.Default())); err != nil {
//	    log.Fatal(err)
//	}
//
//	if _, err := client.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	call, err := client.CallCodex(ctx, "Summarize this repository.", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := call.Wait(ctx)
//
// # Parallel Sessions
//
// Calls issued concurrently share the connection; each receives its own
// completion handle and, once the server announces a session id, its own
// event stream:
//
//	first, _ := client.CallCodex(ctx, "First task.", nil)
//	second, _ := client.CallCodex(ctx, "Second task.", nil)
//
//	events, _ := client.GlobalEvents()
//	for {
//	    ev, err := events.Next(ctx)
//	    if err != nil {
//	        break
//	    }
//	    // render ev...
//	}
//
// Follow-up turns go through Reply with the session id announced in the
// session_configured notification.
package codexsdk
