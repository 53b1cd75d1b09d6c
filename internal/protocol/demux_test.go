package protocol

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parallelcodex/codex-sdk-go/internal/config"
	sdkerrors "github.com/parallelcodex/codex-sdk-go/internal/errors"
	"github.com/parallelcodex/codex-sdk-go/internal/wire"
)

// fakeTransport feeds scripted frames to the demuxer and records what was
// sent. Implements config.Transport.
type fakeTransport struct {
	mu   sync.Mutex
	sent [][]byte

	messages chan wire.Message
	errs     chan error

	closeOnce sync.Once
}

var _ config.Transport = (*fakeTransport)(nil)

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		messages: make(chan wire.Message, 64),
		errs:     make(chan error, 16),
	}
}

func (f *fakeTransport) Start(ctx context.Context) error { return nil }

func (f *fakeTransport) ReadMessages(ctx context.Context) (<-chan wire.Message, <-chan error) {
	return f.messages, f.errs
}

func (f *fakeTransport) SendMessage(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, append([]byte(nil), data...))

	return nil
}

func (f *fakeTransport) CloseStdin() error { return nil }

func (f *fakeTransport) Stop(ctx context.Context) error {
	f.closeStream()

	return nil
}

// deliver decodes one line and pushes it to the demuxer, as the real
// transport's reader goroutine would.
func (f *fakeTransport) deliver(t *testing.T, line string) {
	t.Helper()

	msg, err := wire.Decode([]byte(line))
	require.NoError(t, err)

	f.messages <- msg
}

// closeStream simulates subprocess end-of-stream.
func (f *fakeTransport) closeStream() {
	f.closeOnce.Do(func() {
		close(f.messages)
		close(f.errs)
	})
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.sent)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startDemuxer wires a demuxer to a fresh fake transport and cleans both up.
func startDemuxer(t *testing.T) (*Demuxer, *fakeTransport) {
	t.Helper()

	transport := newFakeTransport()
	demux := NewDemuxer(testLogger(), transport)
	demux.Start(context.Background())

	t.Cleanup(func() {
		transport.closeStream()
		demux.Stop()
	})

	return demux, transport
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	return ctx
}

func TestRequestIDsIncreaseAcrossGoroutines(t *testing.T) {
	demux, _ := startDemuxer(t)

	const n = 25

	ids := make(chan int64, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			call, _, err := demux.PrepareRequest("tools/list", nil)
			require.NoError(t, err)

			ids <- call.ID()
		}()
	}

	wg.Wait()
	close(ids)

	got := make([]int64, 0, n)
	for id := range ids {
		got = append(got, id)
	}

	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })

	for i, id := range got {
		require.Equal(t, int64(i+1), id, "ids must be dense and strictly increasing")
	}
}

func TestResponseResolvesCall(t *testing.T) {
	demux, transport := startDemuxer(t)

	call, send, err := demux.PrepareRequest("initialize", map[string]any{"protocolVersion": "2024-11-05"})
	require.NoError(t, err)
	require.NoError(t, send(context.Background()))
	require.Equal(t, 1, transport.sentCount())

	transport.deliver(t, fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"serverInfo":{"name":"codex"}}}`, call.ID()))

	result, err := call.Wait(waitCtx(t))
	require.NoError(t, err)

	m, ok := result.(map[string]any)
	require.True(t, ok)
	require.Contains(t, m, "serverInfo")
}

func TestResponseBeforeSendStillResolves(t *testing.T) {
	// Registration happens in prepare, so a response racing ahead of the
	// caller invoking SendFunc must still find its pending call.
	demux, transport := startDemuxer(t)

	call, send, err := demux.PrepareRequest("tools/list", nil)
	require.NoError(t, err)

	transport.deliver(t, fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"tools":[]}}`, call.ID()))

	result, err := call.Wait(waitCtx(t))
	require.NoError(t, err)
	require.NotNil(t, result)

	require.NoError(t, send(context.Background()))
}

func TestErrorResponseRejectsCall(t *testing.T) {
	demux, transport := startDemuxer(t)

	call, send, err := demux.PrepareToolCall(ToolCodexReply, map[string]any{
		"prompt":    "continue",
		"sessionId": "missing",
	}, "missing")
	require.NoError(t, err)
	require.NoError(t, send(context.Background()))

	transport.deliver(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","id":%d,"error":{"code":-32001,"message":"session not found"}}`, call.ID()))

	_, err = call.Wait(waitCtx(t))

	var failure *sdkerrors.RequestFailure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, int64(-32001), failure.Code)
	require.Equal(t, "session not found", failure.Message)
	require.True(t, sdkerrors.IsSDKError(err))
}

func TestDuplicateResponseIsNoOp(t *testing.T) {
	demux, transport := startDemuxer(t)

	call, send, err := demux.PrepareRequest("tools/list", nil)
	require.NoError(t, err)
	require.NoError(t, send(context.Background()))

	line := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"tools":[]}}`, call.ID())
	transport.deliver(t, line)
	transport.deliver(t, line)

	_, err = call.Wait(waitCtx(t))
	require.NoError(t, err)

	// Both frames still reach the global stream, one event each.
	ctx := waitCtx(t)
	global := demux.GlobalEvents()

	first, err := global.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, EventResponse, first.Type)

	second, err := global.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, first.RelatedRequestID, second.RelatedRequestID)
}

func TestUnknownResponseIsPublishedGlobally(t *testing.T) {
	demux, transport := startDemuxer(t)

	transport.deliver(t, `{"jsonrpc":"2.0","id":999,"result":{}}`)

	ev, err := demux.GlobalEvents().Next(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, EventResponse, ev.Type)
	require.Equal(t, "999", ev.RelatedRequestID)

	// No timeline is created for an id that was never sent.
	_, ok := demux.Tracker().GetTimeline("999")
	require.False(t, ok)
}

func TestDecodeErrorDoesNotStopReader(t *testing.T) {
	demux, transport := startDemuxer(t)

	transport.errs <- &sdkerrors.ProtocolDecodeError{RawLine: "not json"}

	call, send, err := demux.PrepareRequest("tools/list", nil)
	require.NoError(t, err)
	require.NoError(t, send(context.Background()))

	transport.deliver(t, fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"tools":[]}}`, call.ID()))

	_, err = call.Wait(waitCtx(t))
	require.NoError(t, err)
}

func TestSessionConfiguredFIFOFallback(t *testing.T) {
	demux, transport := startDemuxer(t)

	first, sendFirst, err := demux.PrepareToolCall(ToolCodex, map[string]any{"prompt": "a"}, "")
	require.NoError(t, err)
	require.NoError(t, sendFirst(context.Background()))

	second, sendSecond, err := demux.PrepareToolCall(ToolCodex, map[string]any{"prompt": "b"}, "")
	require.NoError(t, err)
	require.NoError(t, sendSecond(context.Background()))

	transport.deliver(t, `{"jsonrpc":"2.0","method":"session_configured","params":{"msg":{"session_id":"sess-A"}}}`)
	transport.deliver(t, `{"jsonrpc":"2.0","method":"session_configured","params":{"msg":{"session_id":"sess-B"}}}`)

	ctx := waitCtx(t)
	global := demux.GlobalEvents()

	evA, err := global.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "sess-A", evA.SessionID)
	require.True(t, evA.Assumed, "no related id means the FIFO head was assumed")

	evB, err := global.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "sess-B", evB.SessionID)
	require.True(t, evB.Assumed)

	tracker := demux.Tracker()
	require.Equal(t, "sess-A", tracker.SessionID(first.StringID()))
	require.Equal(t, "sess-B", tracker.SessionID(second.StringID()))
}

func TestSessionConfiguredExactMatchBeatsFIFO(t *testing.T) {
	demux, transport := startDemuxer(t)

	older, sendOlder, err := demux.PrepareToolCall(ToolCodex, map[string]any{"prompt": "a"}, "")
	require.NoError(t, err)
	require.NoError(t, sendOlder(context.Background()))

	newer, sendNewer, err := demux.PrepareToolCall(ToolCodex, map[string]any{"prompt": "b"}, "")
	require.NoError(t, err)
	require.NoError(t, sendNewer(context.Background()))

	// Explicit related id targets the newer call even though the older one
	// heads the FIFO.
	transport.deliver(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","method":"session_configured","params":{"_meta":{"requestId":%d},"msg":{"session_id":"sess-X"}}}`,
		newer.ID()))

	ev, err := demux.GlobalEvents().Next(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, "sess-X", ev.SessionID)
	require.False(t, ev.Assumed)

	tracker := demux.Tracker()
	require.Equal(t, "sess-X", tracker.SessionID(newer.StringID()))
	require.Empty(t, tracker.SessionID(older.StringID()))

	// The next hint-less notification falls back to the remaining older call.
	transport.deliver(t, `{"jsonrpc":"2.0","method":"session_configured","params":{"msg":{"session_id":"sess-Y"}}}`)

	ev, err = demux.GlobalEvents().Next(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, "sess-Y", ev.SessionID)
	require.True(t, ev.Assumed)
	require.Equal(t, "sess-Y", tracker.SessionID(older.StringID()))
}

func TestSessionConfiguredWithEmptyFIFO(t *testing.T) {
	demux, transport := startDemuxer(t)

	transport.deliver(t, `{"jsonrpc":"2.0","method":"session_configured","params":{"msg":{"session_id":"sess-orphan"}}}`)

	// Recorded globally but bound to no call.
	ev, err := demux.GlobalEvents().Next(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, "sess-orphan", ev.SessionID)
	require.False(t, ev.Assumed)
}

func TestSessionEventRouting(t *testing.T) {
	demux, transport := startDemuxer(t)

	call, send, err := demux.PrepareToolCall(ToolCodex, map[string]any{"prompt": "go"}, "")
	require.NoError(t, err)
	require.NoError(t, send(context.Background()))

	transport.deliver(t, `{"jsonrpc":"2.0","method":"session_configured","params":{"msg":{"session_id":"sess-1"}}}`)
	transport.deliver(t, `{"jsonrpc":"2.0","method":"codex/event/agent_message","params":{"msg":{"session_id":"sess-1","text":"hi"}}}`)

	ctx := waitCtx(t)
	stream := demux.SessionEvents("sess-1")

	configured, err := stream.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "session_configured", configured.Raw["method"])

	message, err := stream.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, EventNotification, message.Type)
	require.Equal(t, "sess-1", message.SessionID)

	// The response inherits the bound session and lands on the same stream.
	transport.deliver(t, fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"content":[]}}`, call.ID()))

	_, err = call.Wait(ctx)
	require.NoError(t, err)

	response, err := stream.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, EventResponse, response.Type)
	require.Equal(t, "sess-1", response.SessionID)
}

func TestSingleActiveSessionAttribution(t *testing.T) {
	demux, transport := startDemuxer(t)

	_, send, err := demux.PrepareToolCall(ToolCodex, map[string]any{"prompt": "go"}, "")
	require.NoError(t, err)
	require.NoError(t, send(context.Background()))

	transport.deliver(t, `{"jsonrpc":"2.0","method":"session_configured","params":{"msg":{"session_id":"only"}}}`)

	// Carries neither a session id nor a correlation hint. With exactly one
	// known session it is attributed to it.
	transport.deliver(t, `{"jsonrpc":"2.0","method":"codex/event/task_started","params":{"msg":{}}}`)

	ctx := waitCtx(t)
	stream := demux.SessionEvents("only")

	_, err = stream.Next(ctx)
	require.NoError(t, err)

	ev, err := stream.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "only", ev.SessionID)
}

func TestAmbiguousEventStaysGlobal(t *testing.T) {
	demux, transport := startDemuxer(t)

	transport.deliver(t, `{"jsonrpc":"2.0","method":"session_configured","params":{"msg":{"session_id":"s1"}}}`)
	transport.deliver(t, `{"jsonrpc":"2.0","method":"session_configured","params":{"msg":{"session_id":"s2"}}}`)
	transport.deliver(t, `{"jsonrpc":"2.0","method":"codex/event/task_started","params":{"msg":{}}}`)

	ctx := waitCtx(t)
	global := demux.GlobalEvents()

	for i := 0; i < 2; i++ {
		_, err := global.Next(ctx)
		require.NoError(t, err)
	}

	// With two sessions active the hint-less event cannot be attributed.
	ev, err := global.Next(ctx)
	require.NoError(t, err)
	require.Empty(t, ev.SessionID)
}

func TestNotificationTrackedOnTimeline(t *testing.T) {
	demux, transport := startDemuxer(t)

	call, send, err := demux.PrepareToolCall(ToolCodex, map[string]any{"prompt": "go"}, "")
	require.NoError(t, err)
	require.NoError(t, send(context.Background()))

	transport.deliver(t, fmt.Sprintf(
		`{"jsonrpc":"2.0","method":"codex/event/task_started","params":{"_meta":{"requestId":%d},"msg":{}}}`,
		call.ID()))

	ctx := waitCtx(t)
	_, err = demux.GlobalEvents().Next(ctx)
	require.NoError(t, err)

	timeline, ok := demux.Tracker().GetTimeline(call.StringID())
	require.True(t, ok)
	require.Len(t, timeline.Notifications, 1)
	require.Equal(t, call.StringID(), timeline.Notifications[0].RelatedRequestID)
}

func TestTransportCloseRejectsAllPending(t *testing.T) {
	transport := newFakeTransport()
	demux := NewDemuxer(testLogger(), transport)
	demux.Start(context.Background())

	first, sendFirst, err := demux.PrepareToolCall(ToolCodex, map[string]any{"prompt": "a"}, "")
	require.NoError(t, err)
	require.NoError(t, sendFirst(context.Background()))

	second, sendSecond, err := demux.PrepareRequest("tools/list", nil)
	require.NoError(t, err)
	require.NoError(t, sendSecond(context.Background()))

	stream := demux.SessionEvents("sess-1")

	transport.closeStream()
	demux.Stop()

	ctx := waitCtx(t)

	_, err = first.Wait(ctx)
	require.ErrorIs(t, err, sdkerrors.ErrTransportClosed)

	_, err = second.Wait(ctx)
	require.ErrorIs(t, err, sdkerrors.ErrTransportClosed)

	_, err = demux.GlobalEvents().Next(ctx)
	require.ErrorIs(t, err, sdkerrors.ErrTransportClosed)

	_, err = stream.Next(ctx)
	require.ErrorIs(t, err, sdkerrors.ErrTransportClosed)
}

func TestWaitCancelDoesNotRetract(t *testing.T) {
	demux, transport := startDemuxer(t)

	call, send, err := demux.PrepareRequest("tools/list", nil)
	require.NoError(t, err)
	require.NoError(t, send(context.Background()))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = call.Wait(cancelled)
	require.ErrorIs(t, err, context.Canceled)

	// The request is still pending; a late response resolves it.
	transport.deliver(t, fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"tools":[]}}`, call.ID()))

	result, err := call.Wait(waitCtx(t))
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestEncodeFailureLeavesNoTimeline(t *testing.T) {
	demux, transport := startDemuxer(t)

	first, _, err := demux.PrepareRequest("initialize", nil)
	require.NoError(t, err)

	_, _, err = demux.PrepareToolCall(ToolCodex, map[string]any{"bad": make(chan int)}, "")
	require.Error(t, err)
	require.Equal(t, 0, transport.sentCount())

	failedID := strconv.FormatInt(first.ID()+1, 10)
	_, ok := demux.Tracker().GetTimeline(failedID)
	require.False(t, ok, "request that was never sent must not leave a pending timeline")

	// The consumed id is not reused; ids keep increasing.
	next, _, err := demux.PrepareRequest("initialize", nil)
	require.NoError(t, err)
	require.Equal(t, first.ID()+2, next.ID())
}

func TestNotifySendsFrame(t *testing.T) {
	demux, transport := startDemuxer(t)

	require.NoError(t, demux.Notify(context.Background(), "notifications/initialized", map[string]any{}))
	require.Equal(t, 1, transport.sentCount())
}

func TestExtractRelatedRequestID(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{
			name:   "meta requestId wins",
			params: map[string]any{"_meta": map[string]any{"requestId": float64(7)}, "request_id": "9"},
			want:   "7",
		},
		{
			name:   "related_request_id before request_id",
			params: map[string]any{"related_request_id": "3", "request_id": "4"},
			want:   "3",
		},
		{
			name:   "request_id fallback",
			params: map[string]any{"request_id": float64(12)},
			want:   "12",
		},
		{
			name:   "nested under msg",
			params: map[string]any{"msg": map[string]any{"related_request_id": "5"}},
			want:   "5",
		},
		{
			name:   "top level beats nested",
			params: map[string]any{"request_id": "1", "msg": map[string]any{"request_id": "2"}},
			want:   "1",
		},
		{
			name:   "nil params",
			params: nil,
			want:   "",
		},
		{
			name:   "no hint",
			params: map[string]any{"msg": map[string]any{"type": "agent_message"}},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, extractRelatedRequestID(tt.params))
		})
	}
}

func TestStringifyID(t *testing.T) {
	require.Equal(t, "42", stringifyID(float64(42)))
	require.Equal(t, "abc", stringifyID("abc"))
	require.Equal(t, "", stringifyID(true))
}

func TestFlattenPayload(t *testing.T) {
	require.Equal(t,
		map[string]any{"session_id": "s"},
		flattenPayload(map[string]any{"msg": map[string]any{"session_id": "s"}}))

	flat := map[string]any{"session_id": "s"}
	require.Equal(t, flat, flattenPayload(flat))

	require.Empty(t, flattenPayload(nil))
}
