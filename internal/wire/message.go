package wire

import (
	"encoding/json"
	"fmt"

	"github.com/parallelcodex/codex-sdk-go/internal/errors"
)

// Version is the JSON-RPC protocol version sent on every frame.
const Version = "2.0"

// Kind discriminates the three frame variants.
type Kind int

const (
	// KindUnknown marks a frame that matched no variant. Such frames are
	// logged and dropped by the reader loop.
	KindUnknown Kind = iota

	// KindRequest is an outgoing call expecting a response.
	KindRequest

	// KindResponse carries a result or error for an earlier request id.
	KindResponse

	// KindNotification is a server-initiated message with no response
	// expected. It may still carry an id; classification ignores it.
	KindNotification
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// RPCError is the error member of a failed response.
type RPCError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Message is the decoded form of one frame.
//
// Exactly one of the Kind* variants applies. Raw preserves the full decoded
// object so consumers can reach fields the typed view does not model.
type Message struct {
	Kind   Kind
	ID     int64
	HasID  bool
	Method string
	Params map[string]any
	Result any
	Error  *RPCError
	Raw    map[string]any
}

// Decode parses one line into a classified Message.
//
// Returns a ProtocolDecodeError if the line is not valid JSON. Lines that
// parse but match no variant come back with KindUnknown and no error; the
// caller decides whether to drop them.
func Decode(line []byte) (Message, error) {
	var raw map[string]any

	if err := json.Unmarshal(line, &raw); err != nil {
		return Message{}, &errors.ProtocolDecodeError{RawLine: string(line), Err: err}
	}

	return Classify(raw), nil
}

// Classify builds a Message from an already-decoded frame.
//
// The discrimination order is fixed: a method with no result/error member is
// a notification even when an id is present; an id with a result or error
// member is a response; anything else is unknown.
func Classify(raw map[string]any) Message {
	msg := Message{Kind: KindUnknown, Raw: raw}

	if method, ok := raw["method"].(string); ok {
		msg.Method = method
		msg.Params, _ = raw["params"].(map[string]any)
	}

	if id, ok := numericID(raw["id"]); ok {
		msg.ID = id
		msg.HasID = true
	}

	_, hasResult := raw["result"]
	_, hasError := raw["error"]

	switch {
	case msg.Method != "" && !hasResult && !hasError:
		msg.Kind = KindNotification

	case msg.HasID && (hasResult || hasError):
		msg.Kind = KindResponse
		msg.Result = raw["result"]

		if hasError {
			msg.Error = decodeError(raw["error"])
		}
	}

	return msg
}

// EncodeRequest marshals an outgoing request frame, without the trailing
// newline. The transport appends it.
func EncodeRequest(id int64, method string, params map[string]any) ([]byte, error) {
	frame := map[string]any{
		"jsonrpc": Version,
		"id":      id,
		"method":  method,
	}
	if params != nil {
		frame["params"] = params
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal request %d: %w", id, err)
	}

	return data, nil
}

// EncodeNotification marshals an outgoing notification frame (no id).
func EncodeNotification(method string, params map[string]any) ([]byte, error) {
	frame := map[string]any{
		"jsonrpc": Version,
		"method":  method,
	}
	if params != nil {
		frame["params"] = params
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("marshal notification %s: %w", method, err)
	}

	return data, nil
}

// numericID extracts an integer request id from a decoded JSON value.
func numericID(v any) (int64, bool) {
	switch id := v.(type) {
	case float64:
		return int64(id), true
	case json.Number:
		n, err := id.Int64()
		if err != nil {
			return 0, false
		}

		return n, true
	default:
		return 0, false
	}
}

// decodeError converts the raw error member into an RPCError. Malformed
// error members still produce a non-nil RPCError so a failed response is
// never mistaken for a success.
func decodeError(v any) *RPCError {
	obj, ok := v.(map[string]any)
	if !ok {
		return &RPCError{Message: fmt.Sprintf("%v", v)}
	}

	rpcErr := &RPCError{Data: obj["data"]}

	if code, ok := numericID(obj["code"]); ok {
		rpcErr.Code = code
	}

	if msg, ok := obj["message"].(string); ok {
		rpcErr.Message = msg
	}

	return rpcErr
}
