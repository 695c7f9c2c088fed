package ipc

import (
	"encoding/json"
	"strings"

	"github.com/wardeck/wardeck/internal/model"
)

// MAX_MESSAGE_SIZE bounds a single request/response line; larger
// inputs are rejected without parsing (spec.md §4.8).
const MAX_MESSAGE_SIZE = 131072

// ProtocolVersion is reported in every response envelope.
const ProtocolVersion = "1"

// RequestKind tags which variant of the tagged-union request envelope
// is present.
type RequestKind string

const (
	KindUserVar            RequestKind = "user_var"
	KindPing               RequestKind = "ping"
	KindStatus             RequestKind = "status"
	KindPaneState          RequestKind = "pane_state"
	KindSetPanePriority    RequestKind = "set_pane_priority"
	KindClearPanePriority  RequestKind = "clear_pane_priority"
	KindRpc                RequestKind = "rpc"
)

// Request is the decoded envelope of one incoming line: `{token?,
// request_id?, kind, ...fields}` (spec.md §4.8).
type Request struct {
	Token     string      `json:"token,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Kind      RequestKind `json:"kind"`

	PaneID   string   `json:"pane_id,omitempty"`
	Name     string   `json:"name,omitempty"`
	Value    string   `json:"value,omitempty"`
	Priority uint32   `json:"priority,omitempty"`
	TTLMs    *int64   `json:"ttl_ms,omitempty"`
	Args     []string `json:"args,omitempty"`
}

// RequiredScope returns the scope a request needs to be authorized,
// per spec.md §4.8's scope mapping table.
func (r Request) RequiredScope() model.IPCScope {
	switch r.Kind {
	case KindUserVar, KindSetPanePriority, KindClearPanePriority:
		return model.ScopeWrite
	case KindRpc:
		return rpcScope(r.Args)
	default:
		return model.ScopeRead
	}
}

// rpcScope implements spec.md §4.8's Rpc scope table: `send`,
// `approve`, `workflow run|abort`, `accounts refresh`, `reservations
// reserve|release` require Write; everything else (including an empty
// args list) is Read.
func rpcScope(args []string) model.IPCScope {
	if len(args) == 0 {
		return model.ScopeRead
	}
	switch args[0] {
	case "send", "approve":
		return model.ScopeWrite
	case "workflow":
		if len(args) >= 2 && (args[1] == "run" || args[1] == "abort") {
			return model.ScopeWrite
		}
	case "accounts":
		if len(args) >= 2 && args[1] == "refresh" {
			return model.ScopeWrite
		}
	case "reservations":
		if len(args) >= 2 && (args[1] == "reserve" || args[1] == "release") {
			return model.ScopeWrite
		}
	}
	return model.ScopeRead
}

// Response is the envelope written back for every request (spec.md
// §4.8). Exactly one is written per connection.
type Response struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Hint      string `json:"hint,omitempty"`
	Data      any    `json:"data,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Version   string `json:"version"`
	Now       string `json:"now"`
	RequestID string `json:"request_id,omitempty"`
}

// Canonical error codes (spec.md §7 "error_code + hint scheme").
const (
	ErrCodeMissingToken      = "ipc.missing_token"
	ErrCodeInsufficientScope = "ipc.insufficient_scope"
	ErrCodeUnknownToken      = "ipc.unknown_token"
	ErrCodeMessageTooLarge   = "ipc.message_too_large"
	ErrCodeMalformedRequest  = "ipc.malformed_request"
	ErrCodeNoRegistry        = "ipc.no_registry"
	ErrCodePaneNotFound      = "ipc.pane_not_found"
	ErrCodeSendFailed        = "ipc.send_failed"
	ErrCodeInternal          = "ipc.internal"
)

// StatusData is the Status request's response payload (spec.md §4.8).
type StatusData struct {
	UptimeMs         int64                 `json:"uptime_ms"`
	EventsQueued     int                   `json:"events_queued"`
	SubscriberCount  int                   `json:"subscriber_count"`
	Health           *model.HealthSnapshot `json:"health,omitempty"`
}

// PaneStateData is the PaneState request's response payload.
type PaneStateData struct {
	Pane model.PaneEntry `json:"pane"`
}

func decodeRequest(line []byte) (Request, error) {
	var req Request
	dec := json.NewDecoder(strings.NewReader(string(line)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return Request{}, err
	}
	return req, nil
}
