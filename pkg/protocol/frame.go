package protocol

import "encoding/json"

// Method names routed through the gateway's MethodRouter. Inbound calls
// an agent makes to the scheduler.
const (
	MethodAuth        = "auth"
	MethodHeartbeat   = "heartbeat"
	MethodTaskPickup  = "task.pickup"
	MethodTaskComplete = "task.complete"
	MethodTaskFail    = "task.fail"
)

// RequestFrame is one JSON-RPC-style call from a connected agent.
type RequestFrame struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResponseFrame answers a RequestFrame by ID.
type ResponseFrame struct {
	ID     string      `json:"id"`
	OK     bool        `json:"ok"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// EventFrame is an unsolicited server->client push (task:new, task:eta,
// sender:restricted, etc).
type EventFrame struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// NewOKResponse builds a successful ResponseFrame.
func NewOKResponse(id string, result interface{}) *ResponseFrame {
	return &ResponseFrame{ID: id, OK: true, Result: result}
}

// NewErrorResponse builds a failed ResponseFrame.
func NewErrorResponse(id string, err error) *ResponseFrame {
	return &ResponseFrame{ID: id, OK: false, Error: err.Error()}
}
