// Package gateway is the websocket transport that carries task pushes to
// remote browser agents and carries their RPC calls (auth, heartbeat,
// task.pickup, task.complete, task.fail) back to the scheduler. It wraps
// gorilla/websocket the way the teacher's internal/gateway/methods
// handlers imply a Client/MethodRouter pair, but the underlying
// connection plumbing is new: the retrieval pack never included the
// teacher's own gateway core, only call sites against it.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// Client wraps one authenticated agent connection. SenderID is set once
// auth succeeds; it is the empty string until then.
type Client struct {
	SenderID  string
	AccountID string

	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn}
}

// SendResponse writes a ResponseFrame back to the client.
func (c *Client) SendResponse(resp *protocol.ResponseFrame) error {
	return c.writeJSON(resp)
}

// SendEvent pushes an unsolicited EventFrame. registry.Pusher is
// satisfied by Client.Push, not by this method.
func (c *Client) SendEvent(event string, payload interface{}) error {
	return c.writeJSON(protocol.EventFrame{Event: event, Payload: payload})
}

// Push implements registry.Pusher by writing a pre-encoded payload
// verbatim as a text frame.
func (c *Client) Push(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// HandlerFunc processes one RequestFrame from a connected client.
type HandlerFunc func(ctx context.Context, client *Client, req *protocol.RequestFrame)

// MethodRouter dispatches inbound RequestFrames by method name.
type MethodRouter struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewMethodRouter() *MethodRouter {
	return &MethodRouter{handlers: make(map[string]HandlerFunc)}
}

// Register binds a method name to its handler. A later Register for the
// same method replaces the earlier one.
func (r *MethodRouter) Register(method string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = h
}

// Dispatch routes req to its registered handler, or responds with an
// error frame if the method is unknown.
func (r *MethodRouter) Dispatch(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	r.mu.RLock()
	h, ok := r.handlers[req.Method]
	r.mu.RUnlock()
	if !ok {
		client.SendResponse(protocol.NewErrorResponse(req.ID, errUnknownMethod(req.Method)))
		return
	}
	h(ctx, client, req)
}

// Serve reads frames from client until the connection closes, routing
// each through router. Intended to run in its own goroutine per
// connection.
func (r *MethodRouter) Serve(ctx context.Context, client *Client) {
	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			slog.Info("gateway: connection closed", "sender", client.SenderID, "err", err)
			return
		}
		var req protocol.RequestFrame
		if err := json.Unmarshal(data, &req); err != nil {
			slog.Warn("gateway: malformed frame", "err", err)
			continue
		}
		r.Dispatch(ctx, client, &req)
	}
}

type unknownMethodError string

func (e unknownMethodError) Error() string { return "gateway: unknown method " + string(e) }

func errUnknownMethod(method string) error { return unknownMethodError(method) }
