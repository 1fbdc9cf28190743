package gateway

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server upgrades incoming connections to websockets and hands each one
// to a MethodRouter for the lifetime of the connection.
type Server struct {
	Router   *MethodRouter
	Registry *registry.Registry
}

func NewServer(router *MethodRouter, reg *registry.Registry) *Server {
	return &Server{Router: router, Registry: reg}
}

// ServeHTTP implements the websocket upgrade endpoint mounted at
// GET /v1/gateway by cmd/serve.go.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("gateway: upgrade failed", "err", err)
		return
	}
	client := NewClient(conn)
	defer func() {
		client.Close()
		senderID, err1 := uuid.Parse(client.SenderID)
		accountID, err2 := uuid.Parse(client.AccountID)
		if err1 == nil && err2 == nil {
			s.Registry.Forget(accountID, senderID)
		}
	}()
	s.Router.Serve(r.Context(), client)
}
