package methods

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/goclaw/internal/gateway"
	"github.com/nextlevelbuilder/goclaw/internal/reconcile"
	"github.com/nextlevelbuilder/goclaw/internal/registry"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/store/memstore"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

func newTestServer(t *testing.T) (*websocket.Conn, *memstore.Store, *registry.Registry, store.Sender, func()) {
	t.Helper()
	s := memstore.New()
	accountID := uuid.New()
	sender := store.Sender{ID: uuid.New(), AccountID: accountID, Status: store.SenderOffline, DailyLimit: 50}
	s.PutSender(&sender)

	reg := registry.New()
	rec := reconcile.New(s, s, s, s, s, reg)
	sm := New(s, s, rec, reg)

	router := gateway.NewMethodRouter()
	sm.Register(router)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		client := gateway.NewClient(conn)
		router.Serve(r.Context(), client)
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, s, reg, sender, func() {
		conn.Close()
		srv.Close()
	}
}

func call(t *testing.T, conn *websocket.Conn, id, method string, params interface{}) protocol.ResponseFrame {
	t.Helper()
	if params != nil {
		req := struct {
			ID     string      `json:"id"`
			Method string      `json:"method"`
			Params interface{} `json:"params"`
		}{ID: id, Method: method, Params: params}
		if err := conn.WriteJSON(req); err != nil {
			t.Fatal(err)
		}
	} else {
		if err := conn.WriteJSON(protocol.RequestFrame{ID: id, Method: method}); err != nil {
			t.Fatal(err)
		}
	}

	var resp protocol.ResponseFrame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHandleAuthMarksSenderOnline(t *testing.T) {
	conn, s, reg, sender, cleanup := newTestServer(t)
	defer cleanup()

	resp := call(t, conn, "1", protocol.MethodAuth, protocol.AuthPayload{SenderID: sender.ID.String()})
	if !resp.OK {
		t.Fatalf("auth failed: %s", resp.Error)
	}
	if !reg.IsOnline(sender.ID) {
		t.Fatal("expected sender to be registered online")
	}
	got, err := s.GetSender(context.Background(), sender.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.SenderOnline {
		t.Fatalf("sender status = %s, want online", got.Status)
	}
}

func TestHandleAuthUnknownSenderErrors(t *testing.T) {
	conn, _, _, _, cleanup := newTestServer(t)
	defer cleanup()

	resp := call(t, conn, "1", protocol.MethodAuth, protocol.AuthPayload{SenderID: uuid.New().String()})
	if resp.OK {
		t.Fatal("expected an auth error for an unknown sender")
	}
}

func TestHandleTaskPickupReturnsAssignedTask(t *testing.T) {
	conn, s, _, sender, cleanup := newTestServer(t)
	defer cleanup()

	authResp := call(t, conn, "1", protocol.MethodAuth, protocol.AuthPayload{SenderID: sender.ID.String()})
	if !authResp.OK {
		t.Fatalf("auth failed: %s", authResp.Error)
	}

	task := store.Task{
		ID: uuid.New(), AccountID: sender.AccountID, SenderID: sender.ID,
		Status: store.TaskPending, Message: "hi", TargetUsername: "jdoe",
	}
	s.PutTask(&task)

	resp := call(t, conn, "2", protocol.MethodTaskPickup, nil)
	if !resp.OK {
		t.Fatalf("pickup failed: %s", resp.Error)
	}
}

func TestHandleHeartbeatRequiresAuth(t *testing.T) {
	conn, _, _, _, cleanup := newTestServer(t)
	defer cleanup()

	resp := call(t, conn, "1", protocol.MethodHeartbeat, nil)
	if resp.OK {
		t.Fatal("expected heartbeat to fail before auth")
	}
}

func TestHandleTaskCompleteNormalizesLooselyTypedAt(t *testing.T) {
	conn, s, _, sender, cleanup := newTestServer(t)
	defer cleanup()

	authResp := call(t, conn, "1", protocol.MethodAuth, protocol.AuthPayload{SenderID: sender.ID.String()})
	if !authResp.OK {
		t.Fatalf("auth failed: %s", authResp.Error)
	}

	outboundLead := store.OutboundLead{ID: uuid.New()}
	s.PutOutboundLead(&outboundLead)
	task := store.Task{
		ID: uuid.New(), AccountID: sender.AccountID, SenderID: sender.ID,
		OutboundLeadID: outboundLead.ID, Status: store.TaskInProgress,
		Message: "hi", TargetUsername: "jdoe",
	}
	s.PutTask(&task)

	reportedAt := "2026-03-05T12:00:00Z"
	resp := call(t, conn, "2", protocol.MethodTaskComplete, protocol.TaskCompletePayload{
		TaskID: task.ID.String(), Username: "jdoe", At: reportedAt,
	})
	if !resp.OK {
		t.Fatalf("complete failed: %s", resp.Error)
	}

	got, err := s.GetOutboundLead(context.Background(), outboundLead.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DMDate == nil || got.DMDate.Format(time.RFC3339) != reportedAt {
		t.Fatalf("DMDate = %v, want the agent-reported timestamp %s", got.DMDate, reportedAt)
	}
}
