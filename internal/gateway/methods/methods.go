// Package methods registers the scheduler's RPC surface (auth,
// heartbeat, task.pickup, task.complete, task.fail) on a
// gateway.MethodRouter, following the same Register(router)-per-concern
// layout as the teacher's internal/gateway/methods package.
package methods

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/boundary"
	"github.com/nextlevelbuilder/goclaw/internal/gateway"
	"github.com/nextlevelbuilder/goclaw/internal/reconcile"
	"github.com/nextlevelbuilder/goclaw/internal/registry"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// SenderMethods handles the RPCs a connected agent makes.
type SenderMethods struct {
	Senders   store.SenderStore
	Tasks     store.TaskStore
	Reconcile *reconcile.Handler
	Registry  *registry.Registry
}

func New(senders store.SenderStore, tasks store.TaskStore, rec *reconcile.Handler, reg *registry.Registry) *SenderMethods {
	return &SenderMethods{Senders: senders, Tasks: tasks, Reconcile: rec, Registry: reg}
}

func (m *SenderMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodAuth, m.handleAuth)
	router.Register(protocol.MethodHeartbeat, m.handleHeartbeat)
	router.Register(protocol.MethodTaskPickup, m.handleTaskPickup)
	router.Register(protocol.MethodTaskComplete, m.handleTaskComplete)
	router.Register(protocol.MethodTaskFail, m.handleTaskFail)
}

func (m *SenderMethods) handleAuth(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var p protocol.AuthPayload
	if err := json.Unmarshal(req.Params, &p); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err))
		return
	}
	senderID, err := uuid.Parse(p.SenderID)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err))
		return
	}
	sender, err := m.Senders.GetSender(ctx, senderID)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err))
		return
	}
	if err := m.Senders.SetOnline(ctx, senderID, time.Now().UTC()); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err))
		return
	}
	client.SenderID = p.SenderID
	client.AccountID = sender.AccountID.String()
	m.Registry.Register(sender.AccountID, senderID, client)
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"authenticated": true}))
}

func (m *SenderMethods) handleHeartbeat(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	senderID, err := uuid.Parse(client.SenderID)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err))
		return
	}
	if err := m.Senders.Heartbeat(ctx, senderID, time.Now().UTC()); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, nil))
}

func (m *SenderMethods) handleTaskPickup(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	senderID, err := uuid.Parse(client.SenderID)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err))
		return
	}
	sender, err := m.Senders.GetSender(ctx, senderID)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err))
		return
	}
	task, err := m.Tasks.Pickup(ctx, sender.AccountID, &senderID, time.Now().UTC())
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, protocol.TaskPayload{
		TaskID: task.ID.String(), Type: string(task.Type),
		TargetUsername: task.TargetUsername, Message: task.Message,
		CampaignID: task.CampaignID.String(),
	}))
}

func (m *SenderMethods) handleTaskComplete(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var p protocol.TaskCompletePayload
	if err := json.Unmarshal(req.Params, &p); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err))
		return
	}
	taskID, err := uuid.Parse(p.TaskID)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err))
		return
	}
	at := time.Now().UTC()
	if parsed, ok := boundary.ToDate(p.At); ok {
		at = parsed
	}
	if err := m.Reconcile.Complete(ctx, taskID, reconcile.CompletionReport{
		Username: p.Username, ThreadID: p.ThreadID, At: at,
	}); err != nil {
		slog.Error("methods: task.complete failed", "task", taskID, "err", err)
		client.SendResponse(protocol.NewErrorResponse(req.ID, err))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, nil))
}

func (m *SenderMethods) handleTaskFail(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var p protocol.TaskFailPayload
	if err := json.Unmarshal(req.Params, &p); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err))
		return
	}
	taskID, err := uuid.Parse(p.TaskID)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, err))
		return
	}
	at := time.Now().UTC()
	if parsed, ok := boundary.ToDate(p.At); ok {
		at = parsed
	}
	if err := m.Reconcile.Fail(ctx, taskID, reconcile.FailureReport{
		Message: p.Error, ErrorType: store.ErrorType(p.ErrorType), Stack: p.Stack, At: at,
	}); err != nil {
		slog.Error("methods: task.fail failed", "task", taskID, "err", err)
		client.SendResponse(protocol.NewErrorResponse(req.ID, err))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, nil))
}
