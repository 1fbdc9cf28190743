// Package reconcile implements the Reconciliation Handler (spec.md
// §4.7-§4.9): the completion and failure paths a remote agent's task
// report drives, and the restriction/retry rules around them.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/registry"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// restrictionDuration is how long a sender is quarantined after a
// restriction-class failure (spec.md §4.8 item 3).
const restrictionDuration = 24 * time.Hour

// Handler drives the Store writes and Agent Registry pushes that follow
// an agent's completion or failure report for a task.
type Handler struct {
	Tasks         store.TaskStore
	Leads         store.CampaignLeadStore
	Campaigns     store.CampaignStore
	OutboundLeads store.OutboundLeadStore
	Senders       store.SenderStore
	Registry      *registry.Registry
}

func New(tasks store.TaskStore, leads store.CampaignLeadStore, campaigns store.CampaignStore, outboundLeads store.OutboundLeadStore, senders store.SenderStore, reg *registry.Registry) *Handler {
	return &Handler{Tasks: tasks, Leads: leads, Campaigns: campaigns, OutboundLeads: outboundLeads, Senders: senders, Registry: reg}
}

// CompletionReport is the agent's {success, username, thread_id?, timestamp}.
type CompletionReport struct {
	Username string
	ThreadID string
	At       time.Time
}

// Complete runs the completion path (spec.md §4.7). Idempotent: replayed
// completions for an already-completed task are no-ops.
func (h *Handler) Complete(ctx context.Context, taskID uuid.UUID, report CompletionReport) error {
	task, err := h.Tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status == store.TaskCompleted {
		return nil
	}

	updated, err := h.Tasks.Complete(ctx, taskID, report.At, store.TaskResult{
		Username: report.Username,
		ThreadID: report.ThreadID,
	})
	if err != nil {
		return err
	}

	if updated.OutboundLeadID != uuid.Nil {
		if err := h.OutboundLeads.MarkMessaged(ctx, updated.OutboundLeadID, report.At, updated.Message, report.ThreadID); err != nil {
			return err
		}
	}

	if updated.CampaignLeadID != uuid.Nil {
		ok, err := h.Leads.SetTerminal(ctx, updated.CampaignLeadID, store.LeadQueued, store.LeadSent, func(l *store.CampaignLead) {
			t := report.At
			l.SentAt = &t
		})
		if err != nil {
			return err
		}
		if ok {
			if err := h.Campaigns.AdjustStats(ctx, updated.CampaignID, store.CampaignStatsDelta{Queued: -1, Sent: 1}); err != nil {
				return err
			}
		}
	}

	h.pushAccountEvent(updated.AccountID, "task:complete", taskID)
	return nil
}

// FailureReport is the agent's {error, error_type, stack?, timestamp}.
type FailureReport struct {
	Message   string
	ErrorType store.ErrorType
	Stack     string
	At        time.Time
}

// Fail runs the failure path (spec.md §4.8). A replayed failure for an
// already-failed task leaves the lead and stats untouched; the
// restriction side effect (SetRestricted, re-stamped from the replayed
// report's time) and the account pushes run again on every call.
func (h *Handler) Fail(ctx context.Context, taskID uuid.UUID, report FailureReport) error {
	task, err := h.Tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	alreadyFailed := task.Status == store.TaskFailed

	updated, err := h.Tasks.Fail(ctx, taskID, report.At, store.TaskError{
		Message:   report.Message,
		ErrorType: report.ErrorType,
		Stack:     report.Stack,
	})
	if err != nil {
		return err
	}

	if !alreadyFailed && updated.CampaignLeadID != uuid.Nil {
		ok, err := h.Leads.SetTerminal(ctx, updated.CampaignLeadID, store.LeadQueued, store.LeadFailed, func(l *store.CampaignLead) {
			l.LastError = report.Message
		})
		if err != nil {
			return err
		}
		if ok {
			if err := h.Campaigns.AdjustStats(ctx, updated.CampaignID, store.CampaignStatsDelta{Queued: -1, Failed: 1}); err != nil {
				return err
			}
		}
	}

	if store.RestrictionClassErrors[report.ErrorType] && updated.SenderID != uuid.Nil {
		until := report.At.Add(restrictionDuration)
		if err := h.Senders.SetRestricted(ctx, updated.SenderID, until, report.Message); err != nil {
			return err
		}
		h.pushAccountEvent(updated.AccountID, "sender-restricted", updated.SenderID)
	}

	h.pushAccountEvent(updated.AccountID, "task:fail", taskID)
	return nil
}

func (h *Handler) pushAccountEvent(accountID uuid.UUID, event string, subjectID uuid.UUID) {
	if h.Registry == nil {
		return
	}
	payload := []byte(`{"event":"` + event + `","id":"` + subjectID.String() + `"}`)
	if err := h.Registry.PushToAccount(accountID, payload); err != nil {
		slog.Warn("reconcile: push to account failed", "account", accountID, "event", event, "err", err)
	}
}
