// Package lease implements the Lease Manager (spec.md §4.4): the two
// atomic conditional updates that hand a pending campaign lead to a
// sender, plus the stale-lease and stale-task reclamation sweeps.
package lease

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

const (
	// StaleLeaseTimeoutAuto is T for auto-mode campaigns (spec.md §4.4).
	StaleLeaseTimeoutAuto = 5 * time.Minute
	// StaleLeaseTimeoutManual is T for manual-mode campaigns.
	StaleLeaseTimeoutManual = 10 * time.Minute
	// StaleTaskTimeout is the age at which an un-acked task is reclaimed.
	StaleTaskTimeout = 2 * time.Minute
)

// Manager wraps the lead/task stores with the Lease Manager's
// conditional-update operations.
type Manager struct {
	Leads store.CampaignLeadStore
	Tasks store.TaskStore
}

func New(leads store.CampaignLeadStore, tasks store.TaskStore) *Manager {
	return &Manager{Leads: leads, Tasks: tasks}
}

// Acquire atomically selects the oldest pending lead for campaignID and
// assigns it to senderID. Returns (nil, nil) if none is available.
func (m *Manager) Acquire(ctx context.Context, campaignID, senderID uuid.UUID, now time.Time) (*store.CampaignLead, error) {
	lead, err := m.Leads.AcquireOldestPending(ctx, campaignID, senderID, now)
	if errors.Is(err, store.ErrNoLease) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lead, nil
}

// StaleLeaseTimeout returns T for the campaign's mode.
func StaleLeaseTimeout(mode store.CampaignMode) time.Duration {
	if mode == store.CampaignModeManual {
		return StaleLeaseTimeoutManual
	}
	return StaleLeaseTimeoutAuto
}

// ReclaimStaleLeases resets queued leads older than the mode's timeout
// back to pending, returning how many were reclaimed, and moves that many
// from the campaign's queued stat to its pending stat.
func (m *Manager) ReclaimStaleLeases(ctx context.Context, campaigns store.CampaignStore, campaignID uuid.UUID, mode store.CampaignMode, now time.Time) (int, error) {
	deadline := now.Add(-StaleLeaseTimeout(mode))
	n, err := m.Leads.ReclaimStaleLeases(ctx, campaignID, deadline)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := campaigns.AdjustStats(ctx, campaignID, store.CampaignStatsDelta{Queued: -n, Pending: n}); err != nil {
		return n, err
	}
	return n, nil
}

// ReclaimStaleTasks marks any task older than StaleTaskTimeout as failed
// with reason "timed out", and resets each affected task's campaign lead
// back to pending when it is still queued (spec.md §4.4 "Reclaim stale
// tasks" — the cross-entity half of the sweep). The lead-side reset uses
// SetTerminal-guarded transitions so it is idempotent under a concurrent
// agent-reported completion/failure.
func (m *Manager) ReclaimStaleTasks(ctx context.Context, campaigns store.CampaignStore, now time.Time) (int, error) {
	deadline := now.Add(-StaleTaskTimeout)
	tasks, err := m.Tasks.ReclaimStale(ctx, deadline)
	if err != nil {
		return 0, err
	}
	for _, task := range tasks {
		if task.CampaignLeadID == uuid.Nil {
			continue
		}
		ok, err := m.Leads.SetTerminal(ctx, task.CampaignLeadID, store.LeadQueued, store.LeadPending, func(l *store.CampaignLead) {
			l.SenderID = nil
			l.QueuedAt = nil
			l.TaskID = nil
		})
		if err != nil {
			return len(tasks), err
		}
		if ok {
			if err := campaigns.AdjustStats(ctx, task.CampaignID, store.CampaignStatsDelta{Queued: -1, Pending: 1}); err != nil {
				return len(tasks), err
			}
		}
	}
	return len(tasks), nil
}
