package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CampaignStore persists campaigns and their round-robin/burst/stats state.
// Every mutating method here is expected to be a single conditional update
// in a real implementation (spec.md §4.4, §9 "conditional atomic updates
// substitute for transactions").
type CampaignStore interface {
	GetCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error)
	ListActiveAutoCampaigns(ctx context.Context) ([]Campaign, error)
	ListActiveCampaignsByMode(ctx context.Context, mode CampaignMode) ([]Campaign, error)
	CreateCampaign(ctx context.Context, c *Campaign) error

	// CommitDispatch atomically advances the round-robin/template cursors,
	// last-sent timestamp, and burst counters in one write (spec.md
	// §4.6 step m). prevUpdatedAt guards against a concurrent writer —
	// implementations compare-and-swap on it.
	CommitDispatch(ctx context.Context, campaignID uuid.UUID, prevUpdatedAt time.Time, fn func(c *Campaign)) error

	// AdjustStats applies a delta to the campaign's stats counters as a
	// single atomic increment (never a read-modify-write race).
	AdjustStats(ctx context.Context, campaignID uuid.UUID, delta CampaignStatsDelta) error

	// SetStatus transitions a campaign's status (e.g. active -> completed).
	SetStatus(ctx context.Context, campaignID uuid.UUID, status CampaignStatus) error

	// ClearBurstGroup resets burst_sent_in_group/break_until for campaigns
	// whose last send fell on an earlier local calendar day than today.
	ClearBurstGroup(ctx context.Context, campaignID uuid.UUID) error

	// SetBurstBreak records a group-break window.
	SetBurstBreak(ctx context.Context, campaignID uuid.UUID, until time.Time) error

	// ClearBurstBreak clears an expired group-break window.
	ClearBurstBreak(ctx context.Context, campaignID uuid.UUID) error

	// CountSentToday counts leads in {sent, queued} whose UpdatedAt falls in
	// the campaign's current local day (spec.md §4.6 step f).
	CountSentToday(ctx context.Context, campaignID uuid.UUID, localDayStart time.Time) (int, error)
}

// CampaignStatsDelta is an additive adjustment applied atomically to a
// campaign's CampaignStats (positive or negative per field).
type CampaignStatsDelta struct {
	Pending, Queued, Sent, Delivered, Replied, Failed, Skipped int
}

// CampaignLeadStore persists campaign leads and implements the Lease
// Manager's two atomic operations (spec.md §4.4).
type CampaignLeadStore interface {
	GetLead(ctx context.Context, id uuid.UUID) (*CampaignLead, error)

	// AcquireOldestPending selects the oldest-created pending lead for
	// campaignID and atomically transitions it to queued, assigning
	// senderID and queuedAt. Returns ErrNoLease if none match.
	AcquireOldestPending(ctx context.Context, campaignID, senderID uuid.UUID, now time.Time) (*CampaignLead, error)

	// ReclaimStaleLeases resets every lead in campaignID whose status is
	// queued and queuedAt is older than the deadline back to pending,
	// clearing sender/queuedAt/task. Returns the number reclaimed.
	ReclaimStaleLeases(ctx context.Context, campaignID uuid.UUID, deadline time.Time) (int, error)

	// SetTerminal transitions a lead to a terminal status, guarded on its
	// current status (idempotency for replayed reconciliation).
	SetTerminal(ctx context.Context, leadID uuid.UUID, from, to CampaignLeadStatus, fn func(l *CampaignLead)) (bool, error)

	// AttachTask records the task/message/template-index chosen for a
	// just-acquired lead.
	AttachTask(ctx context.Context, leadID, taskID uuid.UUID, messageUsed string, templateIndex *int) error

	// ResetToPending moves a failed/skipped lead back to pending for
	// retry, recording the previously-assigned sender in failed_sender_ids.
	ResetToPending(ctx context.Context, leadID uuid.UUID) error

	// PendingOrQueuedCount returns how many of the campaign's leads are
	// still in {pending, queued} (invariant 7 / completion check).
	PendingOrQueuedCount(ctx context.Context, campaignID uuid.UUID) (int, error)

	// CountByCampaignAndSenderToday counts leads assigned to senderID in
	// campaignID with status in {sent, queued} on the given local day.
	CountByCampaignAndSenderToday(ctx context.Context, campaignID, senderID uuid.UUID, localDayStart time.Time) (int, error)
}

// OutboundAccountStore persists sending identities, their warmup plan, and
// streak counters.
type OutboundAccountStore interface {
	GetOutboundAccount(ctx context.Context, id uuid.UUID) (*OutboundAccount, error)
	ListWarming(ctx context.Context) ([]OutboundAccount, error)

	// ListByChannel returns every outbound account backed by channel, so
	// a Discord/Telegram bot session can be registered as that account's
	// RecipientPusher at startup.
	ListByChannel(ctx context.Context, channel Channel) ([]OutboundAccount, error)

	// CompleteWarmup atomically flips a warming account to ready.
	CompleteWarmup(ctx context.Context, id uuid.UUID) error

	// UpdateStreak applies the Streak Tracker's computed fields in one
	// write, guarded on the previous StreakLastSendDate to stay idempotent
	// per (outbound_account, calendar day).
	UpdateStreak(ctx context.Context, id uuid.UUID, fn func(a *OutboundAccount)) error

	// CountSendsTodayAllCampaigns counts this outbound account's
	// queued-or-sent leads across every campaign on the given local day,
	// for the warmup cap check (spec.md §4.3 item 3).
	CountSendsTodayAllCampaigns(ctx context.Context, outboundAccountID uuid.UUID, localDayStart time.Time) (int, error)
}

// SenderStore persists live agent sessions.
type SenderStore interface {
	GetSender(ctx context.Context, id uuid.UUID) (*Sender, error)
	ListByOutboundAccounts(ctx context.Context, outboundAccountIDs []uuid.UUID) ([]Sender, error)
	ListStaleOnline(ctx context.Context, heartbeatDeadline time.Time) ([]Sender, error)

	SetOnline(ctx context.Context, id uuid.UUID, heartbeat time.Time) error
	SetOffline(ctx context.Context, id uuid.UUID) error
	SetRestricted(ctx context.Context, id uuid.UUID, until time.Time, reason string) error
	Heartbeat(ctx context.Context, id uuid.UUID, at time.Time) error
}

// OutboundLeadStore persists target profiles.
type OutboundLeadStore interface {
	GetOutboundLead(ctx context.Context, id uuid.UUID) (*OutboundLead, error)
	MarkMessaged(ctx context.Context, id uuid.UUID, at time.Time, message, threadID string) error
}

// TaskStore persists dispatched units of work.
type TaskStore interface {
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)
	CreateTask(ctx context.Context, t *Task) error

	// ExistsActiveForSenderAndCampaign reports whether a task for this
	// (sender, campaign) pair is currently in {pending, in_progress}
	// (invariant 4 / eligibility check 5).
	ExistsActiveForSenderAndCampaign(ctx context.Context, senderID, campaignID uuid.UUID) (bool, error)

	// Pickup atomically finds the oldest pending task for accountID
	// (optionally scoped to senderID) and flips it to in_progress,
	// incrementing attempts.
	Pickup(ctx context.Context, accountID uuid.UUID, senderID *uuid.UUID, now time.Time) (*Task, error)

	// Complete guards on current status for idempotent replay.
	Complete(ctx context.Context, id uuid.UUID, at time.Time, result TaskResult) (*Task, error)
	// Fail guards on current status for idempotent replay.
	Fail(ctx context.Context, id uuid.UUID, at time.Time, errInfo TaskError) (*Task, error)

	// ReclaimStale marks every task in {pending, in_progress} older than
	// the deadline as failed with reason "timed out", returning the
	// reclaimed tasks (so the caller can reset their leads).
	ReclaimStale(ctx context.Context, deadline time.Time) ([]Task, error)

	// ResetStuckForAccount marks every non-terminal task for accountID as
	// failed (operator "reset stuck tasks" operation, spec.md §5).
	ResetStuckForAccount(ctx context.Context, accountID uuid.UUID, at time.Time) ([]Task, error)
}

// Store aggregates every entity-level store. Implementations (e.g. pg.Store)
// satisfy this in full; tests may compose narrower fakes per sub-interface.
type Store interface {
	CampaignStore
	CampaignLeadStore
	OutboundAccountStore
	SenderStore
	OutboundLeadStore
	TaskStore
}
