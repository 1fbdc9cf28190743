// Package store defines the durable entities and Store contracts the
// scheduler core is built on: accounts, outbound accounts, senders,
// campaigns, campaign leads, outbound leads, and tasks. Concrete
// implementations live in sibling packages (pg for Postgres).
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// --- Enumerations ---

type OutboundAccountStatus string

const (
	OutboundAccountNew        OutboundAccountStatus = "new"
	OutboundAccountWarming    OutboundAccountStatus = "warming"
	OutboundAccountReady      OutboundAccountStatus = "ready"
	OutboundAccountRestricted OutboundAccountStatus = "restricted"
	OutboundAccountDisabled   OutboundAccountStatus = "disabled"
)

type SenderStatus string

const (
	SenderOnline     SenderStatus = "online"
	SenderOffline    SenderStatus = "offline"
	SenderRestricted SenderStatus = "restricted"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

type CampaignMode string

const (
	CampaignModeAuto   CampaignMode = "auto"
	CampaignModeManual CampaignMode = "manual"
)

type PacingMode string

const (
	PacingSmooth PacingMode = "smooth"
	PacingBurst  PacingMode = "burst"
)

// Channel identifies the transport that backs a sender's agent connection.
// browser_dm is the default and the only channel the original spec
// describes in detail; telegram/discord are supplemental (SPEC_FULL §3).
type Channel string

const (
	ChannelBrowserDM Channel = "browser_dm"
	ChannelTelegram  Channel = "telegram"
	ChannelDiscord   Channel = "discord"
)

type CampaignLeadStatus string

const (
	LeadPending   CampaignLeadStatus = "pending"
	LeadQueued    CampaignLeadStatus = "queued"
	LeadSent      CampaignLeadStatus = "sent"
	LeadDelivered CampaignLeadStatus = "delivered"
	LeadReplied   CampaignLeadStatus = "replied"
	LeadFailed    CampaignLeadStatus = "failed"
	LeadSkipped   CampaignLeadStatus = "skipped"
)

// TerminalLeadStatuses are the statuses counted outside {pending, queued}
// for invariant 7 ("a campaign completes only when pending+queued == 0").
var TerminalLeadStatuses = map[CampaignLeadStatus]bool{
	LeadSent: true, LeadDelivered: true, LeadReplied: true,
	LeadFailed: true, LeadSkipped: true,
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// TaskType is always "send_direct_message" in this specification; the field
// exists so the task payload schema doesn't need to change if a second task
// type is added later.
type TaskType string

const TaskTypeSendDM TaskType = "send_direct_message"

// ErrorType classifies agent-reported send failures. Only the first four
// values trigger a 24h sender restriction (spec.md §4.8).
type ErrorType string

const (
	ErrIGRestricted     ErrorType = "IG_RESTRICTED"
	ErrRateLimited      ErrorType = "RATE_LIMITED"
	ErrActionBlocked    ErrorType = "ACTION_BLOCKED"
	ErrChallengeRequired ErrorType = "CHALLENGE_REQUIRED"
	ErrUnknown          ErrorType = "UNKNOWN"
)

// RestrictionClassErrors are the ErrorType values that quarantine a sender.
var RestrictionClassErrors = map[ErrorType]bool{
	ErrIGRestricted: true, ErrRateLimited: true,
	ErrActionBlocked: true, ErrChallengeRequired: true,
}

// --- Entities ---

// Account is a tenant.
type Account struct {
	ID          uuid.UUID
	FeatureFlags map[string]bool
	TimeZone    string
	CreatedAt   time.Time
	DeletedAt   *time.Time
}

// WarmupDayCap is one entry of a warmup ramp schedule: "on day N, cap at C."
type WarmupDayCap struct {
	Day int `json:"day"`
	Cap int `json:"cap"`
}

// WarmupPlan is an outbound account's ramp-up schedule.
type WarmupPlan struct {
	Enabled   bool           `json:"enabled"`
	StartDate time.Time      `json:"start_date"`
	DayCaps   []WarmupDayCap `json:"day_caps"`
}

// CapForDay returns the cap configured for warmup day d (1-based), or
// (0, false) if day d has no explicit entry (treated as zero/ineligible
// by the Eligibility Filter, per spec.md §4.3).
func (p WarmupPlan) CapForDay(d int) (int, bool) {
	for _, dc := range p.DayCaps {
		if dc.Day == d {
			return dc.Cap, true
		}
	}
	return 0, false
}

// OutboundAccount is a sending identity owned by an Account. Channel
// names which external transport backs its agent connection; Handle is
// that channel's recipient identifier (a browser extension's IG
// username, or a Discord user ID / Telegram chat ID for the
// bot-delivered channels in internal/channels).
type OutboundAccount struct {
	ID         uuid.UUID
	AccountID  uuid.UUID
	Handle     string
	Channel    Channel
	Status     OutboundAccountStatus
	Warmup     *WarmupPlan

	StreakDays         int
	StreakLastSendDate *time.Time // calendar day, local-tz-normalized
	RestUntil          *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sender is a live session backing an OutboundAccount.
type Sender struct {
	ID                uuid.UUID
	AccountID         uuid.UUID
	OutboundAccountID uuid.UUID
	Status            SenderStatus
	LastHeartbeat     time.Time
	DailyLimit        int
	TestMode          bool
	RestrictedUntil   *time.Time
	RestrictionReason string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Schedule is a campaign's pacing/window configuration.
type Schedule struct {
	TimeZone         string     `json:"time_zone"`
	ActiveHoursStart int        `json:"active_hours_start"`
	ActiveHoursEnd   int        `json:"active_hours_end"`
	PacingMode       PacingMode `json:"pacing_mode"`

	// Smooth params.
	DailyCapPerSender int `json:"daily_cap_per_sender"`

	// Burst params.
	MinDelaySeconds      int `json:"min_delay_seconds"`
	MaxDelaySeconds      int `json:"max_delay_seconds"`
	MessagesPerGroup     int `json:"messages_per_group"`
	MinGroupBreakSeconds int `json:"min_group_break_seconds"`
	MaxGroupBreakSeconds int `json:"max_group_break_seconds"`

	// CronExpression optionally further restricts dispatch eligibility
	// beyond the active-hours window (SPEC_FULL §3, gronx-evaluated).
	CronExpression string `json:"cron_expression,omitempty"`
}

// Valid rejects schedules input validation should never let through the
// Store (spec.md §7 "schema or configuration error").
func (s Schedule) Valid() error {
	if s.ActiveHoursEnd <= s.ActiveHoursStart {
		return errInvalidWindow
	}
	if s.PacingMode == PacingBurst && s.MinDelaySeconds > s.MaxDelaySeconds {
		return errInvalidDelayRange
	}
	if s.DailyCapPerSender < 0 {
		return errNegativeLimit
	}
	return nil
}

// BurstState is the mutable burst-mode progress tracked on a Campaign.
type BurstState struct {
	SentInGroup int        `json:"sent_in_group"`
	BreakUntil  *time.Time `json:"break_until"`
}

// CampaignStats are the aggregated per-status counts invariant 3 requires
// to sum to the campaign's total lead count.
type CampaignStats struct {
	Pending   int `json:"pending"`
	Queued    int `json:"queued"`
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Replied   int `json:"replied"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Total sums every counter.
func (s CampaignStats) Total() int {
	return s.Pending + s.Queued + s.Sent + s.Delivered + s.Replied + s.Failed + s.Skipped
}

// Campaign is a work plan owned by an Account.
type Campaign struct {
	ID                 uuid.UUID
	AccountID          uuid.UUID
	Status             CampaignStatus
	Mode               CampaignMode
	Channel            Channel
	MessageTemplates   []string
	OutboundAccountIDs []uuid.UUID
	Schedule           Schedule

	LastSenderIndex  int
	LastMessageIndex int
	LastSentAt       *time.Time
	Burst            BurstState

	Stats CampaignStats

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OutboundLead is an external target profile, shared by reference across
// many campaign leads.
type OutboundLead struct {
	ID             uuid.UUID
	AccountID      uuid.UUID
	Username       string
	DisplayName    string
	Bio            string
	FollowerCount  int
	Messaged       bool
	Replied        bool
	ThreadID       string
	DMDate         *time.Time
	LastMessage    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CampaignLead joins one target with one campaign.
type CampaignLead struct {
	ID             uuid.UUID
	CampaignID     uuid.UUID
	OutboundLeadID uuid.UUID
	Status         CampaignLeadStatus

	SenderID *uuid.UUID
	QueuedAt *time.Time
	TaskID   *uuid.UUID

	MessageUsed    string
	TemplateIndex  *int
	FailedSenderIDs []uuid.UUID
	LastError      string

	ManualOverride bool

	SentAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskResult is the terminal payload attached to a completed task.
type TaskResult struct {
	Username string `json:"username,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
}

// TaskError is the terminal payload attached to a failed task.
type TaskError struct {
	Message   string    `json:"message"`
	ErrorType ErrorType `json:"error_type"`
	Stack     string    `json:"stack,omitempty"`
}

// Task is the executable unit dispatched to a remote agent.
type Task struct {
	ID             uuid.UUID
	AccountID      uuid.UUID
	Type           TaskType
	TargetUsername string
	Message        string

	SenderID       uuid.UUID
	CampaignID     uuid.UUID
	CampaignLeadID uuid.UUID
	OutboundLeadID uuid.UUID

	Status   TaskStatus
	Attempts int

	Result *TaskResult
	Error  *TaskError

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time
}

// RawJSON is a convenience alias used by Store implementations that persist
// JSONB columns (warmup plans, schedules, burst state).
type RawJSON = json.RawMessage
