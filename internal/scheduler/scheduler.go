// Package scheduler implements the Scheduler Tick (spec.md §4.6): the
// single-writer, non-overlapping 30-second loop that sweeps stale state
// and dispatches the next message for every active auto-mode campaign.
//
// The non-overlap discipline (an atomic running flag guarding the whole
// tick) mirrors the mutex-guarded, generation-tracked queue in the
// goclaw fork's internal/scheduler.SessionQueue: at most one tick may be
// in flight, and a tick that would overlap is skipped rather than queued.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/eligibility"
	"github.com/nextlevelbuilder/goclaw/internal/lease"
	"github.com/nextlevelbuilder/goclaw/internal/pacing"
	"github.com/nextlevelbuilder/goclaw/internal/registry"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/streak"
	"github.com/nextlevelbuilder/goclaw/internal/template"
)

// tracer emits one span per tick and is picked up by whatever
// TracerProvider cmd/serve wires at process startup (no-op otherwise).
var tracer = otel.Tracer("github.com/nextlevelbuilder/goclaw/internal/scheduler")

// TickPeriod is the default period between ticks (spec.md §4.6).
const TickPeriod = 30 * time.Second

// staleSenderHeartbeat is the heartbeat age after which an online sender
// is considered gone (spec.md §4.6 step 1).
const staleSenderHeartbeat = 60 * time.Second

// warmupAutoCompleteAge is how long a warmup plan runs before the
// outbound account is auto-promoted to ready (spec.md §4.6 step 2).
const warmupAutoCompleteAge = 14 * 24 * time.Hour

// tickJitterAbsorb is the fraction of delay the previous-send guard
// tolerates to absorb tick-period jitter (spec.md §4.6 step h).
const tickJitterAbsorb = 0.8

// Scheduler owns one tick of dispatch across every active auto-mode
// campaign for one process.
type Scheduler struct {
	Store    store.Store
	Registry *registry.Registry
	Clock    clock.Clock
	Lease    *lease.Manager

	running atomic.Bool
	rand    *rand.Rand
}

func New(st store.Store, reg *registry.Registry, c clock.Clock) *Scheduler {
	return &Scheduler{
		Store:    st,
		Registry: reg,
		Clock:    c,
		Lease:    lease.New(st, st),
	}
}

// Run blocks, ticking every TickPeriod until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(TickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one pass. If a previous tick is still in flight, this one is
// skipped (spec.md §4.6 "single-writer ... if the previous tick has not
// completed, skip this one").
func (s *Scheduler) Tick(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "scheduler.Tick")
	defer span.End()

	if !s.running.CompareAndSwap(false, true) {
		slog.Warn("scheduler: tick skipped, previous tick still in flight")
		return
	}
	defer s.running.Store(false)

	now := s.Clock.Now()

	s.sweepStaleSenders(ctx, now)
	s.sweepWarmupCompletion(ctx, now)
	s.sweepStaleLeasesAndTasks(ctx, now)

	campaigns, err := s.Store.ListActiveAutoCampaigns(ctx)
	if err != nil {
		slog.Error("scheduler: list active campaigns", "err", err)
		return
	}
	for _, c := range campaigns {
		if err := s.dispatchCampaign(ctx, c, now); err != nil {
			slog.Error("scheduler: dispatch campaign failed", "campaign", c.ID, "err", err)
		}
	}
}

// sweepStaleSenders is step 1.
func (s *Scheduler) sweepStaleSenders(ctx context.Context, now time.Time) {
	deadline := now.Add(-staleSenderHeartbeat)
	stale, err := s.Store.ListStaleOnline(ctx, deadline)
	if err != nil {
		slog.Error("scheduler: list stale senders", "err", err)
		return
	}
	for _, sn := range stale {
		if err := s.Store.SetOffline(ctx, sn.ID); err != nil {
			slog.Error("scheduler: set sender offline", "sender", sn.ID, "err", err)
			continue
		}
		s.Registry.Forget(sn.AccountID, sn.ID)
	}
}

// sweepWarmupCompletion is step 2.
func (s *Scheduler) sweepWarmupCompletion(ctx context.Context, now time.Time) {
	warming, err := s.Store.ListWarming(ctx)
	if err != nil {
		slog.Error("scheduler: list warming accounts", "err", err)
		return
	}
	for _, a := range warming {
		if a.Warmup == nil || !a.Warmup.Enabled {
			continue
		}
		if now.Sub(a.Warmup.StartDate) < warmupAutoCompleteAge {
			continue
		}
		if err := s.Store.CompleteWarmup(ctx, a.ID); err != nil {
			slog.Error("scheduler: complete warmup", "outbound_account", a.ID, "err", err)
			continue
		}
		slog.Info("scheduler: warmup auto-completed", "outbound_account", a.ID)
	}
}

// sweepStaleLeasesAndTasks is step 3. Best-effort across campaigns: a
// failure for one campaign's lease sweep does not stop the others.
func (s *Scheduler) sweepStaleLeasesAndTasks(ctx context.Context, now time.Time) {
	campaigns, err := s.Store.ListActiveCampaignsByMode(ctx, store.CampaignModeAuto)
	if err != nil {
		slog.Error("scheduler: list campaigns for lease sweep", "err", err)
		return
	}
	manual, err := s.Store.ListActiveCampaignsByMode(ctx, store.CampaignModeManual)
	if err != nil {
		slog.Error("scheduler: list manual campaigns for lease sweep", "err", err)
	} else {
		campaigns = append(campaigns, manual...)
	}

	for _, c := range campaigns {
		if _, err := s.Lease.ReclaimStaleLeases(ctx, s.Store, c.ID, c.Mode, now); err != nil {
			slog.Error("scheduler: reclaim stale leases", "campaign", c.ID, "err", err)
		}
	}
	if _, err := s.Lease.ReclaimStaleTasks(ctx, s.Store, now); err != nil {
		slog.Error("scheduler: reclaim stale tasks", "err", err)
	}
}

// dispatchCampaign runs step 4 for one campaign.
func (s *Scheduler) dispatchCampaign(ctx context.Context, c store.Campaign, now time.Time) error {
	if err := c.Schedule.Valid(); err != nil {
		return err
	}

	// step a: burst group reset on a new local day.
	if c.Schedule.PacingMode == store.PacingBurst && c.LastSentAt != nil {
		lastDay, err := clock.LocalDay(s.Clock, c.Schedule.TimeZone, *c.LastSentAt)
		if err != nil {
			return err
		}
		today, err := clock.LocalDay(s.Clock, c.Schedule.TimeZone, now)
		if err != nil {
			return err
		}
		if lastDay != today {
			if err := s.Store.ClearBurstGroup(ctx, c.ID); err != nil {
				return err
			}
			c.Burst = store.BurstState{}
		}
	}

	// step b: gather senders.
	senders, err := s.Store.ListByOutboundAccounts(ctx, c.OutboundAccountIDs)
	if err != nil {
		return err
	}
	if len(senders) == 0 {
		return nil
	}
	var online []store.Sender
	for _, sn := range senders {
		if sn.Status == store.SenderOnline {
			online = append(online, sn)
		}
	}

	// step c: test mode.
	testMode := eligibility.AnyTestMode(online)

	// step d: active-hours gate.
	if !testMode {
		hour, err := s.Clock.HourInTZ(c.Schedule.TimeZone, now)
		if err != nil {
			return err
		}
		if hour < c.Schedule.ActiveHoursStart || hour >= c.Schedule.ActiveHoursEnd {
			return nil
		}
		if c.Schedule.CronExpression != "" {
			due, err := gronx.IsDue(c.Schedule.CronExpression, now)
			if err != nil {
				slog.Warn("invalid cron_expression, ignoring gate", "campaign_id", c.ID, "expr", c.Schedule.CronExpression, "err", err)
			} else if !due {
				return nil
			}
		}
	}

	// step e: burst break gate.
	if !testMode && c.Burst.BreakUntil != nil {
		if c.Burst.BreakUntil.After(now) {
			return nil
		}
		if err := s.Store.ClearBurstBreak(ctx, c.ID); err != nil {
			return err
		}
		c.Burst.BreakUntil = nil
	}

	// step f: sent-today count.
	midnight, err := s.Clock.MidnightInTZ(c.Schedule.TimeZone, now)
	if err != nil {
		return err
	}
	sentToday, err := s.Store.CountSentToday(ctx, c.ID, midnight)
	if err != nil {
		return err
	}

	// step g: pacing.
	nowSecs, err := clock.SecondsSinceMidnight(s.Clock, c.Schedule.TimeZone, now)
	if err != nil {
		return err
	}
	windowEndSecs := c.Schedule.ActiveHoursEnd * 3600
	delay := pacing.Delay(pacing.Input{
		Schedule:              c.Schedule,
		OnlineSenderCount:     len(online),
		SentTodayTotal:        sentToday,
		NowSecondsLocal:       nowSecs,
		WindowEndSecondsLocal: windowEndSecs,
		TestMode:              testMode,
		Rand:                  s.rand,
	})

	// step h: pace guard against the previous send.
	if !testMode && c.LastSentAt != nil {
		elapsed := now.Sub(*c.LastSentAt)
		guard := time.Duration(float64(delay)*tickJitterAbsorb) * time.Second
		if elapsed < guard {
			return nil
		}
	}

	deps := eligibility.Deps{Accounts: s.Store, Tasks: s.Store, Leads: s.Store, Clock: s.Clock}

	// step i: round-robin sender selection.
	sender, idx, ok, err := eligibility.SelectRoundRobin(ctx, deps, c, senders, c.LastSenderIndex, testMode)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	// step j: lease acquire.
	leadDoc, err := s.Lease.Acquire(ctx, c.ID, sender.ID, now)
	if err != nil {
		return err
	}
	if leadDoc == nil {
		pendingOrQueued, err := s.Store.PendingOrQueuedCount(ctx, c.ID)
		if err != nil {
			return err
		}
		if pendingOrQueued == 0 {
			return s.Store.SetStatus(ctx, c.ID, store.CampaignCompleted)
		}
		return nil
	}
	if err := s.Store.AdjustStats(ctx, c.ID, store.CampaignStatsDelta{Pending: -1, Queued: 1}); err != nil {
		return err
	}

	// step k: resolve outbound lead, de-duplicate against other campaigns.
	outboundLead, err := s.Store.GetOutboundLead(ctx, leadDoc.OutboundLeadID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && outboundLead.Messaged) {
		_, err := s.Store.SetTerminal(ctx, leadDoc.ID, store.LeadQueued, store.LeadSkipped, func(l *store.CampaignLead) {
			l.LastError = "outbound lead missing or already messaged"
		})
		if err != nil {
			return err
		}
		return s.Store.AdjustStats(ctx, c.ID, store.CampaignStatsDelta{Queued: -1, Skipped: 1})
	}
	if err != nil {
		return err
	}

	// step l: message selection.
	message := leadDoc.MessageUsed
	var templateIndex *int
	newMessageIndex := c.LastMessageIndex
	if message == "" {
		if len(c.MessageTemplates) == 0 {
			return nil
		}
		i := c.LastMessageIndex % len(c.MessageTemplates)
		message = template.Render(c.MessageTemplates[i], template.Lead{
			Username: outboundLead.Username,
			Name:     outboundLead.DisplayName,
			Bio:      outboundLead.Bio,
		})
		templateIndex = &i
		newMessageIndex = c.LastMessageIndex + 1
	}

	taskID := uuid.New()
	task := &store.Task{
		ID: taskID, AccountID: c.AccountID, Type: store.TaskTypeSendDM,
		TargetUsername: outboundLead.Username, Message: message,
		SenderID: sender.ID, CampaignID: c.ID, CampaignLeadID: leadDoc.ID,
		OutboundLeadID: outboundLead.ID, Status: store.TaskPending, CreatedAt: now,
	}

	// step m: commit cursors/last-sent/burst in one update + create task +
	// attach task to lead.
	err = s.Store.CommitDispatch(ctx, c.ID, c.UpdatedAt, func(cc *store.Campaign) {
		cc.LastSenderIndex = idx
		cc.LastMessageIndex = newMessageIndex
		t := now
		cc.LastSentAt = &t
		if c.Schedule.PacingMode == store.PacingBurst {
			cc.Burst.SentInGroup++
		}
	})
	if err != nil {
		return err
	}
	if err := s.Store.CreateTask(ctx, task); err != nil {
		return err
	}
	if err := s.Store.AttachTask(ctx, leadDoc.ID, taskID, message, templateIndex); err != nil {
		return err
	}

	// step n: push to sender. browser_dm goes over the websocket
	// registry; other channels route through the RecipientPusher bound
	// to the sender's outbound account (SPEC_FULL §3 — push path is the
	// only channel-specific part of dispatch).
	payload := taskPushPayload(task)
	var delivered bool
	var pushErr error
	if c.Channel == store.ChannelBrowserDM || c.Channel == "" {
		delivered, pushErr = s.Registry.PushToSender(sender.ID, payload)
	} else {
		delivered, pushErr = s.Registry.PushToOutboundAccount(sender.OutboundAccountID, payload)
	}
	if pushErr != nil {
		slog.Warn("scheduler: push task failed", "sender", sender.ID, "channel", c.Channel, "task", taskID, "err", pushErr)
	}
	if !delivered {
		slog.Warn("scheduler: task pushed to offline sender, will be picked up on pull", "sender", sender.ID, "task", taskID)
	}

	// step o: streak tracker.
	if senderOutboundAccountID := sender.OutboundAccountID; senderOutboundAccountID != uuid.Nil {
		if err := streak.Apply(ctx, s.Store, s.Clock, senderOutboundAccountID, c.Schedule.TimeZone, now); err != nil {
			slog.Error("scheduler: streak apply failed", "outbound_account", senderOutboundAccountID, "err", err)
		}
	}

	// step p: burst group-break scheduling.
	if c.Schedule.PacingMode == store.PacingBurst {
		refreshed, err := s.Store.GetCampaign(ctx, c.ID)
		if err == nil && refreshed.Burst.SentInGroup >= c.Schedule.MessagesPerGroup {
			breakSecs := pacing.GroupBreakSeconds(c.Schedule, s.rand)
			until := now.Add(time.Duration(breakSecs) * time.Second)
			if err := s.Store.SetBurstBreak(ctx, c.ID, until); err != nil {
				slog.Error("scheduler: set burst break", "campaign", c.ID, "err", err)
			}
		}
	}

	// step q: ETA hints. idx is the dispatched sender's offset within
	// senders, which may include offline ones; re-locate it within
	// online since that's the slice emitETAHints walks.
	onlineIdx := idx
	for i, sn := range online {
		if sn.ID == sender.ID {
			onlineIdx = i
			break
		}
	}
	s.emitETAHints(online, onlineIdx, delay)

	return nil
}

// emitETAHints pushes a task:eta hint to every online sender, estimating
// when each will receive its next task. For the sender at slice index i,
// k is its round-robin offset from the position after fromIdx (the
// just-dispatched sender's position), so ETA = delay * (k + 1) and the
// just-dispatched sender waits a full cycle (spec.md §4.6 step q).
func (s *Scheduler) emitETAHints(online []store.Sender, fromIdx, delay int) {
	if s.Registry == nil || len(online) == 0 {
		return
	}
	n := len(online)
	for i, sn := range online {
		k := (i - fromIdx - 1 + n) % n
		eta := delay * (k + 1)
		payload := []byte(`{"event":"task:eta","eta_seconds":` + strconv.Itoa(eta) + `}`)
		if _, err := s.Registry.PushToSender(sn.ID, payload); err != nil {
			slog.Warn("scheduler: eta push failed", "sender", sn.ID, "err", err)
		}
	}
}

func taskPushPayload(t *store.Task) []byte {
	return []byte(`{"event":"task:new","task_id":"` + t.ID.String() + `","target":"` + t.TargetUsername + `"}`)
}
