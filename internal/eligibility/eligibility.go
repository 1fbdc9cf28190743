// Package eligibility implements the Eligibility Filter (spec.md §4.3):
// the ordered ineligibility checks that decide whether a candidate
// sender may be assigned the next lead in a campaign.
package eligibility

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// Reason names why a sender failed the filter. The zero value means
// eligible.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonOffline           Reason = "sender_offline"
	ReasonRestricted        Reason = "sender_restricted"
	ReasonResting           Reason = "outbound_account_resting"
	ReasonWarmupCapZero     Reason = "warmup_cap_zero"
	ReasonWarmupCapReached  Reason = "warmup_cap_reached"
	ReasonCampaignCapReached Reason = "campaign_daily_cap_reached"
	ReasonTaskInFlight      Reason = "task_already_in_flight"
)

const defaultSenderDailyLimit = 50

// Deps is the minimal store surface the filter needs.
type Deps struct {
	Accounts store.OutboundAccountStore
	Tasks    store.TaskStore
	Leads    store.CampaignLeadStore
	Clock    clock.Clock
}

// Check evaluates the ordered rules against one candidate sender. When
// testMode is true (because some online sender on the campaign has
// TestMode set), checks 2-4 are skipped per spec.md §4.3's exception;
// check 5 (task already in flight) always applies.
func Check(ctx context.Context, deps Deps, campaign store.Campaign, sender store.Sender, testMode bool) (Reason, error) {
	now := deps.Clock.Now()

	// A restriction must hold through T + 24h regardless of what Status
	// says elsewhere — a reconnect (auth) is not allowed to shortcut it
	// (spec.md §8).
	if sender.RestrictedUntil != nil && sender.RestrictedUntil.After(now) {
		return ReasonRestricted, nil
	}

	if sender.Status != store.SenderOnline {
		return ReasonOffline, nil
	}

	if !testMode {
		account, err := deps.Accounts.GetOutboundAccount(ctx, sender.OutboundAccountID)
		if err != nil {
			return "", err
		}

		tz := campaign.Schedule.TimeZone
		midnight, err := deps.Clock.MidnightInTZ(tz, now)
		if err != nil {
			return "", err
		}

		if account.RestUntil != nil && account.RestUntil.After(midnight) {
			return ReasonResting, nil
		}

		if account.Status == store.OutboundAccountWarming && account.Warmup != nil {
			day := warmupDay(account.Warmup.StartDate, now)
			cap, ok := account.Warmup.CapForDay(day)
			if !ok || cap == 0 {
				return ReasonWarmupCapZero, nil
			}
			sentToday, err := deps.Accounts.CountSendsTodayAllCampaigns(ctx, account.ID, midnight)
			if err != nil {
				return "", err
			}
			if sentToday >= cap {
				return ReasonWarmupCapReached, nil
			}
		}

		limit := sender.DailyLimit
		if limit <= 0 {
			limit = defaultSenderDailyLimit
		}
		sentInCampaign, err := deps.Leads.CountByCampaignAndSenderToday(ctx, campaign.ID, sender.ID, midnight)
		if err != nil {
			return "", err
		}
		if sentInCampaign >= limit {
			return ReasonCampaignCapReached, nil
		}
	}

	inFlight, err := deps.Tasks.ExistsActiveForSenderAndCampaign(ctx, sender.ID, campaign.ID)
	if err != nil {
		return "", err
	}
	if inFlight {
		return ReasonTaskInFlight, nil
	}

	return ReasonNone, nil
}

// AnyTestMode reports whether any online sender in senders has TestMode
// set, which triggers the campaign-wide test-mode override.
func AnyTestMode(senders []store.Sender) bool {
	for _, s := range senders {
		if s.Status == store.SenderOnline && s.TestMode {
			return true
		}
	}
	return false
}

// warmupDay computes floor((now - start)/24h) + 1, spec.md §4.3 item 3.
func warmupDay(start, now time.Time) int {
	elapsed := now.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	return int(elapsed/(24*time.Hour)) + 1
}

// SelectRoundRobin walks senders starting at (lastIndex+1) mod len(senders)
// and returns the first eligible one (spec.md §4.6 step i). ok is false if
// none are eligible after a full loop.
func SelectRoundRobin(ctx context.Context, deps Deps, campaign store.Campaign, senders []store.Sender, lastIndex int, testMode bool) (sender store.Sender, index int, ok bool, err error) {
	n := len(senders)
	if n == 0 {
		return store.Sender{}, 0, false, nil
	}
	start := (lastIndex + 1) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		reason, err := Check(ctx, deps, campaign, senders[idx], testMode)
		if err != nil {
			return store.Sender{}, 0, false, err
		}
		if reason == ReasonNone {
			return senders[idx], idx, true, nil
		}
	}
	return store.Sender{}, 0, false, nil
}
