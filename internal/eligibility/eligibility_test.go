package eligibility

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/store/memstore"
)

func newFixture(t *testing.T) (*memstore.Store, Deps, store.Campaign, store.OutboundAccount, store.Sender) {
	t.Helper()
	st := memstore.New()
	accountID := uuid.New()

	outbound := store.OutboundAccount{ID: uuid.New(), AccountID: accountID, Handle: "acct1", Status: store.OutboundAccountReady}
	st.PutOutboundAccount(&outbound)

	sender := store.Sender{ID: uuid.New(), AccountID: accountID, OutboundAccountID: outbound.ID, Status: store.SenderOnline, DailyLimit: 50}
	st.PutSender(&sender)

	campaign := store.Campaign{
		ID: uuid.New(), AccountID: accountID, Status: store.CampaignActive, Mode: store.CampaignModeAuto,
		Schedule: store.Schedule{TimeZone: "UTC", ActiveHoursStart: 0, ActiveHoursEnd: 24, PacingMode: store.PacingSmooth, DailyCapPerSender: 50},
	}
	st.PutCampaign(&campaign)

	deps := Deps{Accounts: st, Tasks: st, Leads: st, Clock: clock.System{}}
	return st, deps, campaign, outbound, sender
}

func TestCheckOfflineSenderIsIneligible(t *testing.T) {
	_, deps, campaign, _, sender := newFixture(t)
	sender.Status = store.SenderOffline

	reason, err := Check(context.Background(), deps, campaign, sender, false)
	if err != nil {
		t.Fatal(err)
	}
	if reason != ReasonOffline {
		t.Fatalf("reason = %q, want %q", reason, ReasonOffline)
	}
}

func TestCheckOnlineEligibleSenderPasses(t *testing.T) {
	_, deps, campaign, _, sender := newFixture(t)

	reason, err := Check(context.Background(), deps, campaign, sender, false)
	if err != nil {
		t.Fatal(err)
	}
	if reason != ReasonNone {
		t.Fatalf("reason = %q, want eligible", reason)
	}
}

func TestCheckRestingAccountIsIneligible(t *testing.T) {
	st, deps, campaign, outbound, sender := newFixture(t)

	future := time.Now().UTC().Add(48 * time.Hour)
	if err := st.UpdateStreak(context.Background(), outbound.ID, func(a *store.OutboundAccount) {
		a.RestUntil = &future
	}); err != nil {
		t.Fatal(err)
	}

	reason, err := Check(context.Background(), deps, campaign, sender, false)
	if err != nil {
		t.Fatal(err)
	}
	if reason != ReasonResting {
		t.Fatalf("reason = %q, want %q", reason, ReasonResting)
	}
}

func TestCheckTestModeSkipsRestAndCapChecks(t *testing.T) {
	st, deps, campaign, outbound, sender := newFixture(t)

	future := time.Now().UTC().Add(48 * time.Hour)
	if err := st.UpdateStreak(context.Background(), outbound.ID, func(a *store.OutboundAccount) {
		a.RestUntil = &future
	}); err != nil {
		t.Fatal(err)
	}

	reason, err := Check(context.Background(), deps, campaign, sender, true)
	if err != nil {
		t.Fatal(err)
	}
	if reason != ReasonNone {
		t.Fatalf("reason = %q, want eligible (test mode skips the rest check)", reason)
	}
}

func TestCheckRestrictedSenderIsIneligibleEvenIfStatusSaysOnline(t *testing.T) {
	_, deps, campaign, _, sender := newFixture(t)
	until := time.Now().UTC().Add(23 * time.Hour)
	sender.Status = store.SenderOnline
	sender.RestrictedUntil = &until

	reason, err := Check(context.Background(), deps, campaign, sender, false)
	if err != nil {
		t.Fatal(err)
	}
	if reason != ReasonRestricted {
		t.Fatalf("reason = %q, want %q (restriction must survive an externally-flipped status)", reason, ReasonRestricted)
	}
}

func TestCheckExpiredRestrictionIsEligible(t *testing.T) {
	_, deps, campaign, _, sender := newFixture(t)
	past := time.Now().UTC().Add(-1 * time.Hour)
	sender.Status = store.SenderOnline
	sender.RestrictedUntil = &past

	reason, err := Check(context.Background(), deps, campaign, sender, false)
	if err != nil {
		t.Fatal(err)
	}
	if reason != ReasonNone {
		t.Fatalf("reason = %q, want eligible once RestrictedUntil has passed", reason)
	}
}

func TestSelectRoundRobinAdvancesPastIneligible(t *testing.T) {
	_, deps, campaign, _, sender1 := newFixture(t)
	sender1.Status = store.SenderOffline

	sender2 := store.Sender{ID: uuid.New(), AccountID: campaign.AccountID, OutboundAccountID: sender1.OutboundAccountID, Status: store.SenderOnline, DailyLimit: 50}

	senders := []store.Sender{sender1, sender2}
	picked, idx, ok, err := SelectRoundRobin(context.Background(), deps, campaign, senders, -1, false)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected an eligible sender")
	}
	if picked.ID != sender2.ID || idx != 1 {
		t.Fatalf("picked sender %v at index %d, want sender2 at index 1", picked.ID, idx)
	}
}

func TestSelectRoundRobinNoneEligible(t *testing.T) {
	_, deps, campaign, _, sender := newFixture(t)
	sender.Status = store.SenderOffline

	_, _, ok, err := SelectRoundRobin(context.Background(), deps, campaign, []store.Sender{sender}, -1, false)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no eligible sender")
	}
}
