package scheduler

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/registry"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/store/memstore"
)

type stubPusher struct{ pushed [][]byte }

func (p *stubPusher) Push(payload []byte) error {
	p.pushed = append(p.pushed, payload)
	return nil
}

func setupBasicCampaign(t *testing.T, st *memstore.Store, now time.Time) (store.Campaign, store.OutboundAccount, store.Sender, store.OutboundLead) {
	t.Helper()
	accountID := uuid.New()
	outboundAccount := store.OutboundAccount{ID: uuid.New(), AccountID: accountID, Status: store.OutboundAccountReady}
	st.PutOutboundAccount(&outboundAccount)

	sender := store.Sender{
		ID: uuid.New(), AccountID: accountID, OutboundAccountID: outboundAccount.ID,
		Status: store.SenderOnline, LastHeartbeat: now, DailyLimit: 50,
	}
	st.PutSender(&sender)

	outboundLead := store.OutboundLead{ID: uuid.New(), AccountID: accountID, Username: "jdoe", DisplayName: "Jane Doe"}
	st.PutOutboundLead(&outboundLead)

	campaign := store.Campaign{
		ID: uuid.New(), AccountID: accountID, Status: store.CampaignActive, Mode: store.CampaignModeAuto,
		Channel:            store.ChannelBrowserDM,
		MessageTemplates:   []string{"Hi {{firstName}}!"},
		OutboundAccountIDs: []uuid.UUID{outboundAccount.ID},
		Schedule: store.Schedule{
			TimeZone: "UTC", ActiveHoursStart: 0, ActiveHoursEnd: 24,
			PacingMode: store.PacingSmooth, DailyCapPerSender: 50,
		},
		UpdatedAt: now,
	}
	st.PutCampaign(&campaign)

	lead := store.CampaignLead{ID: uuid.New(), CampaignID: campaign.ID, OutboundLeadID: outboundLead.ID, Status: store.LeadPending, CreatedAt: now}
	st.PutCampaignLead(&lead)

	return campaign, outboundAccount, sender, outboundLead
}

func TestTickDispatchesOneTaskAndPushesToSender(t *testing.T) {
	st := memstore.New()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	campaign, _, sender, _ := setupBasicCampaign(t, st, now)

	reg := registry.New()
	pusher := &stubPusher{}
	reg.Register(campaign.AccountID, sender.ID, pusher)

	sched := New(st, reg, clock.NewFake(now))
	sched.Tick(context.Background())

	c, _ := st.GetCampaign(context.Background(), campaign.ID)
	if c.Stats.Queued != 1 {
		t.Fatalf("Stats.Queued = %d, want 1", c.Stats.Queued)
	}
	// The sender receives the task:new push and then its task:eta hint.
	if len(pusher.pushed) != 2 {
		t.Fatalf("pushed %d payloads, want 2", len(pusher.pushed))
	}
}

func TestTickSkipsOutsideActiveHours(t *testing.T) {
	st := memstore.New()
	now := time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC) // 3am, outside 9-17
	campaign, _, sender, _ := setupBasicCampaign(t, st, now)
	// override schedule to a narrow window that excludes 3am
	c, _ := st.GetCampaign(context.Background(), campaign.ID)
	c.Schedule.ActiveHoursStart = 9
	c.Schedule.ActiveHoursEnd = 17
	st.PutCampaign(c)

	reg := registry.New()
	reg.Register(campaign.AccountID, sender.ID, &stubPusher{})
	sched := New(st, reg, clock.NewFake(now))
	sched.Tick(context.Background())

	got, _ := st.GetCampaign(context.Background(), campaign.ID)
	if got.Stats.Queued != 0 {
		t.Fatalf("Stats.Queued = %d, want 0 (outside active hours)", got.Stats.Queued)
	}
}

func TestTickCompletesCampaignWhenNoLeadsRemain(t *testing.T) {
	st := memstore.New()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	campaign, _, sender, _ := setupBasicCampaign(t, st, now)

	// Drain the only lead to a terminal state so Acquire finds nothing.
	for _, l := range st.ListCampaignLeadsByCampaign(campaign.ID) {
		ok, err := st.SetTerminal(context.Background(), l.ID, store.LeadPending, store.LeadSkipped, nil)
		if err != nil || !ok {
			t.Fatalf("failed to mark lead terminal: %v ok=%v", err, ok)
		}
	}

	reg := registry.New()
	reg.Register(campaign.AccountID, sender.ID, &stubPusher{})
	sched := New(st, reg, clock.NewFake(now))
	sched.Tick(context.Background())

	got, _ := st.GetCampaign(context.Background(), campaign.ID)
	if got.Status != store.CampaignCompleted {
		t.Fatalf("campaign status = %s, want completed", got.Status)
	}
}

func TestTickRoutesNonBrowserChannelThroughOutboundAccountPusher(t *testing.T) {
	st := memstore.New()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	campaign, outboundAccount, sender, _ := setupBasicCampaign(t, st, now)
	campaign.Channel = store.ChannelDiscord
	st.PutCampaign(&campaign)

	reg := registry.New()
	// Intentionally do not register the sender by ID — a discord-channel
	// campaign must never need a websocket connection to deliver.
	channelPusher := &stubPusher{}
	reg.RegisterChannel(outboundAccount.ID, channelPusher)

	sched := New(st, reg, clock.NewFake(now))
	sched.Tick(context.Background())

	if len(channelPusher.pushed) != 1 {
		t.Fatalf("pushed %d payloads to the discord channel pusher, want 1", len(channelPusher.pushed))
	}
	if reg.IsOnline(sender.ID) {
		t.Fatal("sender should not be registered as a websocket connection")
	}
}

func TestEmitETAHintsUsesOffsetFromDispatchedSender(t *testing.T) {
	accountID := uuid.New()
	online := make([]store.Sender, 4)
	pushers := make([]*stubPusher, 4)
	reg := registry.New()
	for i := range online {
		online[i] = store.Sender{ID: uuid.New(), AccountID: accountID, Status: store.SenderOnline}
		pushers[i] = &stubPusher{}
		reg.Register(accountID, online[i].ID, pushers[i])
	}

	sched := New(memstore.New(), reg, clock.System{})
	const delay = 10
	// Sender at index 2 just dispatched: offsets from the next position
	// are 0,1,2,3 for indices 3,0,1,2 respectively, so ETAs are 10,20,30,40.
	sched.emitETAHints(online, 2, delay)

	want := map[int]int{3: 10, 0: 20, 1: 30, 2: 40}
	for i, p := range pushers {
		if len(p.pushed) != 1 {
			t.Fatalf("sender %d: pushed %d payloads, want 1", i, len(p.pushed))
		}
		wantPayload := `{"event":"task:eta","eta_seconds":` + strconv.Itoa(want[i]) + `}`
		if string(p.pushed[0]) != wantPayload {
			t.Fatalf("sender %d: payload = %s, want %s", i, p.pushed[0], wantPayload)
		}
	}
}
