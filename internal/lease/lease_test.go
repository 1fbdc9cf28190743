package lease

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/store/memstore"
)

func TestAcquireOldestPendingFIFO(t *testing.T) {
	s := memstore.New()
	campaignID := uuid.New()
	senderID := uuid.New()

	older := store.CampaignLead{ID: uuid.New(), CampaignID: campaignID, Status: store.LeadPending, CreatedAt: time.Now().Add(-time.Hour)}
	newer := store.CampaignLead{ID: uuid.New(), CampaignID: campaignID, Status: store.LeadPending, CreatedAt: time.Now()}
	s.PutCampaignLead(&older)
	s.PutCampaignLead(&newer)

	m := New(s, s)
	got, err := m.Acquire(context.Background(), campaignID, senderID, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != older.ID {
		t.Fatalf("Acquire() picked %v, want oldest %v", got, older.ID)
	}
	if got.Status != store.LeadQueued || got.SenderID == nil || *got.SenderID != senderID {
		t.Fatalf("Acquire() did not assign queued/sender correctly: %+v", got)
	}
}

func TestAcquireReturnsNilWhenNoneAvailable(t *testing.T) {
	s := memstore.New()
	m := New(s, s)
	got, err := m.Acquire(context.Background(), uuid.New(), uuid.New(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("Acquire() = %v, want nil", got)
	}
}

func TestReclaimStaleLeasesResetsAndAdjustsStats(t *testing.T) {
	s := memstore.New()
	campaignID := uuid.New()
	s.PutCampaign(&store.Campaign{ID: campaignID, Status: store.CampaignActive, Mode: store.CampaignModeAuto})

	staleLead := store.CampaignLead{
		ID: uuid.New(), CampaignID: campaignID, Status: store.LeadQueued,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	qt := time.Now().Add(-10 * time.Minute)
	staleLead.QueuedAt = &qt
	s.PutCampaignLead(&staleLead)

	m := New(s, s)
	n, err := m.ReclaimStaleLeases(context.Background(), s, campaignID, store.CampaignModeAuto, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("reclaimed = %d, want 1", n)
	}
	got, _ := s.GetLead(context.Background(), staleLead.ID)
	if got.Status != store.LeadPending || got.SenderID != nil {
		t.Fatalf("lead not reset: %+v", got)
	}
	c, _ := s.GetCampaign(context.Background(), campaignID)
	if c.Stats.Pending != 1 || c.Stats.Queued != -1 {
		t.Fatalf("stats not adjusted: %+v", c.Stats)
	}
}

func TestReclaimStaleTasksResetsLeadToPending(t *testing.T) {
	s := memstore.New()
	campaignID := uuid.New()
	s.PutCampaign(&store.Campaign{ID: campaignID, Status: store.CampaignActive})

	lead := store.CampaignLead{ID: uuid.New(), CampaignID: campaignID, Status: store.LeadQueued, CreatedAt: time.Now()}
	s.PutCampaignLead(&lead)

	task := store.Task{
		ID: uuid.New(), CampaignID: campaignID, CampaignLeadID: lead.ID,
		Status: store.TaskInProgress, CreatedAt: time.Now().Add(-5 * time.Minute),
	}
	s.PutTask(&task)

	m := New(s, s)
	n, err := m.ReclaimStaleTasks(context.Background(), s, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("reclaimed tasks = %d, want 1", n)
	}
	gotLead, _ := s.GetLead(context.Background(), lead.ID)
	if gotLead.Status != store.LeadPending {
		t.Fatalf("lead status = %s, want pending", gotLead.Status)
	}
	gotTask, _ := s.GetTask(context.Background(), task.ID)
	if gotTask.Status != store.TaskFailed {
		t.Fatalf("task status = %s, want failed", gotTask.Status)
	}
}
