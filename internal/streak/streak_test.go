package streak

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/store/memstore"
)

const tz = "UTC"

func newAccount(id uuid.UUID, streak int, lastSend *time.Time, restUntil *time.Time) *store.OutboundAccount {
	return &store.OutboundAccount{
		ID:                 id,
		Status:             store.OutboundAccountReady,
		StreakDays:         streak,
		StreakLastSendDate: lastSend,
		RestUntil:          restUntil,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
}

func TestApplyFirstSendSetsStreakToOne(t *testing.T) {
	s := memstore.New()
	id := uuid.New()
	s.PutOutboundAccount(newAccount(id, 0, nil, nil))

	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	if err := Apply(context.Background(), s, clock.System{}, id, tz, now); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetOutboundAccount(context.Background(), id)
	if got.StreakDays != 1 {
		t.Fatalf("StreakDays = %d, want 1", got.StreakDays)
	}
}

func TestApplySameDayIsNoOp(t *testing.T) {
	s := memstore.New()
	id := uuid.New()
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	already := time.Date(2026, 1, 10, 6, 0, 0, 0, time.UTC)
	s.PutOutboundAccount(newAccount(id, 3, &already, nil))

	if err := Apply(context.Background(), s, clock.System{}, id, tz, now); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetOutboundAccount(context.Background(), id)
	if got.StreakDays != 3 {
		t.Fatalf("StreakDays = %d, want unchanged 3", got.StreakDays)
	}
}

func TestApplyConsecutiveDayIncrements(t *testing.T) {
	s := memstore.New()
	id := uuid.New()
	yesterday := time.Date(2026, 1, 9, 8, 0, 0, 0, time.UTC)
	s.PutOutboundAccount(newAccount(id, 4, &yesterday, nil))

	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	if err := Apply(context.Background(), s, clock.System{}, id, tz, now); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetOutboundAccount(context.Background(), id)
	if got.StreakDays != 5 {
		t.Fatalf("StreakDays = %d, want 5", got.StreakDays)
	}
	if got.RestUntil == nil {
		t.Fatal("expected RestUntil to be set at streak 5")
	}
}

func TestApplyGapResetsStreak(t *testing.T) {
	s := memstore.New()
	id := uuid.New()
	twoDaysAgo := time.Date(2026, 1, 8, 8, 0, 0, 0, time.UTC)
	s.PutOutboundAccount(newAccount(id, 4, &twoDaysAgo, nil))

	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	if err := Apply(context.Background(), s, clock.System{}, id, tz, now); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetOutboundAccount(context.Background(), id)
	if got.StreakDays != 1 {
		t.Fatalf("StreakDays = %d, want reset to 1", got.StreakDays)
	}
}

func TestApplyStreakTenResetsToZeroWithLongerRest(t *testing.T) {
	s := memstore.New()
	id := uuid.New()
	yesterday := time.Date(2026, 1, 9, 8, 0, 0, 0, time.UTC)
	s.PutOutboundAccount(newAccount(id, 9, &yesterday, nil))

	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	if err := Apply(context.Background(), s, clock.System{}, id, tz, now); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetOutboundAccount(context.Background(), id)
	if got.StreakDays != 0 {
		t.Fatalf("StreakDays = %d, want reset to 0 at streak 10", got.StreakDays)
	}
	if got.RestUntil == nil {
		t.Fatal("expected RestUntil to be set at streak 10")
	}
}

func TestApplyResumesAfterRestExpires(t *testing.T) {
	s := memstore.New()
	id := uuid.New()
	// Last sent 3 days ago (gap), but rest_until expired yesterday -> resumes +1
	lastSend := time.Date(2026, 1, 7, 8, 0, 0, 0, time.UTC)
	restUntil := time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)
	s.PutOutboundAccount(newAccount(id, 5, &lastSend, &restUntil))

	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	if err := Apply(context.Background(), s, clock.System{}, id, tz, now); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetOutboundAccount(context.Background(), id)
	if got.StreakDays != 6 {
		t.Fatalf("StreakDays = %d, want 6 (resumed)", got.StreakDays)
	}
}
