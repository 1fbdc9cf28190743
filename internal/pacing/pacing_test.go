package pacing

import (
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

func smoothSchedule() store.Schedule {
	return store.Schedule{
		ActiveHoursStart: 9,
		ActiveHoursEnd:   17,
		PacingMode:       store.PacingSmooth,
		DailyCapPerSender: 50,
	}
}

func TestDelayAppliesFloor(t *testing.T) {
	sched := smoothSchedule()
	sched.DailyCapPerSender = 1000 // large N -> tiny base delay
	in := Input{
		Schedule:              sched,
		OnlineSenderCount:     1,
		SentTodayTotal:        0,
		NowSecondsLocal:       16*3600 + 3500,
		WindowEndSecondsLocal: 17 * 3600,
		DisableJitter:         true,
	}
	got := Delay(in)
	if got != minDelaySeconds {
		t.Fatalf("Delay() = %d, want floor %d", got, minDelaySeconds)
	}
}

func TestDelayAppliesCeiling(t *testing.T) {
	in := Input{
		Schedule:              smoothSchedule(),
		OnlineSenderCount:     1,
		SentTodayTotal:        49,             // one message left: base = 1800/1, above the full-window pace
		NowSecondsLocal:       16*3600 + 3500, // almost at window end: remainingSeconds floors to 1800
		WindowEndSecondsLocal: 17 * 3600,
		DisableJitter:         true,
	}
	got := Delay(in)
	ceiling := int(fullWindowPace(smoothSchedule(), 50) + 0.5)
	if got != ceiling {
		t.Fatalf("Delay() = %d, want ceiling %d", got, ceiling)
	}
}

func TestDelayTestModeForces30s(t *testing.T) {
	in := Input{Schedule: smoothSchedule(), TestMode: true, SentTodayTotal: 0}
	if got := Delay(in); got != 30 {
		t.Fatalf("Delay() = %d, want 30", got)
	}
}

func TestBurstDelayWithinRange(t *testing.T) {
	sched := store.Schedule{
		ActiveHoursStart: 0, ActiveHoursEnd: 24,
		PacingMode:      store.PacingBurst,
		MinDelaySeconds: 10, MaxDelaySeconds: 20,
	}
	for i := 0; i < 50; i++ {
		got := Delay(Input{Schedule: sched})
		if got < 10 || got > 20 {
			t.Fatalf("burst Delay() = %d, want in [10,20]", got)
		}
	}
}

func TestGroupBreakSecondsWithinRange(t *testing.T) {
	sched := store.Schedule{MinGroupBreakSeconds: 60, MaxGroupBreakSeconds: 120}
	for i := 0; i < 50; i++ {
		got := GroupBreakSeconds(sched, nil)
		if got < 60 || got > 120 {
			t.Fatalf("GroupBreakSeconds() = %d, want in [60,120]", got)
		}
	}
}
