// Package pacing computes the delay the Scheduler Tick waits between
// sends for a campaign (spec.md §4.2).
package pacing

import (
	"math/rand"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

const (
	minDelaySeconds      = 30
	floorRemainingSecs   = 1800
	jitterFraction       = 0.2
	testModeForcedDelay  = 30
)

// Input bundles everything the calculator needs. nowSecondsLocal and
// windowEndSecondsLocal are seconds-since-local-midnight.
type Input struct {
	Schedule            store.Schedule
	OnlineSenderCount    int
	SentTodayTotal       int
	NowSecondsLocal      int
	WindowEndSecondsLocal int
	TestMode             bool
	// DisableJitter makes Delay deterministic, for stable ETA estimates
	// (spec.md §4.2 "Stability for inspection").
	DisableJitter bool
	// Rand, if set, is used instead of the package default source. Tests
	// supply a seeded one for reproducibility.
	Rand *rand.Rand
}

// Delay returns the number of seconds to wait before the next send.
func Delay(in Input) int {
	if in.TestMode {
		return testModeForcedDelay
	}
	if in.Schedule.PacingMode == store.PacingBurst {
		return burstDelay(in)
	}
	return smoothDelay(in)
}

func smoothDelay(in Input) int {
	onlineSenders := in.OnlineSenderCount
	if onlineSenders < 1 {
		onlineSenders = 1
	}
	n := in.Schedule.DailyCapPerSender * onlineSenders
	if n < 1 {
		n = 1
	}

	remainingMessages := n - in.SentTodayTotal
	if remainingMessages < 1 {
		remainingMessages = 1
	}

	remainingSeconds := in.WindowEndSecondsLocal - in.NowSecondsLocal
	if remainingSeconds < floorRemainingSecs {
		remainingSeconds = floorRemainingSecs
	}

	base := float64(remainingSeconds) / float64(remainingMessages)

	delay := base
	if !in.DisableJitter {
		delay = base * (1 + jitter(in.Rand))
	}

	ceiling := fullWindowPace(in.Schedule, n)
	if delay > ceiling {
		delay = ceiling
	}
	if delay < minDelaySeconds {
		delay = minDelaySeconds
	}
	return int(delay + 0.5)
}

// fullWindowPace is the pace a fresh-start plan would give: the entire
// active window divided evenly across n messages.
func fullWindowPace(sched store.Schedule, n int) float64 {
	windowSeconds := (sched.ActiveHoursEnd - sched.ActiveHoursStart) * 3600
	if n < 1 {
		n = 1
	}
	return float64(windowSeconds) / float64(n)
}

func burstDelay(in Input) int {
	min, max := in.Schedule.MinDelaySeconds, in.Schedule.MaxDelaySeconds
	if max < min {
		max = min
	}
	if in.DisableJitter {
		return (min + max) / 2
	}
	return min + uniformInt(in.Rand, max-min+1)
}

// GroupBreakSeconds returns a uniform group-break duration once
// messages_per_group sends have completed (spec.md §4.2 burst mode,
// §4.6 step p).
func GroupBreakSeconds(sched store.Schedule, r *rand.Rand) int {
	min, max := sched.MinGroupBreakSeconds, sched.MaxGroupBreakSeconds
	if max < min {
		max = min
	}
	return min + uniformInt(r, max-min+1)
}

func jitter(r *rand.Rand) float64 {
	// uniform(-0.2, 0.2)
	return (randFloat(r)*2 - 1) * jitterFraction
}

func randFloat(r *rand.Rand) float64 {
	if r != nil {
		return r.Float64()
	}
	return rand.Float64()
}

func uniformInt(r *rand.Rand, span int) int {
	if span <= 0 {
		return 0
	}
	if r != nil {
		return r.Intn(span)
	}
	return rand.Intn(span)
}
