// Package streak implements the Streak Tracker (spec.md §4.5): the
// consecutive-sending-day counter and mandatory-rest-day rule applied to
// an outbound account after each successful lease.
package streak

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

const (
	restDaysAtFive = 2 * 24 * time.Hour
	restDaysAtTen  = 3 * 24 * time.Hour
)

// Apply runs once per successful lease, for the outbound account behind
// the chosen sender. Idempotent per (outbound_account, calendar-day-local)
// via the guarded UpdateStreak write.
func Apply(ctx context.Context, accounts store.OutboundAccountStore, c clock.Clock, outboundAccountID uuid.UUID, tz string, now time.Time) error {
	account, err := accounts.GetOutboundAccount(ctx, outboundAccountID)
	if err != nil {
		return err
	}

	today, err := c.MidnightInTZ(tz, now)
	if err != nil {
		return err
	}

	if account.StreakLastSendDate != nil {
		last, err := c.MidnightInTZ(tz, *account.StreakLastSendDate)
		if err != nil {
			return err
		}
		if last.Equal(today) {
			// Step 1: already recorded today. No-op.
			return nil
		}
	}

	newStreak := nextStreak(account, today, c, tz)

	var restUntil *time.Time
	switch {
	case newStreak == 5:
		u := today.Add(restDaysAtFive)
		restUntil = &u
	case newStreak >= 10:
		u := today.Add(restDaysAtTen)
		restUntil = &u
		newStreak = 0
	}

	return accounts.UpdateStreak(ctx, outboundAccountID, func(a *store.OutboundAccount) {
		a.StreakDays = newStreak
		t := now
		a.StreakLastSendDate = &t
		a.RestUntil = restUntil
	})
}

func nextStreak(account *store.OutboundAccount, today time.Time, c clock.Clock, tz string) int {
	// Step 2: rest period has expired -> streak resumes, +1.
	if account.RestUntil != nil && !account.RestUntil.After(today) {
		return account.StreakDays + 1
	}

	// Step 3: last send was yesterday -> streak continues, +1.
	if account.StreakLastSendDate != nil {
		yesterday := today.Add(-24 * time.Hour)
		last, err := c.MidnightInTZ(tz, *account.StreakLastSendDate)
		if err == nil && last.Equal(yesterday) {
			return account.StreakDays + 1
		}
	}

	// Step 4: gap in sending (or first ever send) -> streak resets to 1.
	return 1
}
