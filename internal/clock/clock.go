// Package clock provides wall-clock and time-zone-aware calendar queries.
//
// The scheduler needs "current hour in tz" and "midnight in tz" on every
// tick; tests need to pin all three to arbitrary instants. Both needs go
// through this single seam.
package clock

import (
	"fmt"
	"time"
)

// Clock is the time source the scheduler, pacing, and streak packages use
// instead of calling time.Now()/time.LoadLocation() directly.
type Clock interface {
	// Now returns the current wall-clock time in UTC.
	Now() time.Time
	// InTZ converts t into the named time zone.
	InTZ(tz string, t time.Time) (time.Time, error)
	// HourInTZ returns the hour-of-day (0-23) for t in the named time zone.
	HourInTZ(tz string, t time.Time) (int, error)
	// MidnightInTZ returns the start of t's calendar day in the named time zone.
	MidnightInTZ(tz string, t time.Time) (time.Time, error)
}

// System is the real clock, backed by time.Now and the IANA tzdata the Go
// runtime ships with.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

func (System) InTZ(tz string, t time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("clock: load location %q: %w", tz, err)
	}
	return t.In(loc), nil
}

func (s System) HourInTZ(tz string, t time.Time) (int, error) {
	local, err := s.InTZ(tz, t)
	if err != nil {
		return 0, err
	}
	return local.Hour(), nil
}

func (s System) MidnightInTZ(tz string, t time.Time) (time.Time, error) {
	local, err := s.InTZ(tz, t)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, local.Location()), nil
}

// LocalDay returns a string key identifying the calendar day t falls on in
// tz, suitable as a map key or comparison value ("2026-07-29").
func LocalDay(c Clock, tz string, t time.Time) (string, error) {
	local, err := c.InTZ(tz, t)
	if err != nil {
		return "", err
	}
	return local.Format("2006-01-02"), nil
}

// SecondsSinceMidnight returns how many seconds into its local calendar
// day t falls, for pacing's window-end/now-in-seconds inputs.
func SecondsSinceMidnight(c Clock, tz string, t time.Time) (int, error) {
	local, err := c.InTZ(tz, t)
	if err != nil {
		return 0, err
	}
	return local.Hour()*3600 + local.Minute()*60 + local.Second(), nil
}
