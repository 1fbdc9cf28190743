package store

import "errors"

// Sentinel errors. Input validation at the HTTP boundary should reject
// these before they ever reach the core (spec.md §7); the core itself
// assumes validated shapes and only returns them defensively.
var (
	errInvalidWindow     = errors.New("store: active_hours_end must be greater than active_hours_start")
	errInvalidDelayRange = errors.New("store: min_delay_seconds must not exceed max_delay_seconds")
	errNegativeLimit     = errors.New("store: daily_cap_per_sender must not be negative")

	// ErrNotFound is returned by single-entity lookups that find nothing.
	ErrNotFound = errors.New("store: not found")
	// ErrNoLease is returned by Acquire when no pending lead is available.
	ErrNoLease = errors.New("store: no pending campaign lead")
	// ErrConflict is returned when a conditional update's predicate no
	// longer matches (another writer already moved the row).
	ErrConflict = errors.New("store: conditional update conflict")
)
