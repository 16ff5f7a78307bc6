package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
// For settings it doubles as the explicit "unset" marker: a stored zero
// and an absent key are distinguishable.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface. Both the foreground server
// and the one-shot background event process open the same namespace; every
// mutation must be durable before the call returns.
type Store interface {
	Close() error
	Ledger() LedgerStore
	Settings() SettingsStore
}

// LedgerStore manages the per-day history and the derived caches.
//
// Activity counts and usage minutes for the same date live under distinct
// keys so concurrent writers touching different fields never clobber each
// other. Accumulating writes (AddActivity) are a single atomic
// read-modify-write inside the backend.
type LedgerStore interface {
	// AddActivity adds delta (>= 0) activity units to the record for date,
	// creating the record if absent.
	AddActivity(ctx context.Context, date string, delta int64) error
	// SetUsageMinutes overwrites the usage-minutes field for date with an
	// absolute value.
	SetUsageMinutes(ctx context.Context, date string, minutes int64) error
	// GetDay returns the record for date, zero-valued when the date was
	// never written.
	GetDay(ctx context.Context, date string) (DayRecord, error)
	// ScanDays returns every recorded day. Fresh scan on each call, order
	// unspecified.
	ScanDays(ctx context.Context) ([]DayEntry, error)

	// ReplaceTotals overwrites the cached totals snapshot wholesale.
	ReplaceTotals(ctx context.Context, totals Totals) error
	GetTotals(ctx context.Context) (Totals, error)

	SetBalance(ctx context.Context, balance int64) error
	GetBalance(ctx context.Context) (int64, error)

	GetYearEpoch(ctx context.Context) (int, error)
	SetYearEpoch(ctx context.Context, year int) error

	// Reset clears all history and derived caches. Settings survive.
	Reset(ctx context.Context) error
}

// SettingsStore manages user configuration and process markers.
// Getters return ErrNotFound for keys never written; defaulting is the
// caller's concern.
type SettingsStore interface {
	GetConversionRate(ctx context.Context) (int64, error)
	SetConversionRate(ctx context.Context, rate int64) error

	GetActivityLabel(ctx context.Context) (string, error)
	SetActivityLabel(ctx context.Context, label string) error

	GetStartDate(ctx context.Context) (time.Time, error)
	SetStartDate(ctx context.Context, start time.Time) error

	GetSetupDone(ctx context.Context) (bool, error)
	SetSetupDone(ctx context.Context, done bool) error

	// Last day (date key) for which a usage-threshold signal was applied.
	// Used by the ingestor to detect a local-midnight boundary between
	// signals.
	GetLastProcessedDay(ctx context.Context) (string, error)
	SetLastProcessedDay(ctx context.Context, date string) error
}
