package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/attison/penance/internal/metrics"
	"github.com/attison/penance/internal/storage"
	"github.com/rs/zerolog"
)

const (
	// DefaultConversionRate is the number of activity units that offset
	// one minute of tracked usage when no rate has been configured.
	DefaultConversionRate = 5

	// DefaultActivityLabel names the activity unit until the user picks one.
	DefaultActivityLabel = "Pushups"
)

// Config holds ledger defaults sourced from configuration.
type Config struct {
	ConversionRate int64
	ActivityLabel  string
}

// Snapshot is the result of one recompute: the totals written to storage
// and the balance derived from them, alongside the balance that was cached
// before the recompute ran.
type Snapshot struct {
	Totals          storage.Totals
	Balance         int64
	PreviousBalance int64
}

// Ledger owns the recompute-from-raw-history discipline: every derived
// value is recalculated from the per-day records on each mutation, so a
// concurrent writer in the other process can never leave the caches
// permanently wrong. Constructed explicitly and handed to whichever entry
// point needs it.
type Ledger struct {
	store    storage.LedgerStore
	settings storage.SettingsStore
	config   Config
	clock    Clock
	logger   zerolog.Logger

	// Serializes mutate-then-recompute sequences within this process.
	// Cross-process ordering is not locked; recompute makes it moot.
	mu sync.Mutex

	lastMu sync.RWMutex
	last   Snapshot
}

// New creates a ledger over the given stores.
func New(store storage.LedgerStore, settings storage.SettingsStore, cfg Config, clock Clock, logger zerolog.Logger) *Ledger {
	if clock == nil {
		clock = RealClock{}
	}
	if cfg.ConversionRate <= 0 {
		cfg.ConversionRate = DefaultConversionRate
	}
	if cfg.ActivityLabel == "" {
		cfg.ActivityLabel = DefaultActivityLabel
	}
	return &Ledger{
		store:    store,
		settings: settings,
		config:   cfg,
		clock:    clock,
		logger:   logger.With().Str("component", "ledger").Logger(),
	}
}

// ComputeBalance derives the minute balance from a totals snapshot. Floor
// division: partial conversion units earn nothing. A non-positive rate is
// historical "unset" data and resolves to the default.
func ComputeBalance(totals storage.Totals, rate int64) int64 {
	if rate <= 0 {
		rate = DefaultConversionRate
	}
	return totals.AllTimeActivity/rate - totals.AllTimeUsage
}

// ConversionRate resolves the active conversion rate: stored value when
// present and positive, configured default otherwise. The default is
// persisted on first resolution so both processes agree afterward.
func (l *Ledger) ConversionRate(ctx context.Context) int64 {
	rate, err := l.settings.GetConversionRate(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		if err := l.settings.SetConversionRate(ctx, l.config.ConversionRate); err != nil {
			l.logger.Warn().Err(err).Msg("Failed to persist default conversion rate")
		}
		return l.config.ConversionRate
	}
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to read conversion rate, using default")
		return l.config.ConversionRate
	}
	if rate <= 0 {
		return DefaultConversionRate
	}
	return rate
}

// ActivityLabel resolves the activity-unit label, persisting the default
// on first use.
func (l *Ledger) ActivityLabel(ctx context.Context) string {
	label, err := l.settings.GetActivityLabel(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		if err := l.settings.SetActivityLabel(ctx, l.config.ActivityLabel); err != nil {
			l.logger.Warn().Err(err).Msg("Failed to persist default activity label")
		}
		return l.config.ActivityLabel
	}
	if err != nil || label == "" {
		return l.config.ActivityLabel
	}
	return label
}

// StartDate returns the tracking start date, initializing it to now on
// first read.
func (l *Ledger) StartDate(ctx context.Context) time.Time {
	start, err := l.settings.GetStartDate(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		now := l.clock.Now()
		if err := l.settings.SetStartDate(ctx, now); err != nil {
			l.logger.Warn().Err(err).Msg("Failed to persist start date")
		}
		return now
	}
	if err != nil {
		return l.clock.Now()
	}
	return start
}

// Recompute scans every daily record once and replaces the Totals
// snapshot, the cached balance, and the year epoch. Idempotent: with no
// intervening mutation a second call produces identical results.
func (l *Ledger) Recompute(ctx context.Context) (Snapshot, error) {
	started := time.Now()
	now := l.clock.Now()

	l.checkYearRollover(ctx, now.Year())

	previous, err := l.store.GetBalance(ctx)
	if err != nil {
		return l.LastKnown(), fmt.Errorf("read cached balance: %w", err)
	}

	entries, err := l.store.ScanDays(ctx)
	if err != nil {
		return l.LastKnown(), fmt.Errorf("scan daily records: %w", err)
	}

	totals := l.accumulate(entries, now)

	if err := l.store.ReplaceTotals(ctx, totals); err != nil {
		return l.LastKnown(), fmt.Errorf("replace totals: %w", err)
	}

	balance := ComputeBalance(totals, l.ConversionRate(ctx))
	if err := l.store.SetBalance(ctx, balance); err != nil {
		return l.LastKnown(), fmt.Errorf("cache balance: %w", err)
	}

	snapshot := Snapshot{Totals: totals, Balance: balance, PreviousBalance: previous}
	l.setLastKnown(snapshot)

	metrics.RecomputesTotal.Inc()
	metrics.RecomputeDuration.Observe(time.Since(started).Seconds())
	metrics.BalanceMinutes.Set(float64(balance))

	l.logger.Debug().
		Int("days", len(entries)).
		Int64("balance", balance).
		Int64("previous_balance", previous).
		Msg("Recomputed totals")

	return snapshot, nil
}

// accumulate folds raw daily records into all-time, year-to-date, and
// month-to-date buckets relative to now.
func (l *Ledger) accumulate(entries []storage.DayEntry, now time.Time) storage.Totals {
	var totals storage.Totals
	year, month := now.Year(), now.Month()

	for _, entry := range entries {
		totals.AllTimeActivity += entry.Record.ActivityCount
		totals.AllTimeUsage += entry.Record.UsageMinutes

		date, err := storage.ParseDateKey(entry.Date)
		if err != nil {
			l.logger.Warn().Str("date", entry.Date).Msg("Skipping record with unparseable date key")
			continue
		}
		if date.Year() != year {
			continue
		}
		totals.YearActivity += entry.Record.ActivityCount
		totals.YearUsage += entry.Record.UsageMinutes

		if date.Month() == month {
			totals.MonthActivity += entry.Record.ActivityCount
			totals.MonthUsage += entry.Record.UsageMinutes
		}
	}
	return totals
}

// checkYearRollover records the year change explicitly. Correctness of the
// year buckets does not depend on it; recompute rebuckets from raw dates.
func (l *Ledger) checkYearRollover(ctx context.Context, year int) {
	epoch, err := l.store.GetYearEpoch(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		if err := l.store.SetYearEpoch(ctx, year); err != nil {
			l.logger.Warn().Err(err).Msg("Failed to initialize year epoch")
		}
		return
	}
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to read year epoch")
		return
	}
	if epoch != year {
		l.logger.Info().Int("from", epoch).Int("to", year).Msg("Year rollover detected")
		if err := l.store.SetYearEpoch(ctx, year); err != nil {
			l.logger.Warn().Err(err).Msg("Failed to advance year epoch")
		}
	}
}

// AddActivity records delta activity units for date and recomputes.
func (l *Ledger) AddActivity(ctx context.Context, date string, delta int64) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.AddActivity(ctx, date, delta); err != nil {
		return l.LastKnown(), fmt.Errorf("add activity: %w", err)
	}
	metrics.ActivityUnitsRecorded.Add(float64(delta))
	return l.Recompute(ctx)
}

// ApplyUsageTotal overwrites the usage-minutes total for date and
// recomputes. The overwrite is monotonic per day: a value lower than the
// stored one is an out-of-order or duplicate signal and is not applied
// (the snapshot is still refreshed). A later, larger total repairs any
// gap from missed signals.
func (l *Ledger) ApplyUsageTotal(ctx context.Context, date string, minutes int64) (Snapshot, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.store.GetDay(ctx, date)
	if err != nil {
		return l.LastKnown(), false, fmt.Errorf("read day record: %w", err)
	}
	if minutes <= current.UsageMinutes {
		l.logger.Debug().
			Str("date", date).
			Int64("minutes", minutes).
			Int64("stored", current.UsageMinutes).
			Msg("Ignoring stale usage total")
		snapshot, err := l.Recompute(ctx)
		return snapshot, false, err
	}

	if err := l.store.SetUsageMinutes(ctx, date, minutes); err != nil {
		return l.LastKnown(), false, fmt.Errorf("set usage minutes: %w", err)
	}
	snapshot, err := l.Recompute(ctx)
	return snapshot, true, err
}

// Day returns the record for a single date, zero-valued when unknown.
func (l *Ledger) Day(ctx context.Context, date string) (storage.DayRecord, error) {
	return l.store.GetDay(ctx, date)
}

// WeekData returns seven records for the week containing now minus
// weekOffset weeks, Monday first.
func (l *Ledger) WeekData(ctx context.Context, weekOffset int) ([]storage.DayEntry, error) {
	now := l.clock.Now().AddDate(0, 0, -7*weekOffset)

	// Walk back to Monday.
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
		AddDate(0, 0, -(weekday - 1))

	week := make([]storage.DayEntry, 0, 7)
	for i := 0; i < 7; i++ {
		date := storage.DateKey(monday.AddDate(0, 0, i))
		record, err := l.store.GetDay(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("read day %s: %w", date, err)
		}
		week = append(week, storage.DayEntry{Date: date, Record: record})
	}
	return week, nil
}

// Reset clears all history and derived caches, then recomputes so the
// cached snapshot reflects the empty ledger.
func (l *Ledger) Reset(ctx context.Context) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Reset(ctx); err != nil {
		return l.LastKnown(), fmt.Errorf("reset ledger: %w", err)
	}
	return l.Recompute(ctx)
}

// LastKnown returns the most recent successful snapshot. Serves reads
// when storage is unavailable; callers get "balance appears unchanged"
// rather than an error.
func (l *Ledger) LastKnown() Snapshot {
	l.lastMu.RLock()
	defer l.lastMu.RUnlock()
	return l.last
}

func (l *Ledger) setLastKnown(snapshot Snapshot) {
	l.lastMu.Lock()
	defer l.lastMu.Unlock()
	l.last = snapshot
}
