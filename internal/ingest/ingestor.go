package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/attison/penance/internal/ledger"
	"github.com/attison/penance/internal/metrics"
	"github.com/attison/penance/internal/notify"
	"github.com/attison/penance/internal/storage"
	"github.com/rs/zerolog"
)

// UsageIngestor turns usage-threshold signals into ledger mutations. A
// signal is an opaque identifier carrying the cumulative minute count for
// the current day somewhere in its digits. Signals may arrive out of
// order, duplicated, or after a gap spanning local midnight; the
// monotonic per-day overwrite in the ledger absorbs the first two, and
// the last-processed-day marker detects the third.
type UsageIngestor struct {
	ledger   *ledger.Ledger
	settings storage.SettingsStore
	notifier *notify.Notifier
	clock    ledger.Clock
	logger   zerolog.Logger

	// One signal at a time; the OS can deliver two threshold events
	// nearly simultaneously to the same process.
	mu sync.Mutex
}

// NewUsageIngestor creates the signal ingestor.
func NewUsageIngestor(l *ledger.Ledger, settings storage.SettingsStore, notifier *notify.Notifier, clock ledger.Clock, logger zerolog.Logger) *UsageIngestor {
	if clock == nil {
		clock = ledger.RealClock{}
	}
	return &UsageIngestor{
		ledger:   l,
		settings: settings,
		notifier: notifier,
		clock:    clock,
		logger:   logger.With().Str("component", "ingest").Logger(),
	}
}

// HandleSignal processes one usage-threshold signal. An identifier with
// no parseable minute count is dropped without error; the signal source
// is outside our control and a malformed identifier must never crash the
// background process.
func (u *UsageIngestor) HandleSignal(ctx context.Context, identifier string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	minutes, err := parseThreshold(identifier)
	if err != nil {
		u.logger.Warn().Str("identifier", identifier).Msg("Dropping signal with no parseable threshold")
		metrics.SignalsIngested.WithLabelValues("invalid").Inc()
		return nil
	}

	today := storage.DateKey(u.clock.Now())
	u.markDayProcessed(ctx, today)

	snapshot, applied, err := u.ledger.ApplyUsageTotal(ctx, today, minutes)
	if err != nil {
		metrics.SignalsIngested.WithLabelValues("error").Inc()
		return fmt.Errorf("apply usage total: %w", err)
	}
	if !applied {
		metrics.SignalsIngested.WithLabelValues("stale").Inc()
		return nil
	}
	metrics.SignalsIngested.WithLabelValues("applied").Inc()

	u.logger.Info().
		Str("date", today).
		Int64("minutes", minutes).
		Int64("balance", snapshot.Balance).
		Msg("Applied usage signal")

	u.notifier.Observe(ctx, snapshot.PreviousBalance, snapshot.Balance)
	return nil
}

// markDayProcessed records today as the most recent day that received a
// signal. When the marker differs from today a midnight boundary was
// crossed since the previous signal; with absolute per-day totals there
// is no running counter to clear, the new day simply starts at zero.
func (u *UsageIngestor) markDayProcessed(ctx context.Context, today string) {
	last, err := u.settings.GetLastProcessedDay(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		u.logger.Warn().Err(err).Msg("Failed to read last processed day")
	}
	if last == today {
		return
	}
	if last != "" {
		u.logger.Debug().Str("from", last).Str("to", today).Msg("Day boundary crossed")
	}
	if err := u.settings.SetLastProcessedDay(ctx, today); err != nil {
		u.logger.Warn().Err(err).Msg("Failed to update last processed day")
	}
}

// parseThreshold extracts the minute count from a signal identifier by
// concatenating its digit runes. "min42" and "threshold.42.reached" both
// parse to 42; an identifier with no digits is an error.
func parseThreshold(identifier string) (int64, error) {
	digits := make([]rune, 0, len(identifier))
	for _, r := range identifier {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) == 0 {
		return 0, fmt.Errorf("no digits in identifier %q", identifier)
	}
	minutes, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse threshold from %q: %w", identifier, err)
	}
	return minutes, nil
}

// ActivityIngestor records completed activity units against today's
// record.
type ActivityIngestor struct {
	ledger   *ledger.Ledger
	notifier *notify.Notifier
	clock    ledger.Clock
	logger   zerolog.Logger
}

// NewActivityIngestor creates the activity ingestor.
func NewActivityIngestor(l *ledger.Ledger, notifier *notify.Notifier, clock ledger.Clock, logger zerolog.Logger) *ActivityIngestor {
	if clock == nil {
		clock = ledger.RealClock{}
	}
	return &ActivityIngestor{
		ledger:   l,
		notifier: notifier,
		clock:    clock,
		logger:   logger.With().Str("component", "ingest").Logger(),
	}
}

// Record adds count (>= 0) activity units to today's record and returns
// the refreshed snapshot.
func (a *ActivityIngestor) Record(ctx context.Context, count int64) (ledger.Snapshot, error) {
	if count < 0 {
		return a.ledger.LastKnown(), fmt.Errorf("activity count must be non-negative, got %d", count)
	}

	today := storage.DateKey(a.clock.Now())
	snapshot, err := a.ledger.AddActivity(ctx, today, count)
	if err != nil {
		return snapshot, fmt.Errorf("record activity: %w", err)
	}

	a.logger.Info().
		Str("date", today).
		Int64("count", count).
		Int64("balance", snapshot.Balance).
		Msg("Recorded activity")

	a.notifier.Observe(ctx, snapshot.PreviousBalance, snapshot.Balance)
	return snapshot, nil
}
