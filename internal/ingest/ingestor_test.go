package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/attison/penance/internal/ledger"
	"github.com/attison/penance/internal/notify"
	"github.com/attison/penance/internal/storage"
	"github.com/attison/penance/internal/storage/bolt"
	"github.com/rs/zerolog"
)

type recordingSender struct {
	alerts []notify.Alert
}

func (s *recordingSender) Send(ctx context.Context, alert notify.Alert) error {
	s.alerts = append(s.alerts, alert)
	return nil
}

func setupTestIngest(t *testing.T, clock ledger.Clock) (*UsageIngestor, *ActivityIngestor, storage.Store, *recordingSender) {
	t.Helper()

	store, err := bolt.Open(t.TempDir() + "/ingest.bolt")
	if err != nil {
		t.Fatalf("Failed to open bolt store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	l := ledger.New(store.Ledger(), store.Settings(), ledger.Config{}, clock, zerolog.Nop())
	sender := &recordingSender{}
	notifier := notify.NewNotifier(sender, zerolog.Nop())
	usage := NewUsageIngestor(l, store.Settings(), notifier, clock, zerolog.Nop())
	activity := NewActivityIngestor(l, notifier, clock, zerolog.Nop())
	return usage, activity, store, sender
}

func TestParseThreshold(t *testing.T) {
	tests := []struct {
		identifier string
		want       int64
		wantErr    bool
	}{
		{"min42", 42, false},
		{"min5", 5, false},
		{"threshold.120.reached", 120, false},
		{"0", 0, false},
		{"minutes", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			got, err := parseThreshold(tt.identifier)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseThreshold(%q) error = %v, wantErr %v", tt.identifier, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseThreshold(%q) = %d, want %d", tt.identifier, got, tt.want)
			}
		})
	}
}

func TestUsageIngestor_HandleSignal(t *testing.T) {
	clock := &ledger.TestClock{CurrentTime: time.Date(2026, 4, 10, 14, 0, 0, 0, time.Local)}
	usage, _, store, _ := setupTestIngest(t, clock)
	ctx := context.Background()

	if err := usage.HandleSignal(ctx, "min30"); err != nil {
		t.Fatalf("HandleSignal failed: %v", err)
	}

	record, err := store.Ledger().GetDay(ctx, "2026-04-10")
	if err != nil {
		t.Fatalf("Failed to read day: %v", err)
	}
	if record.UsageMinutes != 30 {
		t.Errorf("Expected 30 usage minutes, got %d", record.UsageMinutes)
	}

	last, err := store.Settings().GetLastProcessedDay(ctx)
	if err != nil {
		t.Fatalf("Failed to read last processed day: %v", err)
	}
	if last != "2026-04-10" {
		t.Errorf("Expected last processed day 2026-04-10, got %s", last)
	}
}

func TestUsageIngestor_OutOfOrderSignals(t *testing.T) {
	clock := &ledger.TestClock{CurrentTime: time.Date(2026, 4, 10, 14, 0, 0, 0, time.Local)}
	usage, _, store, _ := setupTestIngest(t, clock)
	ctx := context.Background()

	// Signals carry cumulative totals; a late-arriving smaller one must
	// not undo a larger one, and a duplicate must be a no-op.
	for _, id := range []string{"min45", "min30", "min45", "min60"} {
		if err := usage.HandleSignal(ctx, id); err != nil {
			t.Fatalf("HandleSignal(%s) failed: %v", id, err)
		}
	}

	record, err := store.Ledger().GetDay(ctx, "2026-04-10")
	if err != nil {
		t.Fatalf("Failed to read day: %v", err)
	}
	if record.UsageMinutes != 60 {
		t.Errorf("Expected 60 usage minutes, got %d", record.UsageMinutes)
	}
}

func TestUsageIngestor_MalformedSignalDropped(t *testing.T) {
	clock := &ledger.TestClock{CurrentTime: time.Date(2026, 4, 10, 14, 0, 0, 0, time.Local)}
	usage, _, store, _ := setupTestIngest(t, clock)
	ctx := context.Background()

	if err := usage.HandleSignal(ctx, "garbage"); err != nil {
		t.Fatalf("Expected malformed signal to be dropped silently, got %v", err)
	}

	record, err := store.Ledger().GetDay(ctx, "2026-04-10")
	if err != nil {
		t.Fatalf("Failed to read day: %v", err)
	}
	if !record.IsZero() {
		t.Errorf("Expected no mutation from malformed signal, got %+v", record)
	}
}

func TestUsageIngestor_MidnightBoundary(t *testing.T) {
	clock := &ledger.TestClock{CurrentTime: time.Date(2026, 4, 10, 23, 50, 0, 0, time.Local)}
	usage, _, store, _ := setupTestIngest(t, clock)
	ctx := context.Background()

	if err := usage.HandleSignal(ctx, "min90"); err != nil {
		t.Fatalf("HandleSignal failed: %v", err)
	}

	// Cross midnight; the new day's first signal carries a small total
	// and must land on the new date, not regress yesterday's.
	clock.CurrentTime = time.Date(2026, 4, 11, 0, 10, 0, 0, time.Local)
	if err := usage.HandleSignal(ctx, "min5"); err != nil {
		t.Fatalf("HandleSignal failed: %v", err)
	}

	yesterday, err := store.Ledger().GetDay(ctx, "2026-04-10")
	if err != nil {
		t.Fatalf("Failed to read day: %v", err)
	}
	if yesterday.UsageMinutes != 90 {
		t.Errorf("Expected yesterday to keep 90 minutes, got %d", yesterday.UsageMinutes)
	}

	today, err := store.Ledger().GetDay(ctx, "2026-04-11")
	if err != nil {
		t.Fatalf("Failed to read day: %v", err)
	}
	if today.UsageMinutes != 5 {
		t.Errorf("Expected today to have 5 minutes, got %d", today.UsageMinutes)
	}

	last, err := store.Settings().GetLastProcessedDay(ctx)
	if err != nil {
		t.Fatalf("Failed to read last processed day: %v", err)
	}
	if last != "2026-04-11" {
		t.Errorf("Expected marker to advance to 2026-04-11, got %s", last)
	}
}

func TestUsageIngestor_EquilibriumAlert(t *testing.T) {
	clock := &ledger.TestClock{CurrentTime: time.Date(2026, 4, 10, 14, 0, 0, 0, time.Local)}
	usage, activity, _, sender := setupTestIngest(t, clock)
	ctx := context.Background()

	// Bank 3 minutes, then drain exactly to zero.
	if _, err := activity.Record(ctx, 15); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := usage.HandleSignal(ctx, "min3"); err != nil {
		t.Fatalf("HandleSignal failed: %v", err)
	}

	if len(sender.alerts) != 1 {
		t.Fatalf("Expected one equilibrium alert, got %d", len(sender.alerts))
	}
	if sender.alerts[0].Body != "Time's up loser!" {
		t.Errorf("Unexpected alert body %q", sender.alerts[0].Body)
	}

	// Further signals past zero stay silent.
	if err := usage.HandleSignal(ctx, "min10"); err != nil {
		t.Fatalf("HandleSignal failed: %v", err)
	}
	if len(sender.alerts) != 1 {
		t.Errorf("Expected no further alerts, got %d", len(sender.alerts))
	}
}

func TestActivityIngestor_Record(t *testing.T) {
	clock := &ledger.TestClock{CurrentTime: time.Date(2026, 4, 10, 14, 0, 0, 0, time.Local)}
	_, activity, store, _ := setupTestIngest(t, clock)
	ctx := context.Background()

	snapshot, err := activity.Record(ctx, 25)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if snapshot.Balance != 5 {
		t.Errorf("Expected balance 5, got %d", snapshot.Balance)
	}

	record, err := store.Ledger().GetDay(ctx, "2026-04-10")
	if err != nil {
		t.Fatalf("Failed to read day: %v", err)
	}
	if record.ActivityCount != 25 {
		t.Errorf("Expected 25 activity units, got %d", record.ActivityCount)
	}

	// Zero is a valid no-op delta; only negative counts are rejected.
	if _, err := activity.Record(ctx, 0); err != nil {
		t.Errorf("Expected zero count to be accepted, got %v", err)
	}
	if _, err := activity.Record(ctx, -5); err == nil {
		t.Error("Expected error for negative count")
	}
}
