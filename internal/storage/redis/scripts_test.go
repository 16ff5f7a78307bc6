package redis

import (
	"context"
	"testing"
)

// The Lua scripts must keep the scan index in lockstep with the per-day
// keys, otherwise ScanDays silently misses history.

func TestScripts_AddActivityUpdatesIndex(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.Ledger().AddActivity(ctx, "2026-03-14", 5); err != nil {
		t.Fatalf("AddActivity failed: %v", err)
	}

	dates, err := mr.SMembers(keyDays)
	if err != nil {
		t.Fatalf("SMembers failed: %v", err)
	}
	if len(dates) != 1 || dates[0] != "2026-03-14" {
		t.Errorf("Expected index [2026-03-14], got %v", dates)
	}

	record, err := store.Ledger().GetDay(ctx, "2026-03-14")
	if err != nil {
		t.Fatalf("GetDay failed: %v", err)
	}
	if record.ActivityCount != 5 {
		t.Errorf("Expected activity 5, got %d", record.ActivityCount)
	}
}

func TestScripts_SetUsageUpdatesIndexOnce(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.Ledger().SetUsageMinutes(ctx, "2026-03-14", 10); err != nil {
		t.Fatalf("SetUsageMinutes failed: %v", err)
	}
	if err := store.Ledger().SetUsageMinutes(ctx, "2026-03-14", 20); err != nil {
		t.Fatalf("Second SetUsageMinutes failed: %v", err)
	}

	dates, err := mr.SMembers(keyDays)
	if err != nil {
		t.Fatalf("SMembers failed: %v", err)
	}
	if len(dates) != 1 {
		t.Errorf("Expected single index entry, got %v", dates)
	}
}

func TestScripts_ResetClearsPerDayKeys(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	_ = store.Ledger().AddActivity(ctx, "2026-03-14", 5)
	_ = store.Ledger().SetUsageMinutes(ctx, "2026-03-14", 10)

	if err := store.Ledger().Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if mr.Exists(prefixDayAct + "2026-03-14") {
		t.Error("Expected activity key to be deleted by reset")
	}
	if mr.Exists(prefixDayUsage + "2026-03-14") {
		t.Error("Expected usage key to be deleted by reset")
	}
	if mr.Exists(keyDays) {
		t.Error("Expected day index to be deleted by reset")
	}
}
