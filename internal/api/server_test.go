package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/attison/penance/internal/ingest"
	"github.com/attison/penance/internal/ledger"
	"github.com/attison/penance/internal/notify"
	"github.com/attison/penance/internal/storage"
	"github.com/attison/penance/internal/storage/bolt"
	"github.com/rs/zerolog"
)

func setupTestServer(t *testing.T, clock ledger.Clock) (*Server, storage.Store) {
	t.Helper()

	store, err := bolt.Open(t.TempDir() + "/api.bolt")
	if err != nil {
		t.Fatalf("Failed to open bolt store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	l := ledger.New(store.Ledger(), store.Settings(), ledger.Config{}, clock, zerolog.Nop())
	notifier := notify.NewNotifier(notify.NopSender{}, zerolog.Nop())
	activity := ingest.NewActivityIngestor(l, notifier, clock, zerolog.Nop())
	usage := ingest.NewUsageIngestor(l, store.Settings(), notifier, clock, zerolog.Nop())

	s := NewServer(Config{ListenAddr: "127.0.0.1:0"}, l, activity, usage, store.Settings(), zerolog.Nop())
	return s, store
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBalance(t *testing.T, rec *httptest.ResponseRecorder) BalanceResponse {
	t.Helper()
	var resp BalanceResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode balance response: %v", err)
	}
	return resp
}

func TestServer_Balance(t *testing.T) {
	clock := &ledger.TestClock{CurrentTime: time.Date(2026, 5, 12, 10, 0, 0, 0, time.Local)}
	s, _ := setupTestServer(t, clock)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/balance", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	resp := decodeBalance(t, rec)
	if resp.Balance != 0 {
		t.Errorf("Expected zero balance, got %d", resp.Balance)
	}
	if resp.ConversionRate != ledger.DefaultConversionRate {
		t.Errorf("Expected default rate, got %d", resp.ConversionRate)
	}
	if resp.ActivityLabel != ledger.DefaultActivityLabel {
		t.Errorf("Expected default label, got %q", resp.ActivityLabel)
	}
	if resp.StartDate != "2026-05-12" {
		t.Errorf("Expected start date initialized to today, got %q", resp.StartDate)
	}
	if resp.Degraded {
		t.Error("Expected non-degraded response from healthy storage")
	}
}

func TestServer_RecordActivity(t *testing.T) {
	clock := &ledger.TestClock{CurrentTime: time.Date(2026, 5, 12, 10, 0, 0, 0, time.Local)}
	s, _ := setupTestServer(t, clock)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/activity", ActivityRequest{Count: 25})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeBalance(t, rec)
	if resp.Balance != 5 {
		t.Errorf("Expected balance 5 after 25 units, got %d", resp.Balance)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/activity", ActivityRequest{Count: 0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for zero count, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/activity", ActivityRequest{Count: -3})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for negative count, got %d", rec.Code)
	}
}

func TestServer_Signal(t *testing.T) {
	clock := &ledger.TestClock{CurrentTime: time.Date(2026, 5, 12, 10, 0, 0, 0, time.Local)}
	s, store := setupTestServer(t, clock)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/signal", SignalRequest{Identifier: "min40"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	record, err := store.Ledger().GetDay(context.Background(), "2026-05-12")
	if err != nil {
		t.Fatalf("Failed to read day: %v", err)
	}
	if record.UsageMinutes != 40 {
		t.Errorf("Expected 40 usage minutes, got %d", record.UsageMinutes)
	}

	resp := decodeBalance(t, rec)
	if resp.Balance != -40 {
		t.Errorf("Expected balance -40, got %d", resp.Balance)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/signal", SignalRequest{Identifier: ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty identifier, got %d", rec.Code)
	}
}

func TestServer_Day(t *testing.T) {
	clock := &ledger.TestClock{CurrentTime: time.Date(2026, 5, 12, 10, 0, 0, 0, time.Local)}
	s, _ := setupTestServer(t, clock)

	doRequest(t, s, http.MethodPost, "/api/v1/activity", ActivityRequest{Count: 10})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/days/2026-05-12", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var day DayResponse
	if err := json.NewDecoder(rec.Body).Decode(&day); err != nil {
		t.Fatalf("Failed to decode day response: %v", err)
	}
	if day.ActivityCount != 10 {
		t.Errorf("Expected 10 activity units, got %d", day.ActivityCount)
	}

	// Unknown dates read as zero, never as errors.
	rec = doRequest(t, s, http.MethodGet, "/api/v1/days/2020-01-01", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for unknown date, got %d", rec.Code)
	}
	if err := json.NewDecoder(rec.Body).Decode(&day); err != nil {
		t.Fatalf("Failed to decode day response: %v", err)
	}
	if day.ActivityCount != 0 || day.UsageMinutes != 0 {
		t.Errorf("Expected zero record for unknown date, got %+v", day)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/days/notadate", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed date, got %d", rec.Code)
	}
}

func TestServer_Week(t *testing.T) {
	// A Tuesday.
	clock := &ledger.TestClock{CurrentTime: time.Date(2026, 5, 12, 10, 0, 0, 0, time.Local)}
	s, _ := setupTestServer(t, clock)

	doRequest(t, s, http.MethodPost, "/api/v1/activity", ActivityRequest{Count: 10})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/week", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var week WeekResponse
	if err := json.NewDecoder(rec.Body).Decode(&week); err != nil {
		t.Fatalf("Failed to decode week response: %v", err)
	}
	if len(week.Days) != 7 {
		t.Fatalf("Expected 7 days, got %d", len(week.Days))
	}
	if week.Days[0].Date != "2026-05-11" {
		t.Errorf("Expected week starting Monday 2026-05-11, got %s", week.Days[0].Date)
	}
	if week.Days[1].ActivityCount != 10 {
		t.Errorf("Expected Tuesday activity 10, got %d", week.Days[1].ActivityCount)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/week?offset=-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for negative offset, got %d", rec.Code)
	}
}

func TestServer_Settings(t *testing.T) {
	clock := &ledger.TestClock{CurrentTime: time.Date(2026, 5, 12, 10, 0, 0, 0, time.Local)}
	s, _ := setupTestServer(t, clock)

	rec := doRequest(t, s, http.MethodPut, "/api/v1/settings", SettingsPayload{ConversionRate: 10, ActivityLabel: "Squats"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/settings", nil)
	var settings SettingsPayload
	if err := json.NewDecoder(rec.Body).Decode(&settings); err != nil {
		t.Fatalf("Failed to decode settings: %v", err)
	}
	if settings.ConversionRate != 10 {
		t.Errorf("Expected rate 10, got %d", settings.ConversionRate)
	}
	if settings.ActivityLabel != "Squats" {
		t.Errorf("Expected label Squats, got %q", settings.ActivityLabel)
	}

	// The new rate changes the derived balance immediately.
	doRequest(t, s, http.MethodPost, "/api/v1/activity", ActivityRequest{Count: 30})
	rec = doRequest(t, s, http.MethodGet, "/api/v1/balance", nil)
	resp := decodeBalance(t, rec)
	if resp.Balance != 3 {
		t.Errorf("Expected balance 3 with rate 10, got %d", resp.Balance)
	}

	rec = doRequest(t, s, http.MethodPut, "/api/v1/settings", SettingsPayload{ConversionRate: -2})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid rate, got %d", rec.Code)
	}
}

func TestServer_Reset(t *testing.T) {
	clock := &ledger.TestClock{CurrentTime: time.Date(2026, 5, 12, 10, 0, 0, 0, time.Local)}
	s, _ := setupTestServer(t, clock)

	doRequest(t, s, http.MethodPost, "/api/v1/activity", ActivityRequest{Count: 100})
	doRequest(t, s, http.MethodPut, "/api/v1/settings", SettingsPayload{ConversionRate: 10})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	resp := decodeBalance(t, rec)
	if resp.Balance != 0 {
		t.Errorf("Expected zero balance after reset, got %d", resp.Balance)
	}
	// Settings survive.
	if resp.ConversionRate != 10 {
		t.Errorf("Expected rate 10 after reset, got %d", resp.ConversionRate)
	}
}

func TestServer_Health(t *testing.T) {
	clock := &ledger.TestClock{CurrentTime: time.Date(2026, 5, 12, 10, 0, 0, 0, time.Local)}
	s, _ := setupTestServer(t, clock)

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}
