package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/attison/penance/internal/storage"
	"github.com/gorilla/mux"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// BalanceResponse is the payload for balance reads.
type BalanceResponse struct {
	Balance         int64  `json:"balance"`
	PreviousBalance int64  `json:"previous_balance"`
	ConversionRate  int64  `json:"conversion_rate"`
	ActivityLabel   string `json:"activity_label"`
	StartDate       string `json:"start_date,omitempty"`
	Degraded        bool   `json:"degraded,omitempty"`
}

// handleBalance recomputes from raw history and returns the fresh
// balance. When storage is unavailable it falls back to the last known
// snapshot rather than failing the read.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snapshot, err := s.ledger.Recompute(ctx)
	degraded := err != nil
	if degraded {
		s.logger.Error().Err(err).Msg("Recompute failed, serving last known balance")
	}

	writeJSON(w, http.StatusOK, BalanceResponse{
		Balance:         snapshot.Balance,
		PreviousBalance: snapshot.PreviousBalance,
		ConversionRate:  s.ledger.ConversionRate(ctx),
		ActivityLabel:   s.ledger.ActivityLabel(ctx),
		StartDate:       storage.DateKey(s.ledger.StartDate(ctx)),
		Degraded:        degraded,
	})
}

// TotalsResponse is the payload for totals reads.
type TotalsResponse struct {
	Totals   storage.Totals `json:"totals"`
	Balance  int64          `json:"balance"`
	Degraded bool           `json:"degraded,omitempty"`
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snapshot, err := s.ledger.Recompute(ctx)
	degraded := err != nil
	if degraded {
		s.logger.Error().Err(err).Msg("Recompute failed, serving last known totals")
	}

	writeJSON(w, http.StatusOK, TotalsResponse{
		Totals:   snapshot.Totals,
		Balance:  snapshot.Balance,
		Degraded: degraded,
	})
}

// DayResponse is the payload for single-day reads.
type DayResponse struct {
	Date          string `json:"date"`
	ActivityCount int64  `json:"activity_count"`
	UsageMinutes  int64  `json:"usage_minutes"`
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date := mux.Vars(r)["date"]

	if _, err := s.dates.Parse(date); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
		return
	}

	record, err := s.ledger.Day(ctx, date)
	if err != nil {
		s.logger.Error().Err(err).Str("date", date).Msg("Failed to read day")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve day record")
		return
	}

	writeJSON(w, http.StatusOK, DayResponse{
		Date:          date,
		ActivityCount: record.ActivityCount,
		UsageMinutes:  record.UsageMinutes,
	})
}

// WeekResponse is the payload for week-window reads.
type WeekResponse struct {
	Offset int           `json:"offset"`
	Days   []DayResponse `json:"days"`
}

func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "Invalid offset, expected non-negative integer")
			return
		}
		offset = parsed
	}

	entries, err := s.ledger.WeekData(ctx, offset)
	if err != nil {
		s.logger.Error().Err(err).Int("offset", offset).Msg("Failed to read week")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve week data")
		return
	}

	days := make([]DayResponse, 0, len(entries))
	for _, entry := range entries {
		days = append(days, DayResponse{
			Date:          entry.Date,
			ActivityCount: entry.Record.ActivityCount,
			UsageMinutes:  entry.Record.UsageMinutes,
		})
	}

	writeJSON(w, http.StatusOK, WeekResponse{Offset: offset, Days: days})
}

// ActivityRequest is the payload for recording activity.
type ActivityRequest struct {
	Count int64 `json:"count"`
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Count <= 0 {
		writeError(w, http.StatusBadRequest, "Count must be a positive integer")
		return
	}

	snapshot, err := s.activity.Record(ctx, req.Count)
	if err != nil {
		s.logger.Error().Err(err).Int64("count", req.Count).Msg("Failed to record activity")
		writeError(w, http.StatusInternalServerError, "Failed to record activity")
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{
		Balance:         snapshot.Balance,
		PreviousBalance: snapshot.PreviousBalance,
		ConversionRate:  s.ledger.ConversionRate(ctx),
		ActivityLabel:   s.ledger.ActivityLabel(ctx),
	})
}

// SignalRequest is the payload for injecting a usage-threshold signal.
type SignalRequest struct {
	Identifier string `json:"identifier"`
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Identifier == "" {
		writeError(w, http.StatusBadRequest, "Identifier is required")
		return
	}

	if err := s.usage.HandleSignal(ctx, req.Identifier); err != nil {
		s.logger.Error().Err(err).Str("identifier", req.Identifier).Msg("Failed to process signal")
		writeError(w, http.StatusInternalServerError, "Failed to process signal")
		return
	}

	snapshot := s.ledger.LastKnown()
	writeJSON(w, http.StatusOK, BalanceResponse{
		Balance:         snapshot.Balance,
		PreviousBalance: snapshot.PreviousBalance,
		ConversionRate:  s.ledger.ConversionRate(ctx),
		ActivityLabel:   s.ledger.ActivityLabel(ctx),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snapshot, err := s.ledger.Reset(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to reset ledger")
		writeError(w, http.StatusInternalServerError, "Failed to reset ledger")
		return
	}

	s.logger.Info().Msg("Ledger reset")
	writeJSON(w, http.StatusOK, BalanceResponse{
		Balance:         snapshot.Balance,
		PreviousBalance: snapshot.PreviousBalance,
		ConversionRate:  s.ledger.ConversionRate(ctx),
		ActivityLabel:   s.ledger.ActivityLabel(ctx),
	})
}

// SettingsPayload carries the user-adjustable configuration.
type SettingsPayload struct {
	ConversionRate int64  `json:"conversion_rate,omitempty"`
	ActivityLabel  string `json:"activity_label,omitempty"`
	SetupDone      *bool  `json:"setup_done,omitempty"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	setupDone, err := s.settings.GetSetupDone(ctx)
	if err != nil {
		setupDone = false
	}

	writeJSON(w, http.StatusOK, SettingsPayload{
		ConversionRate: s.ledger.ConversionRate(ctx),
		ActivityLabel:  s.ledger.ActivityLabel(ctx),
		SetupDone:      &setupDone,
	})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SettingsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.ConversionRate != 0 {
		if req.ConversionRate < 1 {
			writeError(w, http.StatusBadRequest, "Conversion rate must be at least 1")
			return
		}
		if err := s.settings.SetConversionRate(ctx, req.ConversionRate); err != nil {
			s.logger.Error().Err(err).Msg("Failed to store conversion rate")
			writeError(w, http.StatusInternalServerError, "Failed to store settings")
			return
		}
	}
	if req.ActivityLabel != "" {
		if err := s.settings.SetActivityLabel(ctx, req.ActivityLabel); err != nil {
			s.logger.Error().Err(err).Msg("Failed to store activity label")
			writeError(w, http.StatusInternalServerError, "Failed to store settings")
			return
		}
	}
	if req.SetupDone != nil {
		if err := s.settings.SetSetupDone(ctx, *req.SetupDone); err != nil {
			s.logger.Error().Err(err).Msg("Failed to store setup flag")
			writeError(w, http.StatusInternalServerError, "Failed to store settings")
			return
		}
	}

	// Rate changes shift the derived balance; refresh the caches now so
	// the next widget read is consistent.
	if _, err := s.ledger.Recompute(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Recompute after settings change failed")
	}

	s.handleGetSettings(w, r)
}
