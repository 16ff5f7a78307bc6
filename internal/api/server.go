package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/attison/penance/internal/ingest"
	"github.com/attison/penance/internal/ledger"
	"github.com/attison/penance/internal/metrics"
	"github.com/attison/penance/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Config holds the API server configuration.
type Config struct {
	ListenAddr string
}

// Server is the interactive HTTP API over the ledger.
type Server struct {
	config   Config
	ledger   *ledger.Ledger
	activity *ingest.ActivityIngestor
	usage    *ingest.UsageIngestor
	settings storage.SettingsStore
	dates    *dateCache
	server   *http.Server
	router   *mux.Router
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
	logger   zerolog.Logger
}

// NewServer creates the API server.
func NewServer(cfg Config, l *ledger.Ledger, activity *ingest.ActivityIngestor, usage *ingest.UsageIngestor, settings storage.SettingsStore, logger zerolog.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		config:   cfg,
		ledger:   l,
		activity: activity,
		usage:    usage,
		settings: settings,
		dates:    newDateCache(),
		router:   router,
		logger:   logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(s.instrumentMiddleware)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/balance", s.handleBalance).Methods("GET")
	v1.HandleFunc("/totals", s.handleTotals).Methods("GET")
	v1.HandleFunc("/days/{date}", s.handleDay).Methods("GET")
	v1.HandleFunc("/week", s.handleWeek).Methods("GET")
	v1.HandleFunc("/activity", s.handleActivity).Methods("POST")
	v1.HandleFunc("/signal", s.handleSignal).Methods("POST")
	v1.HandleFunc("/reset", s.handleReset).Methods("POST")
	v1.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	v1.HandleFunc("/settings", s.handlePutSettings).Methods("PUT")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// instrumentMiddleware records request counts and durations per route.
func (s *Server) instrumentMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}
		metrics.RequestsTotal.WithLabelValues(endpoint, r.Method, strconv.Itoa(recorder.status)).Inc()
		metrics.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(started)).
			Msg("Handled request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// SetListener sets a pre-created listener for systemd socket activation.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting API server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
	})
}
