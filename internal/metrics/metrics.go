package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Ingest metrics
	SignalsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "penance_usage_signals_total",
			Help: "Usage signals processed, by outcome",
		},
		[]string{"outcome"},
	)

	ActivityUnitsRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "penance_activity_units_recorded_total",
			Help: "Total activity units recorded",
		},
	)

	// Ledger metrics
	RecomputesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "penance_recomputes_total",
			Help: "Total ledger recomputes",
		},
	)

	RecomputeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "penance_recompute_duration_seconds",
			Help:    "Ledger recompute duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	BalanceMinutes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "penance_balance_minutes",
			Help: "Current balance in minutes",
		},
	)

	// API metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "penance_requests_total",
			Help: "Total API requests processed",
		},
		[]string{"endpoint", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "penance_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Notification metrics
	NotificationsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "penance_notifications_sent_total",
			Help: "Equilibrium notifications delivered",
		},
	)

	NotificationsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "penance_notifications_failed_total",
			Help: "Equilibrium notification delivery failures",
		},
	)

	// Cache metrics
	DateCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "penance_date_cache_hits_total",
			Help: "Parsed date key cache hits",
		},
	)

	DateCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "penance_date_cache_misses_total",
			Help: "Parsed date key cache misses",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		SignalsIngested,
		ActivityUnitsRecorded,
		RecomputesTotal,
		RecomputeDuration,
		BalanceMinutes,
		RequestsTotal,
		RequestDuration,
		NotificationsSent,
		NotificationsFailed,
		DateCacheHits,
		DateCacheMisses,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			// Use systemd socket-activated listener
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			// Create and bind listener ourselves
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
