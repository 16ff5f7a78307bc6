package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attison/penance/internal/api"
	"github.com/attison/penance/internal/config"
	"github.com/attison/penance/internal/ingest"
	"github.com/attison/penance/internal/ledger"
	"github.com/attison/penance/internal/metrics"
	"github.com/attison/penance/internal/notify"
	"github.com/attison/penance/internal/storage"
	"github.com/attison/penance/internal/storage/bolt"
	"github.com/attison/penance/internal/storage/redis"
	"github.com/attison/penance/internal/systemd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Penance server",
	Long:  `Start the Penance server with the ledger API and metrics endpoints.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting Penance")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to get systemd listeners")
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Storage initialized")

	// Initialize ledger and notification pipeline
	ledgerService := ledger.New(store.Ledger(), store.Settings(), ledger.Config{
		ConversionRate: cfg.Ledger.ConversionRate,
		ActivityLabel:  cfg.Ledger.ActivityLabel,
	}, nil, logger)

	var sender notify.Sender = notify.NopSender{}
	if cfg.Notify.WebhookURL != "" {
		sender = notify.NewWebhookSender(
			cfg.Notify.WebhookURL,
			parseDuration(cfg.Notify.Timeout, 10*time.Second),
			logger,
		)
		logger.Info().Str("webhook", cfg.Notify.WebhookURL).Msg("Notification webhook configured")
	}
	notifier := notify.NewNotifier(sender, logger)

	usageIngestor := ingest.NewUsageIngestor(ledgerService, store.Settings(), notifier, nil, logger)
	activityIngestor := ingest.NewActivityIngestor(ledgerService, notifier, nil, logger)

	// Prime the balance cache; the background process may have mutated
	// history since the server last ran.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	snapshot, err := ledgerService.Recompute(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("initial recompute failed: %w", err)
	}

	logger.Info().
		Int64("balance", snapshot.Balance).
		Int64("all_time_activity", snapshot.Totals.AllTimeActivity).
		Int64("all_time_usage", snapshot.Totals.AllTimeUsage).
		Msg("Ledger primed")

	// Initialize API Server
	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
	apiServer := api.NewServer(
		api.Config{ListenAddr: apiAddr},
		ledgerService,
		activityIngestor,
		usageIngestor,
		store.Settings(),
		logger,
	)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API Server: %w", err)
	}

	logger.Info().
		Str("addr", apiAddr).
		Msg("API Server started")

	// Initialize Metrics Server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)

	// Use systemd socket-activated listener if available
	if sdListeners.Activated && sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}

	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start Metrics Server: %w", err)
	}

	logger.Info().
		Str("addr", metricsAddr).
		Msg("Metrics Server started")

	// Log startup complete
	logger.Info().Msg("Penance startup complete")
	logger.Info().Msgf("API: http://%s/api/v1/balance", apiAddr)
	logger.Info().Msgf("Metrics: http://%s/metrics", metricsAddr)

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	// Wait for signals (shutdown or recompute)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	// Signal handling loop
	for {
		sig := <-sigChan

		switch sig {
		case syscall.SIGHUP:
			logger.Info().Msg("SIGHUP received, recomputing ledger...")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := ledgerService.Recompute(ctx); err != nil {
				logger.Error().Err(err).Msg("Failed to recompute ledger")
			} else {
				logger.Info().Msg("Ledger recomputed")
			}
			cancel()
			// Continue running
			continue

		case os.Interrupt, syscall.SIGTERM:
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
			// Break out of loop to shutdown
		}

		// Only reached on shutdown signals
		break
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Stop servers
	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API Server")
	}

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Metrics Server")
	}

	logger.Info().Msg("Penance stopped")

	return nil
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	storageType := cfg.Type
	if storageType == "" {
		storageType = "bolt"
	}

	switch storageType {
	case "bolt":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (supported: bolt, redis)", storageType)
	}
}

// quietLogger builds a logger for one-shot CLI commands that should only
// surface real errors.
func quietLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()
}
