package main

import (
	"context"
	"fmt"
	"time"

	"github.com/attison/penance/internal/config"
	"github.com/attison/penance/internal/ingest"
	"github.com/attison/penance/internal/ledger"
	"github.com/attison/penance/internal/notify"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event IDENTIFIER...",
	Short: "Process usage-threshold signals and exit",
	Long: `Process usage-threshold signals delivered by the monitoring system.
Intended to be invoked as a one-shot background process; it opens the
shared store, applies each signal in order, and exits within the
background execution budget.`,
	Example: `  penance event min45
  penance -c /etc/penance/config.yaml event min90 min120`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEvent,
}

func init() {
	rootCmd.AddCommand(eventCmd)
}

func runEvent(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := quietLogger()

	// The bolt backend blocks on the file lock while the foreground
	// server holds it; the open timeout bounds how long we wait.
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

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
	}
	notifier := notify.NewNotifier(sender, logger)
	usageIngestor := ingest.NewUsageIngestor(ledgerService, store.Settings(), notifier, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	for _, identifier := range args {
		if err := usageIngestor.HandleSignal(ctx, identifier); err != nil {
			return fmt.Errorf("failed to process signal %q: %w", identifier, err)
		}
	}

	return nil
}
