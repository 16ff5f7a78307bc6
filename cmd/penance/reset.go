package main

import (
	"context"
	"fmt"
	"time"

	"github.com/attison/penance/internal/config"
	"github.com/attison/penance/internal/ledger"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var resetConfirmed bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Erase all history and start over",
	Long: `Erase all daily records, totals, and the cached balance. Settings
(conversion rate, activity label) are preserved.`,
	Example: `  penance reset --yes`,
	RunE:    runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetConfirmed, "yes", false, "Confirm the reset without prompting")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetConfirmed {
		return fmt.Errorf("reset erases all history; re-run with --yes to confirm")
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := quietLogger()

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	ledgerService := ledger.New(store.Ledger(), store.Settings(), ledger.Config{
		ConversionRate: cfg.Ledger.ConversionRate,
		ActivityLabel:  cfg.Ledger.ActivityLabel,
	}, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := ledgerService.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset ledger: %w", err)
	}

	green := color.New(color.FgGreen, color.Bold)
	green.Println("Ledger reset. All history erased; settings preserved.")
	return nil
}
