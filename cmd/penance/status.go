package main

import (
	"context"
	"fmt"
	"time"

	"github.com/attison/penance/internal/config"
	"github.com/attison/penance/internal/ledger"
	"github.com/attison/penance/internal/storage"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusWeekOffset int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current balance and recent history",
	Long:  `Recompute the ledger from raw daily records and print the balance, totals, and the current week's history.`,
	Example: `  penance status
  penance -c /etc/penance/config.yaml status --week 1`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusWeekOffset, "week", 0, "Weeks back from the current week (0 = this week)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	snapshot, err := ledgerService.Recompute(ctx)
	if err != nil {
		return fmt.Errorf("failed to recompute ledger: %w", err)
	}

	week, err := ledgerService.WeekData(ctx, statusWeekOffset)
	if err != nil {
		return fmt.Errorf("failed to read week data: %w", err)
	}

	rate := ledgerService.ConversionRate(ctx)
	label := ledgerService.ActivityLabel(ctx)

	printStatus(snapshot, week, rate, label, statusWeekOffset)
	return nil
}

// printStatus prints the ledger status with colors
func printStatus(snapshot ledger.Snapshot, week []storage.DayEntry, rate int64, label string, weekOffset int) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("PENANCE LEDGER STATUS")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	cyan.Print("Balance:    ")
	switch {
	case snapshot.Balance > 0:
		green.Printf("%d minutes banked\n", snapshot.Balance)
	case snapshot.Balance == 0:
		yellow.Println("0 minutes (equilibrium)")
	default:
		red.Printf("%d minutes owed (%d %s to break even)\n",
			snapshot.Balance, -snapshot.Balance*rate, label)
	}
	fmt.Println()

	fmt.Printf("Conversion: %d %s per minute\n", rate, label)
	fmt.Println()

	fmt.Printf("All-time:   %d %s, %d minutes of screen time\n",
		snapshot.Totals.AllTimeActivity, label, snapshot.Totals.AllTimeUsage)
	fmt.Printf("This year:  %d %s, %d minutes\n",
		snapshot.Totals.YearActivity, label, snapshot.Totals.YearUsage)
	fmt.Printf("This month: %d %s, %d minutes\n",
		snapshot.Totals.MonthActivity, label, snapshot.Totals.MonthUsage)
	fmt.Println()

	if weekOffset == 0 {
		cyan.Println("This week:")
	} else {
		cyan.Printf("%d week(s) ago:\n", weekOffset)
	}
	for _, entry := range week {
		marker := " "
		if entry.Record.ActivityCount > 0 || entry.Record.UsageMinutes > 0 {
			marker = "•"
		}
		fmt.Printf("  %s %s  %4d %s  %4d min\n",
			marker, entry.Date, entry.Record.ActivityCount, label, entry.Record.UsageMinutes)
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}
