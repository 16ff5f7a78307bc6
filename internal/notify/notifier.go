package notify

import (
	"context"

	"github.com/attison/penance/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	alertTitle = "Penance"
	alertBody  = "Time's up loser!"
	alertSound = "default"
)

// Notifier fires a single alert when the balance lands exactly on zero
// from any nonzero value: draining banked minutes down to zero, or paying
// off the last owed minute from below. The alert is edge-triggered:
// staying at zero or skipping past zero into the negative does not fire.
// Delivery is fire-and-forget; failures are logged and counted, never
// propagated to the caller.
type Notifier struct {
	sender Sender
	logger zerolog.Logger
}

// NewNotifier creates a notifier delivering through sender.
func NewNotifier(sender Sender, logger zerolog.Logger) *Notifier {
	if sender == nil {
		sender = NopSender{}
	}
	return &Notifier{
		sender: sender,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Observe inspects one balance transition and fires the equilibrium
// alert when it lands exactly on zero from a nonzero balance. Returns
// whether the alert fired.
func (n *Notifier) Observe(ctx context.Context, previous, current int64) bool {
	if previous == 0 || current != 0 {
		return false
	}

	n.logger.Info().
		Int64("previous_balance", previous).
		Msg("Balance reached equilibrium")

	if err := n.sender.Send(ctx, Alert{Title: alertTitle, Body: alertBody, Sound: alertSound}); err != nil {
		n.logger.Error().Err(err).Msg("Failed to deliver equilibrium alert")
		metrics.NotificationsFailed.Inc()
		return true
	}
	metrics.NotificationsSent.Inc()
	return true
}
