package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Alert is the payload delivered when the balance reaches equilibrium.
type Alert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound,omitempty"`
}

// Sender delivers alerts to the user.
type Sender interface {
	Send(ctx context.Context, alert Alert) error
}

// WebhookSender posts alerts as JSON to a configured URL.
type WebhookSender struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookSender creates a sender posting to url with the given timeout.
func NewWebhookSender(url string, timeout time.Duration, logger zerolog.Logger) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Send posts the alert. Non-2xx responses are errors.
func (s *WebhookSender) Send(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	s.logger.Debug().Str("url", s.url).Msg("Delivered alert")
	return nil
}

// NopSender discards alerts. Used when no webhook is configured.
type NopSender struct{}

func (NopSender) Send(ctx context.Context, alert Alert) error {
	return nil
}
