package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookChannel POSTs notifications as JSON to a configured URL, e.g. a
// push-gateway or a chat webhook.
type WebhookChannel struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

func NewWebhookChannel(url string, log zerolog.Logger) (*WebhookChannel, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	return &WebhookChannel{
		url: url,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log.With().Str("component", "notify-webhook").Logger(),
	}, nil
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "waterminder/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %q: %w", c.url, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	c.log.Debug().Str("reminder_id", n.ReminderID).Int("status_code", resp.StatusCode).Msg("notification posted")
	return nil
}

// Close releases idle connections.
func (c *WebhookChannel) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
