package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// LogForwarder writes alerts to the process log. Always wired; the log is
// the notification boundary of last resort.
type LogForwarder struct{}

// NewLogForwarder creates a log forwarder.
func NewLogForwarder() *LogForwarder { return &LogForwarder{} }

// Forward logs the alert.
func (f *LogForwarder) Forward(_ context.Context, a Alert) error {
	urgency := "ALERT"
	if a.Escalated {
		urgency = "ESCALATED"
	}
	log.Printf("alert: %s [%s] %s/%s value=%v threshold=%v: %s",
		urgency, a.Record.Status, a.Record.Component, a.Record.Metric,
		a.Record.Value, a.Record.Threshold, a.Record.Detail)
	return nil
}

// WebhookForwarder POSTs alerts as JSON to a configured endpoint.
type WebhookForwarder struct {
	url    string
	client *http.Client
}

// NewWebhookForwarder creates a webhook forwarder for the given URL.
func NewWebhookForwarder(url string, timeout time.Duration) *WebhookForwarder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookForwarder{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Forward delivers the alert to the webhook.
func (f *WebhookForwarder) Forward(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("alert: marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alert: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("alert: deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert: webhook returned %d", resp.StatusCode)
	}
	return nil
}
