package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"tickguard/internal/model"
)

const defaultTimeout = 10 * time.Second

// WebhookSink posts notifications as JSON to a generic endpoint.
type WebhookSink struct {
	url     string
	headers map[string]string
	client  *http.Client
}

type webhookPayload struct {
	EventType    string             `json:"event_type"`
	Source       string             `json:"source"`
	Timestamp    time.Time          `json:"timestamp"`
	Notification model.Notification `json:"notification"`
}

func NewWebhookSink(url string, headers map[string]string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	return &WebhookSink{url: url, headers: h, client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Send(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(webhookPayload{
		EventType:    "tickguard_alert",
		Source:       "tickguard",
		Timestamp:    n.Timestamp,
		Notification: n,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	return postJSON(ctx, s.client, s.url, s.headers, body)
}

func (s *WebhookSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "tickguard")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: send request: %w", model.ErrDependency, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: endpoint returned status %d", model.ErrDependency, resp.StatusCode)
	}
	return nil
}
