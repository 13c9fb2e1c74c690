package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"huntdesk-ops/config"
)

// NotifyEvent is one outbound push: a case transition, a due review, or an
// alert needing an operator.
type NotifyEvent struct {
	Kind      string            `json:"kind"`
	RequestID string            `json:"request_id,omitempty"`
	AlertKey  string            `json:"alert_key,omitempty"`
	Title     string            `json:"title"`
	Detail    string            `json:"detail,omitempty"`
	AckURL    string            `json:"ack_url,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	At        time.Time         `json:"at"`
}

type WebhookSender interface {
	Send(ctx context.Context, event NotifyEvent) error
}

// HTTPWebhookSender posts events as JSON to a configured endpoint.
type HTTPWebhookSender struct {
	client *http.Client
	url    string
}

func NewHTTPWebhookSender(cfg config.NotifyConfig) *HTTPWebhookSender {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPWebhookSender{
		client: &http.Client{Timeout: timeout},
		url:    strings.TrimSpace(cfg.WebhookURL),
	}
}

func (s *HTTPWebhookSender) Send(ctx context.Context, event NotifyEvent) error {
	if s.url == "" {
		return errors.New("webhook url missing")
	}
	raw, _ := json.Marshal(event)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook status %d", resp.StatusCode)
}

// AckURL builds the one-click acknowledgement link embedded in pushes.
func AckURL(base, token string) string {
	base = strings.TrimSpace(base)
	if base == "" || token == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/ack?token=" + url.QueryEscape(token)
}
