package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/shifts"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/tokens"
)

const defaultTimeout = 5 * time.Second

// Webhook posts shift closing reports to an HTTP endpoint.
type Webhook struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhook returns nil when url is empty.
func NewWebhook(url, secret string, timeout time.Duration) *Webhook {
	if url == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Webhook{url: url, secret: secret, client: &http.Client{Timeout: timeout}}
}

// NotifyClose sends r as JSON. When a secret is configured the request carries a
// short-lived HS256 bearer token naming the event and shift.
func (w *Webhook) NotifyClose(ctx context.Context, r shifts.ClosingReport) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal closing report: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		tok, err := tokens.SignWebhook(w.secret, r.Event, r.SessionID, 5*time.Minute)
		if err != nil {
			return fmt.Errorf("sign webhook: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post closing report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}
	return nil
}
