package notifiers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/daniacca/graphitecore/internal/reactor"
)

// SignatureHeader carries the hex HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Reactor-Signature"

// WebhookNotifier POSTs reactor events as JSON to a URL.
type WebhookNotifier struct {
	id      string
	url     string
	secret  []byte
	client  *http.Client
	headers map[string]string
}

// NewWebhookNotifier creates a webhook notifier with a 5s client timeout.
func NewWebhookNotifier(id, url string) *WebhookNotifier {
	return &WebhookNotifier{
		id:      id,
		url:     url,
		client:  &http.Client{Timeout: 5 * time.Second},
		headers: make(map[string]string),
	}
}

// SetHeader adds a header to every request.
func (wn *WebhookNotifier) SetHeader(key, value string) {
	wn.headers[key] = value
}

// SetSecret enables body signing.
func (wn *WebhookNotifier) SetSecret(secret string) {
	wn.secret = []byte(secret)
}

func (wn *WebhookNotifier) ID() string   { return wn.id }
func (wn *WebhookNotifier) Type() string { return "webhook" }

// URL returns the target URL.
func (wn *WebhookNotifier) URL() string { return wn.url }

// Sign returns the signature the receiver should expect for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Notify posts the event. Any non-2xx answer is an error so the manager retries.
func (wn *WebhookNotifier) Notify(ctx context.Context, event reactor.NotificationEvent) error {
	body, err := event.JSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wn.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range wn.headers {
		req.Header.Set(key, value)
	}
	if len(wn.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(wn.secret, body))
	}

	resp, err := wn.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op.
func (wn *WebhookNotifier) Close() error {
	return nil
}
