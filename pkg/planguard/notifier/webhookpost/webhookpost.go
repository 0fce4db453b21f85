// Package webhookpost delivers enforcement notifications as JSON POSTs
// to an operator-configured webhook URL (ops channel, chat bridge, or an
// internal endpoint that emails the account owner).
package webhookpost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hostware/planguard/pkg/planguard"
)

const defaultTimeout = 10 * time.Second

// ErrNotConfigured is returned by New when no URL is provided.
var ErrNotConfigured = errors.New("webhookpost: URL is required")

// payload is the wire shape of a delivered notification.
type payload struct {
	AccountID    string `json:"account_id"`
	NewQuota     int    `json:"new_quota"`
	RemovedCount int    `json:"removed_count"`
}

// Notifier implements planguard.Notifier by POSTing notifications to a
// webhook URL.
type Notifier struct {
	url        string
	authHeader string
	client     *http.Client
	logger     planguard.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithHTTPClient sets the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) {
		n.client = client
	}
}

// WithBearerToken sets an Authorization bearer token sent on every delivery.
func WithBearerToken(token string) Option {
	return func(n *Notifier) {
		n.authHeader = "Bearer " + token
	}
}

// WithLogger sets the logger used for delivery diagnostics.
func WithLogger(logger planguard.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// New creates a webhook notifier targeting url.
func New(url string, opts ...Option) (*Notifier, error) {
	if url == "" {
		return nil, ErrNotConfigured
	}

	n := &Notifier{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
		logger: &planguard.NoopLogger{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify POSTs the notification as JSON. Any non-2xx response is an
// error; the enforcer logs delivery failures without failing the run.
func (n *Notifier) Notify(ctx context.Context, notification planguard.Notification) error {
	body, err := json.Marshal(payload{
		AccountID:    notification.AccountID,
		NewQuota:     notification.NewQuota,
		RemovedCount: notification.RemovedCount,
	})
	if err != nil {
		return fmt.Errorf("webhookpost: marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhookpost: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.authHeader != "" {
		req.Header.Set("Authorization", n.authHeader)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhookpost: deliver notification: %w", err)
	}
	defer func() {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhookpost: unexpected status %d", resp.StatusCode)
	}

	n.logger.Debug("notification delivered",
		planguard.Field{Key: "account_id", Value: notification.AccountID},
		planguard.Field{Key: "removed_count", Value: notification.RemovedCount},
	)
	return nil
}
