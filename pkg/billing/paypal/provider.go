// Package paypal implements the billing.Provider interface for PayPal
// REST webhooks. Subscription lifecycle events feed the tracker's
// lifecycle vocabulary; payment-sale events feed the fixed payment
// sentinels. The two event families share one endpoint but never one
// write path.
package paypal

import (
	"net/http"
	"strings"
	"time"

	"github.com/hostware/planguard/pkg/billing"
	"github.com/hostware/planguard/pkg/billing/internal"
	"github.com/hostware/planguard/pkg/planguard"
)

const (
	providerName             = "paypal"
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	maxPayloadBytes          = 256 * 1024
)

// Provider implements the billing.Provider interface for PayPal.
type Provider struct {
	tracker       *planguard.Tracker
	config        billing.Config
	rateLimiter   *internal.RateLimiter
	webhookSecret []byte
	metrics       billing.Metrics
	logger        planguard.Logger
	callback      billing.EventCallback
}

// NewProvider creates a new PayPal billing provider.
func NewProvider(config billing.Config) (*Provider, error) {
	if config.Tracker == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	secret := strings.TrimSpace(config.WebhookSecret)
	if strings.HasPrefix(strings.ToLower(secret), "bearer ") {
		secret = strings.TrimSpace(secret[len("bearer "):])
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}
	logger := config.Logger
	if logger == nil {
		logger = &planguard.NoopLogger{}
	}

	return &Provider{
		tracker:       config.Tracker,
		config:        config,
		rateLimiter:   internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		webhookSecret: []byte(secret),
		metrics:       metrics,
		logger:        logger,
		callback:      config.EventCallback,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for PayPal webhooks.
func (p *Provider) WebhookHandler() http.Handler {
	handler := http.HandlerFunc(p.handleWebhook)
	// Wrap with rate limiting
	return p.rateLimiter.Middleware(handler)
}
