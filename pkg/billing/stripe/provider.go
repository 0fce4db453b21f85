// Package stripe implements the billing.Provider interface for Stripe
// webhooks. Subscription lifecycle events map onto the tracker's
// lifecycle operations; invoice payment events map onto the fixed
// payment sentinels.
package stripe

import (
	"net/http"
	"strings"
	"time"

	"github.com/hostware/planguard/pkg/billing"
	"github.com/hostware/planguard/pkg/billing/internal"
	"github.com/hostware/planguard/pkg/planguard"
)

const (
	providerName             = "stripe"
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	maxPayloadBytes          = 256 * 1024
)

// Provider implements the billing.Provider interface for Stripe.
type Provider struct {
	tracker       *planguard.Tracker
	config        billing.Config
	rateLimiter   *internal.RateLimiter
	webhookSecret []byte
	metrics       billing.Metrics
	logger        planguard.Logger
	callback      billing.EventCallback
}

// NewProvider creates a new Stripe billing provider. The webhook secret
// is the endpoint signing secret from the Stripe dashboard (whsec_...)
// and is required: unsigned events are rejected.
func NewProvider(config billing.Config) (*Provider, error) {
	if config.Tracker == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	secret := strings.TrimSpace(config.WebhookSecret)

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

// WebhookHandler returns the HTTP handler for Stripe webhooks.
func (p *Provider) WebhookHandler() http.Handler {
	handler := http.HandlerFunc(p.handleWebhook)
	// Wrap with rate limiting
	return p.rateLimiter.Middleware(handler)
}
