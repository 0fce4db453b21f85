package billing

import (
	"github.com/hostware/planguard/pkg/planguard"
)

// Config defines the standard configuration all providers should accept.
type Config struct {
	// Tracker is the planguard Tracker that will be fed subscription and
	// payment events.
	Tracker *planguard.Tracker

	// PlanMapping maps provider-native plan/price identifiers to local
	// plan ids. For example:
	// map[string]string{"P-5ML4271244454362WXNWU5NQ": "standard"}.
	// Events carrying an unmapped identifier pass it through unchanged;
	// the enforcer's default-quota fallback then applies.
	PlanMapping map[string]string

	// WebhookSecret authenticates incoming webhook requests. PayPal
	// treats it as a shared bearer token compared in constant time;
	// Stripe treats it as the endpoint signing secret (whsec_...).
	WebhookSecret string

	// Metrics is an optional metrics collector for webhook processing.
	// If nil, metrics are silently ignored (no-op).
	Metrics Metrics

	// EventCallback is invoked after each successfully applied event
	// (optional).
	EventCallback EventCallback

	// Logger is used for structured logging (default: NoopLogger).
	Logger planguard.Logger
}

// MapPlan resolves a provider-native plan identifier to a local plan id,
// passing unmapped identifiers through unchanged.
func (c Config) MapPlan(providerPlanID string) string {
	if mapped, ok := c.PlanMapping[providerPlanID]; ok {
		return mapped
	}
	return providerPlanID
}
