package billing

import (
	"net/http"
)

// Provider is the generic interface that any billing backend must
// implement. This allows the application to swap PayPal for Stripe with
// zero logic changes.
type Provider interface {
	// Name returns the provider name (e.g., "paypal", "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that processes real-time
	// provider notifications. The implementation handles parsing,
	// event-type routing and Tracker updates internally.
	WebhookHandler() http.Handler
}
