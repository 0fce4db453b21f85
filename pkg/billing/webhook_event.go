package billing

import "time"

// Event contains information about a successfully processed webhook
// notification. It is passed to the EventCallback after the subscription
// record has been updated (and, for plan updates, after enforcement ran).
type Event struct {
	// SubscriptionID is the provider-assigned subscription identifier
	SubscriptionID string

	// AccountID is the owning account, when the provider resolved one
	// (empty for events that do not touch an account)
	AccountID string

	// PlanID is the local plan id the event carried, if any
	PlanID string

	// Provider is the billing provider name ("paypal", "stripe")
	Provider string

	// EventType is the provider-specific event type
	// PayPal: "BILLING.SUBSCRIPTION.UPDATED", "PAYMENT.SALE.COMPLETED", ...
	// Stripe: "customer.subscription.updated", "invoice.payment_succeeded", ...
	EventType string

	// EventTimestamp is when the event occurred (from the provider)
	EventTimestamp time.Time
}

// EventCallback is invoked after a webhook event has been applied.
// A non-nil error is logged by the provider but does not fail the webhook
// response; the event has already been persisted.
type EventCallback func(event Event) error
