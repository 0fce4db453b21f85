package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/hostware/planguard/pkg/billing"
	"github.com/hostware/planguard/pkg/billing/internal"
	"github.com/hostware/planguard/pkg/planguard"
)

// handleWebhook processes incoming Stripe webhook events
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	internal.SetSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(p.webhookSecret) == 0 {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	select {
	case <-r.Context().Done():
		http.Error(w, "request timeout", http.StatusRequestTimeout)
		return
	default:
	}

	// Read and validate body (with size limit protection)
	body, err := internal.ReadBodyStrict(w, r, maxPayloadBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		sig = r.Header.Get("stripe-signature")
	}

	event, err := stripe.ConstructEvent(body, sig, string(p.webhookSecret))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	if err := p.processWebhookEvent(r.Context(), &event); err != nil {
		// A 5xx makes Stripe redeliver; enforcement failures are retryable.
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		return
	}

	p.metrics.RecordWebhookEvent(providerName, eventType, "success")
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
}

// processWebhookEvent routes a webhook event to the tracker operation for
// its event family.
func (p *Provider) processWebhookEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "customer.subscription.created":
		return p.handleSubscriptionCreated(ctx, event)
	case "customer.subscription.updated":
		return p.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		return p.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_succeeded":
		return p.handleInvoicePayment(ctx, event, planguard.PaymentCompleted)
	case "invoice.payment_failed":
		return p.handleInvoicePayment(ctx, event, planguard.PaymentDenied)
	default:
		// Unknown event type - acknowledge and ignore
		p.metrics.RecordWebhookEvent(providerName, string(event.Type), "ignored")
		return nil
	}
}

// handleSubscriptionCreated processes customer.subscription.created events
func (p *Provider) handleSubscriptionCreated(ctx context.Context, event *stripe.Event) error {
	sub, err := parseSubscription(event)
	if err != nil {
		return err
	}

	if err := p.tracker.RecordActivated(ctx, sub.ID, string(sub.Status)); err != nil {
		return err
	}

	p.fireCallback(event, sub.ID, "")
	return nil
}

// handleSubscriptionUpdated processes customer.subscription.updated events.
// Plan changes land here, so this is the path that triggers enforcement.
func (p *Provider) handleSubscriptionUpdated(ctx context.Context, event *stripe.Event) error {
	sub, err := parseSubscription(event)
	if err != nil {
		return err
	}

	planID := p.config.MapPlan(extractPriceID(sub))
	p.metrics.RecordPlanChange(providerName, planID)

	if err := p.tracker.RecordUpdated(ctx, sub.ID, planID, string(sub.Status)); err != nil {
		return err
	}

	p.fireCallback(event, sub.ID, planID)
	return nil
}

// handleSubscriptionDeleted processes customer.subscription.deleted events
func (p *Provider) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	sub, err := parseSubscription(event)
	if err != nil {
		return err
	}

	status := string(sub.Status)
	if status == "" {
		status = "canceled"
	}
	if err := p.tracker.RecordCancelled(ctx, sub.ID, status); err != nil {
		return err
	}

	p.fireCallback(event, sub.ID, "")
	return nil
}

// handleInvoicePayment processes invoice.payment_succeeded and
// invoice.payment_failed events. Invoices without a subscription are
// one-off charges and are ignored.
func (p *Provider) handleInvoicePayment(ctx context.Context, event *stripe.Event, outcome planguard.PaymentOutcome) error {
	subscriptionID := extractInvoiceSubscriptionID(event.Data.Raw)
	if subscriptionID == "" {
		p.logger.Debug("invoice without subscription, ignoring",
			planguard.Field{Key: "event_type", Value: string(event.Type)},
		)
		return nil
	}

	if err := p.tracker.RecordPayment(ctx, subscriptionID, outcome); err != nil {
		return err
	}

	p.fireCallback(event, subscriptionID, "")
	return nil
}

func parseSubscription(event *stripe.Event) (*stripe.Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrInvalidWebhookPayload, err)
	}
	if sub.ID == "" {
		return nil, billing.ErrMissingSubscriptionID
	}
	return &sub, nil
}

// extractPriceID returns the price ID of the first subscription item.
func extractPriceID(sub *stripe.Subscription) string {
	if sub.Items == nil {
		return ""
	}
	for _, item := range sub.Items.Data {
		if item.Price != nil && item.Price.ID != "" {
			return item.Price.ID
		}
	}
	return ""
}

// extractInvoiceSubscriptionID pulls the subscription ID out of the raw
// invoice JSON. Depending on expansion the field is either an ID string
// or an embedded object.
func extractInvoiceSubscriptionID(raw json.RawMessage) string {
	var rawData map[string]interface{}
	if err := json.Unmarshal(raw, &rawData); err != nil {
		return ""
	}
	switch v := rawData["subscription"].(type) {
	case string:
		return v
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			return id
		}
	}
	return ""
}

func (p *Provider) fireCallback(event *stripe.Event, subscriptionID, planID string) {
	if p.callback == nil {
		return
	}

	evt := billing.Event{
		SubscriptionID: subscriptionID,
		PlanID:         planID,
		Provider:       providerName,
		EventType:      string(event.Type),
		EventTimestamp: time.Unix(event.Created, 0).UTC(),
	}
	if err := p.callback(evt); err != nil {
		p.logger.Warn("event callback failed",
			planguard.Field{Key: "event_type", Value: string(event.Type)},
			planguard.Field{Key: "error", Value: err.Error()},
		)
	}
}
