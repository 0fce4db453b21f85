package paypal

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hostware/planguard/pkg/billing"
	"github.com/hostware/planguard/pkg/billing/internal"
	"github.com/hostware/planguard/pkg/planguard"
)

// webhookPayload is the envelope PayPal posts for REST webhooks. The
// resource shape depends on event_type: subscription events carry the
// subscription id/status/plan, payment-sale events carry the billing
// agreement id and amount.
type webhookPayload struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	CreateTime string          `json:"create_time"`
	Resource   json.RawMessage `json:"resource"`
}

type subscriptionResource struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	PlanID string `json:"plan_id"`
}

type saleResource struct {
	ID                 string `json:"id"`
	BillingAgreementID string `json:"billing_agreement_id"`
	State              string `json:"state"`
	Amount             struct {
		Total    string `json:"total"`
		Currency string `json:"currency"`
	} `json:"amount"`
}

// handleWebhook processes incoming PayPal webhook events
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	internal.SetSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
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

	// Optional shared-token check. Full PayPal webhook signature
	// verification (cert chain + CRC) is left to an upstream gateway.
	if len(p.webhookSecret) > 0 && !p.verifyToken(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		return
	}

	eventType := strings.TrimSpace(payload.EventType)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	if err := p.processWebhookEvent(r.Context(), &payload); err != nil {
		// A 5xx makes PayPal redeliver; enforcement failures are retryable.
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

// verifyToken compares the Authorization bearer token against the
// configured webhook secret in constant time.
func (p *Provider) verifyToken(r *http.Request) bool {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[len("bearer "):])
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), p.webhookSecret) == 1
}

// processWebhookEvent routes a webhook event to the tracker operation for
// its event family.
func (p *Provider) processWebhookEvent(ctx context.Context, payload *webhookPayload) error {
	switch payload.EventType {
	case "BILLING.SUBSCRIPTION.ACTIVATED":
		return p.handleSubscriptionActivated(ctx, payload)
	case "BILLING.SUBSCRIPTION.CANCELLED":
		return p.handleSubscriptionCancelled(ctx, payload)
	case "BILLING.SUBSCRIPTION.UPDATED":
		return p.handleSubscriptionUpdated(ctx, payload)
	case "PAYMENT.SALE.COMPLETED":
		return p.handlePaymentSale(ctx, payload, planguard.PaymentCompleted)
	case "PAYMENT.SALE.DENIED":
		return p.handlePaymentSale(ctx, payload, planguard.PaymentDenied)
	default:
		// Unknown event type - acknowledge and ignore
		p.metrics.RecordWebhookEvent(providerName, payload.EventType, "ignored")
		return nil
	}
}

func (p *Provider) handleSubscriptionActivated(ctx context.Context, payload *webhookPayload) error {
	sub, err := parseSubscriptionResource(payload)
	if err != nil {
		return err
	}

	if err := p.tracker.RecordActivated(ctx, sub.ID, sub.Status); err != nil {
		return err
	}

	p.fireCallback(payload, sub.ID, "", "")
	return nil
}

func (p *Provider) handleSubscriptionCancelled(ctx context.Context, payload *webhookPayload) error {
	sub, err := parseSubscriptionResource(payload)
	if err != nil {
		return err
	}

	if err := p.tracker.RecordCancelled(ctx, sub.ID, sub.Status); err != nil {
		return err
	}

	p.fireCallback(payload, sub.ID, "", "")
	return nil
}

func (p *Provider) handleSubscriptionUpdated(ctx context.Context, payload *webhookPayload) error {
	sub, err := parseSubscriptionResource(payload)
	if err != nil {
		return err
	}

	planID := p.config.MapPlan(sub.PlanID)
	p.metrics.RecordPlanChange(providerName, planID)

	if err := p.tracker.RecordUpdated(ctx, sub.ID, planID, sub.Status); err != nil {
		return err
	}

	p.fireCallback(payload, sub.ID, "", planID)
	return nil
}

func (p *Provider) handlePaymentSale(ctx context.Context, payload *webhookPayload, outcome planguard.PaymentOutcome) error {
	var sale saleResource
	if err := json.Unmarshal(payload.Resource, &sale); err != nil {
		return fmt.Errorf("%w: %v", billing.ErrInvalidWebhookPayload, err)
	}
	if sale.BillingAgreementID == "" {
		// Not a subscription payment (one-off sale) - ignore
		p.logger.Debug("payment sale without billing agreement, ignoring",
			planguard.Field{Key: "sale_id", Value: sale.ID},
		)
		return nil
	}

	if err := p.tracker.RecordPayment(ctx, sale.BillingAgreementID, outcome); err != nil {
		return err
	}

	p.fireCallback(payload, sale.BillingAgreementID, "", "")
	return nil
}

func parseSubscriptionResource(payload *webhookPayload) (*subscriptionResource, error) {
	var sub subscriptionResource
	if err := json.Unmarshal(payload.Resource, &sub); err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrInvalidWebhookPayload, err)
	}
	if sub.ID == "" {
		return nil, billing.ErrMissingSubscriptionID
	}
	return &sub, nil
}

func (p *Provider) fireCallback(payload *webhookPayload, subscriptionID, accountID, planID string) {
	if p.callback == nil {
		return
	}

	event := billing.Event{
		SubscriptionID: subscriptionID,
		AccountID:      accountID,
		PlanID:         planID,
		Provider:       providerName,
		EventType:      payload.EventType,
		EventTimestamp: parseCreateTime(payload.CreateTime),
	}
	if err := p.callback(event); err != nil {
		p.logger.Warn("event callback failed",
			planguard.Field{Key: "event_type", Value: payload.EventType},
			planguard.Field{Key: "error", Value: err.Error()},
		)
	}
}

func parseCreateTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
