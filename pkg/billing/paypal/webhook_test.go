package paypal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hostware/planguard/pkg/billing"
	"github.com/hostware/planguard/pkg/planguard"
	"github.com/hostware/planguard/storage/memory"
)

type capturedNotifications struct {
	mu   sync.Mutex
	list []planguard.Notification
}

func (c *capturedNotifications) Notify(_ context.Context, n planguard.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = append(c.list, n)
	return nil
}

func newTestProvider(t *testing.T) (*Provider, *memory.Storage, *capturedNotifications) {
	t.Helper()

	storage := memory.New()
	notifier := &capturedNotifications{}
	config := planguard.Config{
		PlanQuotas: map[string]int{
			"starter":  2,
			"standard": 5,
		},
		DefaultQuota: 1,
		Notifier:     notifier,
	}

	enforcer, err := planguard.NewEnforcer(storage, config)
	if err != nil {
		t.Fatalf("NewEnforcer failed: %v", err)
	}
	tracker, err := planguard.NewTracker(storage, enforcer, config)
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}

	provider, err := NewProvider(billing.Config{
		Tracker: tracker,
		PlanMapping: map[string]string{
			"P-STARTER-01":  "starter",
			"P-STANDARD-01": "standard",
		},
	})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	return provider, storage, notifier
}

func postWebhook(t *testing.T, provider *Provider, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	provider.WebhookHandler().ServeHTTP(w, req)
	return w
}

func TestNewProvider_RequiresTracker(t *testing.T) {
	_, err := NewProvider(billing.Config{})
	if err != billing.ErrProviderNotConfigured {
		t.Errorf("Expected ErrProviderNotConfigured, got %v", err)
	}
}

func TestWebhook_SubscriptionActivated(t *testing.T) {
	provider, storage, _ := newTestProvider(t)

	w := postWebhook(t, provider, `{
		"id": "WH-1",
		"event_type": "BILLING.SUBSCRIPTION.ACTIVATED",
		"create_time": "2025-06-01T10:00:00Z",
		"resource": {"id": "I-200", "status": "active", "plan_id": "P-STANDARD-01"}
	}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	sub, err := storage.GetSubscription(context.Background(), "I-200")
	if err != nil {
		t.Fatalf("GetSubscription failed: %v", err)
	}
	if sub.Status.Value != "active" {
		t.Errorf("Expected status active, got %q", sub.Status.Value)
	}
}

func TestWebhook_SubscriptionCancelled_Unknown(t *testing.T) {
	provider, storage, _ := newTestProvider(t)

	// Cancellation of a never-seen subscription is acknowledged, store
	// stays unchanged.
	w := postWebhook(t, provider, `{
		"id": "WH-2",
		"event_type": "BILLING.SUBSCRIPTION.CANCELLED",
		"resource": {"id": "I-201", "status": "cancelled"}
	}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if _, err := storage.GetSubscription(context.Background(), "I-201"); err != planguard.ErrSubscriptionNotFound {
		t.Errorf("Expected store unchanged, got %v", err)
	}
}

func TestWebhook_SubscriptionUpdated_Downgrade(t *testing.T) {
	provider, storage, notifier := newTestProvider(t)
	ctx := context.Background()

	if err := storage.UpsertAccount(ctx, &planguard.Account{
		ID:             "group-9",
		SubscriptionID: "I-202",
		PlanID:         "standard",
	}); err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}
	for i := 0; i < 7; i++ {
		if _, err := storage.CreateResource(ctx, &planguard.Resource{
			AccountID: "group-9",
			Name:      fmt.Sprintf("srv-%d", i+1),
		}); err != nil {
			t.Fatalf("CreateResource failed: %v", err)
		}
	}

	w := postWebhook(t, provider, `{
		"id": "WH-3",
		"event_type": "BILLING.SUBSCRIPTION.UPDATED",
		"create_time": "2025-06-02T09:30:00Z",
		"resource": {"id": "I-202", "status": "updated", "plan_id": "P-STARTER-01"}
	}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	count, _ := storage.CountResources(ctx, "group-9")
	if count != 2 {
		t.Errorf("Expected 2 resources after downgrade, got %d", count)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.list) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(notifier.list))
	}
	n := notifier.list[0]
	if n.AccountID != "group-9" || n.NewQuota != 2 || n.RemovedCount != 5 {
		t.Errorf("Unexpected notification %+v", n)
	}
}

func TestWebhook_PaymentSaleCompleted(t *testing.T) {
	provider, storage, _ := newTestProvider(t)

	w := postWebhook(t, provider, `{
		"id": "WH-4",
		"event_type": "PAYMENT.SALE.COMPLETED",
		"resource": {"id": "S-1", "billing_agreement_id": "I-203", "state": "completed", "amount": {"total": "15.00", "currency": "EUR"}}
	}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	sub, err := storage.GetSubscription(context.Background(), "I-203")
	if err != nil {
		t.Fatalf("GetSubscription failed: %v", err)
	}
	if sub.Status.Kind != planguard.StatusKindPayment || sub.Status.Value != planguard.PaymentStatusActive {
		t.Errorf("Expected payment ACTIVE sentinel, got %+v", sub.Status)
	}
}

func TestWebhook_PaymentSaleDenied(t *testing.T) {
	provider, storage, _ := newTestProvider(t)

	w := postWebhook(t, provider, `{
		"id": "WH-5",
		"event_type": "PAYMENT.SALE.DENIED",
		"resource": {"id": "S-2", "billing_agreement_id": "I-204", "state": "denied", "amount": {"total": "15.00", "currency": "EUR"}}
	}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	sub, _ := storage.GetSubscription(context.Background(), "I-204")
	if sub.Status.Value != planguard.PaymentStatusInactive {
		t.Errorf("Expected payment INACTIVE sentinel, got %+v", sub.Status)
	}
}

func TestWebhook_PaymentSaleWithoutAgreement_Ignored(t *testing.T) {
	provider, _, _ := newTestProvider(t)

	// One-off sale, no billing agreement: acknowledged and ignored.
	w := postWebhook(t, provider, `{
		"id": "WH-6",
		"event_type": "PAYMENT.SALE.COMPLETED",
		"resource": {"id": "S-3", "state": "completed", "amount": {"total": "5.00", "currency": "EUR"}}
	}`)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for one-off sale, got %d", w.Code)
	}
}

func TestWebhook_UnknownEventType_Acknowledged(t *testing.T) {
	provider, _, _ := newTestProvider(t)

	w := postWebhook(t, provider, `{
		"id": "WH-7",
		"event_type": "BILLING.PLAN.CREATED",
		"resource": {}
	}`)

	if w.Code != http.StatusOK {
		t.Errorf("Unknown events must be acknowledged to stop redelivery, got %d", w.Code)
	}
}

func TestWebhook_RejectsNonPost(t *testing.T) {
	provider, _, _ := newTestProvider(t)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/paypal", http.NoBody)
	w := httptest.NewRecorder()
	provider.WebhookHandler().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestWebhook_RejectsMalformedPayload(t *testing.T) {
	provider, _, _ := newTestProvider(t)

	w := postWebhook(t, provider, `{"event_type": `)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestWebhook_MissingSubscriptionID(t *testing.T) {
	provider, _, _ := newTestProvider(t)

	w := postWebhook(t, provider, `{
		"id": "WH-8",
		"event_type": "BILLING.SUBSCRIPTION.ACTIVATED",
		"resource": {"status": "active"}
	}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 so the provider retries, got %d", w.Code)
	}
}

func TestWebhook_SharedTokenAuth(t *testing.T) {
	storage := memory.New()
	config := planguard.Config{DefaultQuota: 1}
	enforcer, _ := planguard.NewEnforcer(storage, config)
	tracker, _ := planguard.NewTracker(storage, enforcer, config)

	provider, err := NewProvider(billing.Config{
		Tracker:       tracker,
		WebhookSecret: "hook-token",
	})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	payload := `{"id":"WH-9","event_type":"BILLING.SUBSCRIPTION.ACTIVATED","resource":{"id":"I-205","status":"active"}}`

	// Without the token
	w := postWebhook(t, provider, payload)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}

	// With the token
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(payload))
	req.Header.Set("Authorization", "Bearer hook-token")
	rec := httptest.NewRecorder()
	provider.WebhookHandler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with token, got %d", rec.Code)
	}
}

func TestWebhook_EventCallback(t *testing.T) {
	storage := memory.New()
	config := planguard.Config{DefaultQuota: 1}
	enforcer, _ := planguard.NewEnforcer(storage, config)
	tracker, _ := planguard.NewTracker(storage, enforcer, config)

	var mu sync.Mutex
	var captured []billing.Event
	provider, err := NewProvider(billing.Config{
		Tracker: tracker,
		EventCallback: func(event billing.Event) error {
			mu.Lock()
			defer mu.Unlock()
			captured = append(captured, event)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}

	w := postWebhook(t, provider, `{
		"id": "WH-10",
		"event_type": "BILLING.SUBSCRIPTION.ACTIVATED",
		"create_time": "2025-06-03T08:00:00Z",
		"resource": {"id": "I-206", "status": "active"}
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(captured) != 1 {
		t.Fatalf("Expected 1 callback event, got %d", len(captured))
	}
	event := captured[0]
	if event.SubscriptionID != "I-206" || event.Provider != "paypal" {
		t.Errorf("Unexpected event %+v", event)
	}
	if event.EventType != "BILLING.SUBSCRIPTION.ACTIVATED" {
		t.Errorf("Unexpected event type %q", event.EventType)
	}
	if event.EventTimestamp.IsZero() {
		t.Error("Expected event timestamp to be parsed")
	}
}
