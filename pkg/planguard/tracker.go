package planguard

import (
	"context"
	"fmt"
	"time"
)

// Tracker maintains one authoritative status record per billing
// subscription and triggers the enforcement engine when a subscription's
// plan changes. It performs persistence writes only; resource mutation
// happens exclusively through the Enforcer.
type Tracker struct {
	storage  Storage
	enforcer *Enforcer
	logger   Logger
	metrics  Metrics
}

// NewTracker creates a new subscription state tracker. The enforcer is
// required: plan updates trigger enforcement for the owning account.
func NewTracker(storage Storage, enforcer *Enforcer, config Config) (*Tracker, error) {
	if storage == nil {
		return nil, ErrStorageUnavailable
	}
	if enforcer == nil {
		return nil, fmt.Errorf("enforcer is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &NoopMetrics{}
	}

	return &Tracker{
		storage:  storage,
		enforcer: enforcer,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// RecordActivated upserts the subscription's lifecycle status and
// refreshes its update timestamp. A subscription never seen before is
// valid (first event for a new subscription); re-applying the same status
// is a no-op in effect.
func (t *Tracker) RecordActivated(ctx context.Context, subscriptionID, status string) error {
	if err := t.upsertLifecycle(ctx, subscriptionID, status); err != nil {
		t.metrics.RecordSubscriptionEvent("activated", "error")
		return err
	}

	t.metrics.RecordSubscriptionEvent("activated", "success")
	t.logger.Info("subscription activated",
		Field{Key: "subscription_id", Value: subscriptionID},
		Field{Key: "status", Value: status},
	)
	return nil
}

// RecordCancelled updates the subscription's lifecycle status.
// Cancellation of a subscription this tracker has never recorded is a
// silent no-op: the billing provider is the source of truth, not the
// local store.
func (t *Tracker) RecordCancelled(ctx context.Context, subscriptionID, status string) error {
	existing, err := t.storage.GetSubscription(ctx, subscriptionID)
	if err != nil {
		if err == ErrSubscriptionNotFound {
			t.logger.Debug("cancellation for unknown subscription, ignoring",
				Field{Key: "subscription_id", Value: subscriptionID},
			)
			return nil
		}
		t.metrics.RecordSubscriptionEvent("cancelled", "error")
		return fmt.Errorf("failed to get subscription %s: %w", subscriptionID, err)
	}

	existing.Status = LifecycleStatus(status)
	existing.UpdatedAt = time.Now().UTC()
	if err := t.storage.UpsertSubscription(ctx, existing); err != nil {
		t.metrics.RecordSubscriptionEvent("cancelled", "error")
		return fmt.Errorf("failed to update subscription %s: %w", subscriptionID, err)
	}

	t.metrics.RecordSubscriptionEvent("cancelled", "success")
	t.logger.Info("subscription cancelled",
		Field{Key: "subscription_id", Value: subscriptionID},
		Field{Key: "status", Value: status},
	)
	return nil
}

// RecordUpdated upserts the subscription's lifecycle status, then triggers
// enforcement for the owning account against the new plan. If no account
// references the subscription there is nothing to enforce; that case is
// logged and is not an error. Enforcement failures bubble up so the
// webhook layer can return a retryable status to the provider.
func (t *Tracker) RecordUpdated(ctx context.Context, subscriptionID, planID, status string) error {
	if err := t.upsertLifecycle(ctx, subscriptionID, status); err != nil {
		t.metrics.RecordSubscriptionEvent("updated", "error")
		return err
	}

	acct, err := t.storage.AccountBySubscription(ctx, subscriptionID)
	if err != nil {
		if err == ErrAccountNotFound {
			t.logger.Warn("no account references subscription, skipping enforcement",
				Field{Key: "subscription_id", Value: subscriptionID},
				Field{Key: "plan_id", Value: planID},
			)
			t.metrics.RecordSubscriptionEvent("updated", "success")
			return nil
		}
		t.metrics.RecordSubscriptionEvent("updated", "error")
		return fmt.Errorf("failed to resolve account for subscription %s: %w", subscriptionID, err)
	}

	// Keep the account's plan current before enforcing against it.
	if acct.PlanID != planID {
		acct.PlanID = planID
		if err := t.storage.UpsertAccount(ctx, acct); err != nil {
			t.metrics.RecordSubscriptionEvent("updated", "error")
			return fmt.Errorf("failed to update account %s: %w", acct.ID, err)
		}
	}

	result, err := t.enforcer.Enforce(ctx, acct.ID, planID)
	if err != nil {
		t.metrics.RecordSubscriptionEvent("updated", "error")
		return fmt.Errorf("enforcement failed for account %s: %w", acct.ID, err)
	}

	t.metrics.RecordSubscriptionEvent("updated", "success")
	t.logger.Info("subscription updated",
		Field{Key: "subscription_id", Value: subscriptionID},
		Field{Key: "account_id", Value: acct.ID},
		Field{Key: "plan_id", Value: planID},
		Field{Key: "quota", Value: result.Quota},
		Field{Key: "removed", Value: result.Selected},
	)
	return nil
}

// RecordPayment upserts the fixed ACTIVE/INACTIVE payment sentinel for the
// subscription. Payment events and lifecycle events are different event
// families; the sentinel write path never touches the lifecycle
// vocabulary.
func (t *Tracker) RecordPayment(ctx context.Context, subscriptionID string, outcome PaymentOutcome) error {
	var sentinel string
	switch outcome {
	case PaymentCompleted:
		sentinel = PaymentStatusActive
	case PaymentDenied:
		sentinel = PaymentStatusInactive
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	sub := &Subscription{
		ID:        subscriptionID,
		Status:    Status{Kind: StatusKindPayment, Value: sentinel},
		UpdatedAt: time.Now().UTC(),
	}
	if existing, err := t.storage.GetSubscription(ctx, subscriptionID); err == nil {
		sub.AccountID = existing.AccountID
	}

	if err := t.storage.UpsertSubscription(ctx, sub); err != nil {
		t.metrics.RecordSubscriptionEvent("payment", "error")
		return fmt.Errorf("failed to record payment for subscription %s: %w", subscriptionID, err)
	}

	t.metrics.RecordSubscriptionEvent("payment", "success")
	t.logger.Info("payment recorded",
		Field{Key: "subscription_id", Value: subscriptionID},
		Field{Key: "outcome", Value: string(outcome)},
		Field{Key: "status", Value: sentinel},
	)
	return nil
}

func (t *Tracker) upsertLifecycle(ctx context.Context, subscriptionID, status string) error {
	sub := &Subscription{
		ID:        subscriptionID,
		Status:    LifecycleStatus(status),
		UpdatedAt: time.Now().UTC(),
	}
	if existing, err := t.storage.GetSubscription(ctx, subscriptionID); err == nil {
		sub.AccountID = existing.AccountID
	}

	if err := t.storage.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("failed to upsert subscription %s: %w", subscriptionID, err)
	}
	return nil
}
