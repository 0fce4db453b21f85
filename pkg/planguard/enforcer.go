package planguard

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Enforcer brings an account's provisioned resource count down to its
// plan's quota. Removal selection is deterministic (oldest first, by
// resource id), runs for the same account are serialized, and individual
// deletion failures never abort the rest of the batch.
type Enforcer struct {
	storage  Storage
	config   Config
	logger   Logger
	metrics  Metrics
	notifier Notifier
	locks    *keyedMutex
}

// NewEnforcer creates a new enforcement engine with the given storage and
// configuration.
func NewEnforcer(storage Storage, config Config) (*Enforcer, error) {
	if storage == nil {
		return nil, ErrStorageUnavailable
	}

	if config.DefaultQuota <= 0 {
		config.DefaultQuota = DefaultQuotaFallback
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	if config.Notifier == nil {
		config.Notifier = &NoopNotifier{}
	}

	return &Enforcer{
		storage:  storage,
		config:   config,
		logger:   config.Logger,
		metrics:  config.Metrics,
		notifier: config.Notifier,
		locks:    newKeyedMutex(),
	}, nil
}

// QuotaForPlan resolves the resource quota for a plan id. Unknown plan ids
// resolve to the configured default quota, never to unlimited and never to
// an error, so enforcement is never silently skipped for an unrecognized
// plan.
func (e *Enforcer) QuotaForPlan(planID string) int {
	if quota, ok := e.config.PlanQuotas[planID]; ok {
		return quota
	}
	return e.config.DefaultQuota
}

// Enforce brings the account's resource count down to the quota of planID.
//
// Runs for the same account are mutually exclusive: a duplicate webhook
// delivery that triggers a concurrent run waits for the first one to
// finish and then observes the post-eviction count, so the pair can never
// over-evict. Accounts within quota short-circuit without issuing any
// deletes or notifications.
func (e *Enforcer) Enforce(ctx context.Context, accountID, planID string) (*EnforcementResult, error) {
	start := time.Now()
	defer func() {
		e.metrics.RecordEnforcementDuration(planID, time.Since(start))
	}()

	unlock := e.locks.lock(accountID)
	defer unlock()

	quota := e.QuotaForPlan(planID)
	result := &EnforcementResult{
		AccountID: accountID,
		PlanID:    planID,
		Quota:     quota,
	}

	count, err := e.storage.CountResources(ctx, accountID)
	if err != nil {
		e.metrics.RecordEnforcement(planID, "error")
		return nil, fmt.Errorf("failed to count resources for account %s: %w", accountID, err)
	}

	excess := count - quota
	if excess <= 0 {
		// Common case: account is within quota. No deletes, no notification.
		e.metrics.RecordEnforcement(planID, "noop")
		e.logger.Debug("account within quota",
			Field{Key: "account_id", Value: accountID},
			Field{Key: "plan_id", Value: planID},
			Field{Key: "count", Value: count},
			Field{Key: "quota", Value: quota},
		)
		return result, nil
	}

	victims, err := e.storage.ListOldestResources(ctx, accountID, excess)
	if err != nil {
		e.metrics.RecordEnforcement(planID, "error")
		return nil, fmt.Errorf("failed to list resources for account %s: %w", accountID, err)
	}

	result.Selected = len(victims)
	for _, res := range victims {
		result.RemovedIDs = append(result.RemovedIDs, res.ID)
		if err := e.storage.DeleteResource(ctx, res.ID); err != nil {
			// A partial downgrade beats none: log and keep deleting.
			result.Failed++
			e.logger.Error("failed to delete resource",
				Field{Key: "account_id", Value: accountID},
				Field{Key: "resource_id", Value: res.ID},
				Field{Key: "resource_name", Value: res.Name},
				Field{Key: "error", Value: err.Error()},
			)
			continue
		}
		result.Removed++
		e.logger.Info("removed excess resource",
			Field{Key: "account_id", Value: accountID},
			Field{Key: "resource_id", Value: res.ID},
			Field{Key: "resource_name", Value: res.Name},
		)
	}

	e.metrics.RecordEnforcement(planID, "evicted")
	e.metrics.RecordResourcesRemoved(planID, result.Selected, result.Failed)

	// The notification reports the attempted removal count, including
	// deletions that subsequently failed (those are surfaced in the logs).
	notification := Notification{
		AccountID:    accountID,
		NewQuota:     quota,
		RemovedCount: result.Selected,
	}
	if err := e.notifier.Notify(ctx, notification); err != nil {
		e.metrics.RecordNotification("error")
		e.logger.Error("notification delivery failed",
			Field{Key: "account_id", Value: accountID},
			Field{Key: "error", Value: err.Error()},
		)
	} else {
		e.metrics.RecordNotification("success")
	}

	return result, nil
}

// Capacity reports the account's current resource count and the quota of
// its current plan. Accounts without a stored record are measured against
// the default quota; their resources still count, since resources exist
// independently of account rows. Used by the provisioning-guard middleware
// to refuse new resources once an account is at quota.
func (e *Enforcer) Capacity(ctx context.Context, accountID string) (used, quota int, err error) {
	quota = e.config.DefaultQuota
	acct, err := e.storage.GetAccount(ctx, accountID)
	switch {
	case err == nil:
		quota = e.QuotaForPlan(acct.PlanID)
	case err == ErrAccountNotFound:
		// fall through to the count with the default quota
	default:
		return 0, 0, fmt.Errorf("failed to get account %s: %w", accountID, err)
	}

	used, err = e.storage.CountResources(ctx, accountID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count resources for account %s: %w", accountID, err)
	}
	return used, quota, nil
}

// keyedMutex serializes work per string key. Entries are reference-counted
// and removed when the last holder unlocks, so the map does not grow with
// the number of accounts ever seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*lockEntry)}
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
