package planguard

import (
	"context"
)

// Storage defines the interface for entitlement persistence.
// All methods use concrete types from this package to avoid import cycles.
// Methods are narrow and scoped to a single account or subscription; no
// implementation may scan or lock across accounts.
type Storage interface {
	// GetAccount retrieves an account by its external identifier.
	// Returns ErrAccountNotFound if the account does not exist.
	GetAccount(ctx context.Context, accountID string) (*Account, error)

	// UpsertAccount inserts or overwrites an account record keyed by ID.
	UpsertAccount(ctx context.Context, acct *Account) error

	// AccountBySubscription resolves the account whose stored subscription
	// identifier matches subscriptionID.
	// Returns ErrAccountNotFound if no account references the subscription.
	AccountBySubscription(ctx context.Context, subscriptionID string) (*Account, error)

	// GetSubscription retrieves a subscription record by identifier.
	// Returns ErrSubscriptionNotFound if the subscription was never recorded.
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// UpsertSubscription inserts or overwrites a subscription record keyed
	// by its identifier and refreshes UpdatedAt. Re-applying the same
	// status must leave the record equivalent (idempotent write).
	UpsertSubscription(ctx context.Context, sub *Subscription) error

	// CreateResource persists a new managed resource and returns the
	// storage-assigned id. Assigned ids are monotonically increasing in
	// creation order.
	CreateResource(ctx context.Context, res *Resource) (int64, error)

	// CountResources returns the number of resources owned by the account.
	CountResources(ctx context.Context, accountID string) (int, error)

	// ListOldestResources returns up to n resources owned by the account,
	// ordered by ascending resource id (oldest first).
	ListOldestResources(ctx context.Context, accountID string, n int) ([]*Resource, error)

	// DeleteResource removes a single resource by id.
	// Returns ErrResourceNotFound if the resource does not exist.
	DeleteResource(ctx context.Context, resourceID int64) error
}
