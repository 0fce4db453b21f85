package planguard

import (
	"time"
)

// StatusKind discriminates the two status vocabularies carried by a
// subscription record. Lifecycle statuses are provider-native strings
// ("pending", "active", "cancelled", "updated"); payment statuses are the
// fixed ACTIVE/INACTIVE sentinels written by payment events. The two
// families are separate event streams and are never folded into one enum.
type StatusKind string

const (
	// StatusKindLifecycle marks a provider-native subscription lifecycle status
	StatusKindLifecycle StatusKind = "lifecycle"
	// StatusKindPayment marks a payment-outcome sentinel status
	StatusKindPayment StatusKind = "payment"
)

// Status is a tagged subscription status value.
type Status struct {
	Kind  StatusKind
	Value string
}

// LifecycleStatus wraps a provider-native lifecycle status string.
func LifecycleStatus(value string) Status {
	return Status{Kind: StatusKindLifecycle, Value: value}
}

// Payment sentinel values. These are intentionally distinct from the
// lifecycle vocabulary: payment events report billing outcomes, not
// subscription lifecycle transitions.
const (
	PaymentStatusActive   = "ACTIVE"
	PaymentStatusInactive = "INACTIVE"
)

// PaymentOutcome is the closed set of payment event outcomes.
type PaymentOutcome string

const (
	// PaymentCompleted indicates a successfully settled payment
	PaymentCompleted PaymentOutcome = "completed"
	// PaymentDenied indicates a denied or failed payment
	PaymentDenied PaymentOutcome = "denied"
)

// Account is the billing-paying entity, keyed by an external group
// identifier. Accounts are created implicitly the first time a resource or
// subscription references them and are never deleted by this package.
type Account struct {
	// ID is the external account (group) identifier
	ID string

	// SubscriptionID is the billing subscription currently attached to the
	// account (empty if none)
	SubscriptionID string

	// PlanID is the identifier of the account's current plan
	PlanID string
}

// Subscription represents one billing-provider subscription lifecycle.
// There is at most one record per subscription id; writes are upserts.
type Subscription struct {
	// ID is the provider-assigned subscription identifier
	ID string

	// AccountID is the owning account (may be empty if the account link
	// is established separately)
	AccountID string

	// Status is the last recorded status for this subscription
	Status Status

	// UpdatedAt is refreshed on every status write
	UpdatedAt time.Time
}

// Resource is a provisioned unit counted against the account's quota
// (e.g. a managed server instance). IDs are storage-assigned and
// monotonically increasing in creation order; that order is the sole
// eviction ordering key.
type Resource struct {
	ID        int64
	AccountID string
	Name      string
}

// Notification is the intent emitted after an enforcement run that removed
// resources. It is a pure declaration: delivery is the responsibility of
// the Notifier supplied by the caller.
type Notification struct {
	// AccountID is the account that was enforced
	AccountID string

	// NewQuota is the quota the account was brought down to
	NewQuota int

	// RemovedCount is the number of resources selected for removal.
	// This reports the attempted count, not the confirmed count: individual
	// deletion failures are logged but still counted here.
	RemovedCount int
}

// EnforcementResult describes the outcome of a single enforcement run.
type EnforcementResult struct {
	// AccountID is the enforced account
	AccountID string

	// PlanID is the plan the quota was derived from
	PlanID string

	// Quota is the resolved resource quota
	Quota int

	// Selected is the number of resources selected for removal
	Selected int

	// Removed is the number of resources confirmed deleted
	Removed int

	// Failed is the number of individual deletions that failed
	Failed int

	// RemovedIDs lists the ids of the resources selected for removal,
	// oldest first
	RemovedIDs []int64
}

// Config holds tracker and enforcer configuration.
type Config struct {
	// PlanQuotas maps plan identifiers to the maximum number of managed
	// resources an account on that plan may operate
	PlanQuotas map[string]int

	// DefaultQuota is used when a plan id is not present in PlanQuotas.
	// Unknown plans always resolve to this value, never to unlimited and
	// never to an error (default: 1).
	DefaultQuota int

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Metrics is used for tracking enforcement operations (default: NoopMetrics)
	Metrics Metrics

	// Notifier receives the notification intent after an enforcement run
	// that removed resources (default: NoopNotifier)
	Notifier Notifier
}

// DefaultQuotaFallback is the quota applied to unrecognized plan ids when
// Config.DefaultQuota is unset.
const DefaultQuotaFallback = 1
