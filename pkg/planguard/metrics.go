package planguard

import "time"

// Metrics defines the interface for tracking tracker and enforcer
// operations. All methods are optional; a nil Metrics in Config is
// replaced with NoopMetrics.
type Metrics interface {
	// RecordSubscriptionEvent records a subscription status write.
	// operation: "activated", "cancelled", "updated", "payment"
	// status: "success" or "error"
	RecordSubscriptionEvent(operation, status string)

	// RecordEnforcement records the outcome of an enforcement run.
	// outcome: "noop" (within quota), "evicted", or "error"
	RecordEnforcement(planID, outcome string)

	// RecordEnforcementDuration records how long an enforcement run took.
	RecordEnforcementDuration(planID string, duration time.Duration)

	// RecordResourcesRemoved records how many resources one run selected
	// for removal and how many deletions failed.
	RecordResourcesRemoved(planID string, selected, failed int)

	// RecordNotification records a notification delivery attempt.
	// status: "success" or "error"
	RecordNotification(status string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordSubscriptionEvent(_, _ string)                  {}
func (n *NoopMetrics) RecordEnforcement(_, _ string)                        {}
func (n *NoopMetrics) RecordEnforcementDuration(_ string, _ time.Duration)  {}
func (n *NoopMetrics) RecordResourcesRemoved(_ string, _, _ int)            {}
func (n *NoopMetrics) RecordNotification(_ string)                          {}
