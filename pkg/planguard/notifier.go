package planguard

import "context"

// Notifier receives notification intents produced by the enforcement
// engine. The engine only declares the intent; delivery (chat message,
// ops webhook, email) is the notifier's concern. Delivery failures are
// logged by the engine and never fail the enforcement run.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// NoopNotifier is a no-op implementation of the Notifier interface.
type NoopNotifier struct{}

func (n *NoopNotifier) Notify(_ context.Context, _ Notification) error { return nil }
