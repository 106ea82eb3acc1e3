// Package notify defines the notification contract and the push client
// used by the alert engine. The engine only depends on the Notifier
// interface; the concrete service behind it is replaceable.
package notify

import "context"

// Notifier delivers one notification to one recipient. Implementations
// are stateless per call; failures are reported, never retried here.
type Notifier interface {
	Send(ctx context.Context, recipient, level, title, body, url string) error
}

// Nop discards all notifications. Used in tests and when no push
// service is configured.
type Nop struct{}

// Send implements Notifier.
func (Nop) Send(ctx context.Context, recipient, level, title, body, url string) error {
	return nil
}
