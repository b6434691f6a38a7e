// Package provider defines the notification delivery contract and ships
// the built-in senders: Log, SMTP, and HTTPAPI. All providers receive
// fully rendered content; token substitution happens upstream.
package provider

import "context"

// Message is a fully rendered notification ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Provider delivers a rendered message to a recipient.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name returns a short identifier used in logs and configuration.
	Name() string

	// Send delivers the message. A returned error marks the delivery
	// attempt as failed; the job retries until its attempt budget is
	// exhausted.
	Send(ctx context.Context, msg Message) error
}
