// Package notifications delivers scheduling events to external channels
// such as Slack, Chatwork, and SMS gateways.
package notifications

import "context"

// Message is a channel-agnostic notification.
type Message struct {
	Subject string
	Body    string
}

// Client sends notifications to one external channel.
type Client interface {
	// Name identifies the channel for logging.
	Name() string

	// Send delivers the message. Implementations bound their own retries.
	Send(ctx context.Context, msg Message) error
}
