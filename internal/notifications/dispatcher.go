package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/slotlinehq/slotline/internal/shared/infrastructure/eventbus"
)

// Dispatcher consumes scheduling events and fans them out to all configured
// channels. Delivery is fire-and-forget: channel failures are logged but
// never propagated, so a dead webhook cannot stall event consumption.
type Dispatcher struct {
	clients []Client
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher over the given channels.
func NewDispatcher(clients []Client, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{clients: clients, logger: logger}
}

// EventTypes returns the routing keys the dispatcher subscribes to.
func (d *Dispatcher) EventTypes() []string {
	return []string{
		"scheduling.thread.escalated",
		"scheduling.thread.finalized",
		"scheduling.openslots.slot_claimed",
	}
}

// Handle builds a channel message for the event and sends it everywhere.
// It always returns nil.
func (d *Dispatcher) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	msg, ok := d.messageFor(event)
	if !ok {
		return nil
	}

	for _, client := range d.clients {
		if err := client.Send(ctx, msg); err != nil {
			d.logger.Warn("notification delivery failed",
				slog.String("channel", client.Name()),
				slog.String("routing_key", event.RoutingKey),
				slog.String("event_id", event.EventID.String()),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func (d *Dispatcher) messageFor(event *eventbus.ConsumedEvent) (Message, bool) {
	switch event.RoutingKey {
	case "scheduling.thread.escalated":
		var payload struct {
			ThreadID string `json:"thread_id"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			d.logger.Warn("malformed event payload", slog.String("routing_key", event.RoutingKey))
			return Message{}, false
		}
		return Message{
			Subject: "Scheduling thread escalated",
			Body:    fmt.Sprintf("Thread %s exhausted its re-proposal budget; an open-slots page is now live.", payload.ThreadID),
		}, true

	case "scheduling.thread.finalized":
		var payload struct {
			ThreadID string `json:"thread_id"`
			Title    string `json:"title"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			d.logger.Warn("malformed event payload", slog.String("routing_key", event.RoutingKey))
			return Message{}, false
		}
		return Message{
			Subject: "Meeting finalized",
			Body:    fmt.Sprintf("%q (thread %s) is confirmed.", payload.Title, payload.ThreadID),
		}, true

	case "scheduling.openslots.slot_claimed":
		var payload struct {
			ThreadID     string `json:"thread_id"`
			ClaimantName string `json:"claimant_name"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			d.logger.Warn("malformed event payload", slog.String("routing_key", event.RoutingKey))
			return Message{}, false
		}
		return Message{
			Subject: "Open slot claimed",
			Body:    fmt.Sprintf("%s picked a slot for thread %s.", payload.ClaimantName, payload.ThreadID),
		}, true
	}
	return Message{}, false
}
