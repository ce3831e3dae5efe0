package commands

import (
	"context"

	sharedDomain "github.com/slotlinehq/slotline/internal/shared/domain"
	"github.com/slotlinehq/slotline/internal/shared/infrastructure/outbox"
)

// saveEventsToOutbox stores domain events as outbox messages inside the
// current transaction so they publish atomically with the state change.
func saveEventsToOutbox(ctx context.Context, repo outbox.Repository, events []sharedDomain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]*outbox.Message, 0, len(events))
	for _, event := range events {
		msg, err := outbox.NewMessage(event)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return repo.SaveBatch(ctx, msgs)
}
