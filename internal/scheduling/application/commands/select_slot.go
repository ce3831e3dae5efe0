package commands

import (
	"context"
	"encoding/json"
	"time"

	"github.com/slotlinehq/slotline/internal/audit"
	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	sharedApplication "github.com/slotlinehq/slotline/internal/shared/application"
	"github.com/slotlinehq/slotline/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// SelectSlotCommand is a respondent claiming one slot on a public page.
type SelectSlotCommand struct {
	PageToken string
	SlotID    uuid.UUID
	Name      string
	Email     string
}

// SelectSlotResult reports the finalized meeting time.
type SelectSlotResult struct {
	ThreadID uuid.UUID
	Start    time.Time
	End      time.Time
}

// SelectSlotHandler handles the SelectSlotCommand.
type SelectSlotHandler struct {
	threadRepo    domain.ThreadRepository
	openSlotsRepo domain.OpenSlotsRepository
	outboxRepo    outbox.Repository
	auditRepo     audit.Repository
	uow           sharedApplication.UnitOfWork
}

// NewSelectSlotHandler creates a new SelectSlotHandler.
func NewSelectSlotHandler(
	threadRepo domain.ThreadRepository,
	openSlotsRepo domain.OpenSlotsRepository,
	outboxRepo outbox.Repository,
	auditRepo audit.Repository,
	uow sharedApplication.UnitOfWork,
) *SelectSlotHandler {
	return &SelectSlotHandler{
		threadRepo:    threadRepo,
		openSlotsRepo: openSlotsRepo,
		outboxRepo:    outboxRepo,
		auditRepo:     auditRepo,
		uow:           uow,
	}
}

// Handle executes the SelectSlotCommand.
//
// The claim is first applied on the aggregate for validation, then enforced
// by the repository's conditional update so that two concurrent claimants on
// the same slot get exactly one winner.
func (h *SelectSlotHandler) Handle(ctx context.Context, cmd SelectSlotCommand) (*SelectSlotResult, error) {
	var result *SelectSlotResult

	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		page, err := h.openSlotsRepo.FindByToken(txCtx, cmd.PageToken)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if page.IsExpired(now) {
			return domain.ErrPageExpired
		}

		if err := page.Claim(cmd.SlotID, cmd.Name, cmd.Email, now); err != nil {
			return err
		}
		if err := h.openSlotsRepo.ClaimSlot(txCtx, cmd.SlotID, cmd.Name, cmd.Email, now); err != nil {
			return err
		}

		slot := page.Slot(cmd.SlotID)

		thread, err := h.threadRepo.FindByID(txCtx, page.ThreadID())
		if err != nil {
			return err
		}
		if err := thread.Finalize(slot.Start, slot.End); err != nil {
			return err
		}
		if err := h.threadRepo.Save(txCtx, thread); err != nil {
			return err
		}

		events := append(page.DomainEvents(), thread.DomainEvents()...)
		if err := saveEventsToOutbox(txCtx, h.outboxRepo, events); err != nil {
			return err
		}

		threadID := thread.ID()
		detail, _ := json.Marshal(map[string]any{
			"page_id":    page.ID(),
			"slot_id":    slot.ID,
			"start":      slot.Start,
			"end":        slot.End,
			"claimed_by": cmd.Email,
		})
		if err := h.auditRepo.Append(txCtx, audit.NewEntry(page.WorkspaceID(), &threadID, "slot.claimed", detail)); err != nil {
			return err
		}

		result = &SelectSlotResult{
			ThreadID: thread.ID(),
			Start:    slot.Start,
			End:      slot.End,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
