package commands

import (
	"context"
	"encoding/json"

	"github.com/slotlinehq/slotline/internal/audit"
	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	sharedApplication "github.com/slotlinehq/slotline/internal/shared/application"
	"github.com/google/uuid"
)

// ResetFailuresCommand clears failure counters on a thread. A non-empty Type
// or ParticipantKey narrows the reset to that scope; otherwise all rows of
// the thread are removed.
type ResetFailuresCommand struct {
	WorkspaceID    uuid.UUID
	ThreadID       uuid.UUID
	Type           domain.FailureType
	ParticipantKey string
}

// ResetFailuresResult reports how many failure rows were deleted.
type ResetFailuresResult struct {
	Deleted int64
}

// ResetFailuresHandler handles the ResetFailuresCommand.
type ResetFailuresHandler struct {
	failureRepo domain.FailureRepository
	auditRepo   audit.Repository
	uow         sharedApplication.UnitOfWork
}

// NewResetFailuresHandler creates a new ResetFailuresHandler.
func NewResetFailuresHandler(
	failureRepo domain.FailureRepository,
	auditRepo audit.Repository,
	uow sharedApplication.UnitOfWork,
) *ResetFailuresHandler {
	return &ResetFailuresHandler{
		failureRepo: failureRepo,
		auditRepo:   auditRepo,
		uow:         uow,
	}
}

// Handle executes the ResetFailuresCommand.
func (h *ResetFailuresHandler) Handle(ctx context.Context, cmd ResetFailuresCommand) (*ResetFailuresResult, error) {
	if cmd.Type != "" && !cmd.Type.IsValid() {
		return nil, ErrInvalidFailureType
	}

	var result *ResetFailuresResult

	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		var (
			deleted int64
			err     error
		)
		switch {
		case cmd.Type != "":
			deleted, err = h.failureRepo.DeleteByThreadAndType(txCtx, cmd.ThreadID, cmd.Type)
		case cmd.ParticipantKey != "":
			deleted, err = h.failureRepo.DeleteByThreadAndParticipant(txCtx, cmd.ThreadID, cmd.ParticipantKey)
		default:
			deleted, err = h.failureRepo.DeleteByThread(txCtx, cmd.ThreadID)
		}
		if err != nil {
			return err
		}

		threadID := cmd.ThreadID
		detail, _ := json.Marshal(map[string]any{
			"failure_type":    cmd.Type,
			"participant_key": cmd.ParticipantKey,
			"deleted":         deleted,
		})
		if err := h.auditRepo.Append(txCtx, audit.NewEntry(cmd.WorkspaceID, &threadID, "failures.reset", detail)); err != nil {
			return err
		}

		result = &ResetFailuresResult{Deleted: deleted}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
