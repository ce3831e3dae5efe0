package commands

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/slotlinehq/slotline/internal/audit"
	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	sharedApplication "github.com/slotlinehq/slotline/internal/shared/application"
	"github.com/google/uuid"
)

var (
	ErrInvalidFailureType  = errors.New("invalid failure type")
	ErrInvalidFailureStage = errors.New("invalid failure stage")
)

// RecordFailureCommand counts one negative outcome against a thread.
type RecordFailureCommand struct {
	WorkspaceID    uuid.UUID
	ThreadID       uuid.UUID
	ParticipantKey string // empty means the failure is thread-wide
	Type           domain.FailureType
	Stage          domain.FailureStage
	Meta           json.RawMessage
}

// RecordFailureResult carries the updated row and the recomputed summary.
type RecordFailureResult struct {
	Failure *domain.ThreadFailure
	Summary domain.FailureSummary
}

// RecordFailureHandler handles the RecordFailureCommand.
type RecordFailureHandler struct {
	threadRepo  domain.ThreadRepository
	failureRepo domain.FailureRepository
	auditRepo   audit.Repository
	uow         sharedApplication.UnitOfWork
}

// NewRecordFailureHandler creates a new RecordFailureHandler.
func NewRecordFailureHandler(
	threadRepo domain.ThreadRepository,
	failureRepo domain.FailureRepository,
	auditRepo audit.Repository,
	uow sharedApplication.UnitOfWork,
) *RecordFailureHandler {
	return &RecordFailureHandler{
		threadRepo:  threadRepo,
		failureRepo: failureRepo,
		auditRepo:   auditRepo,
		uow:         uow,
	}
}

// Handle executes the RecordFailureCommand. The increment itself is a single
// atomic upsert in the repository; the summary is recomputed from all rows of
// the thread inside the same transaction.
func (h *RecordFailureHandler) Handle(ctx context.Context, cmd RecordFailureCommand) (*RecordFailureResult, error) {
	if !cmd.Type.IsValid() {
		return nil, ErrInvalidFailureType
	}
	if !cmd.Stage.IsValid() {
		return nil, ErrInvalidFailureStage
	}

	var result *RecordFailureResult

	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		thread, err := h.threadRepo.FindByID(txCtx, cmd.ThreadID)
		if err != nil {
			return err
		}

		failure, err := h.failureRepo.Increment(txCtx, domain.IncrementFailure{
			WorkspaceID:    cmd.WorkspaceID,
			ThreadID:       cmd.ThreadID,
			ParticipantKey: cmd.ParticipantKey,
			Type:           cmd.Type,
			Stage:          cmd.Stage,
			Meta:           cmd.Meta,
		})
		if err != nil {
			return err
		}

		rows, err := h.failureRepo.ListByThread(txCtx, cmd.ThreadID)
		if err != nil {
			return err
		}
		summary := domain.SummarizeFailures(cmd.ThreadID, rows)

		threadID := thread.ID()
		detail, _ := json.Marshal(map[string]any{
			"failure_type":     cmd.Type,
			"failure_stage":    cmd.Stage,
			"participant_key":  failure.ParticipantKey,
			"count":            failure.Count,
			"escalation_level": summary.EscalationLevel,
		})
		if err := h.auditRepo.Append(txCtx, audit.NewEntry(cmd.WorkspaceID, &threadID, "failure.recorded", detail)); err != nil {
			return err
		}

		result = &RecordFailureResult{
			Failure: failure,
			Summary: summary,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
