package commands

import (
	"context"
	"testing"
	"time"

	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRecordFailureHandler_Handle(t *testing.T) {
	workspaceID := uuid.New()

	t.Run("increments and summarizes", func(t *testing.T) {
		threadRepo := new(mockThreadRepo)
		failureRepo := new(mockFailureRepo)
		auditRepo := new(mockAuditRepo)
		uow := new(mockUnitOfWork)
		handler := NewRecordFailureHandler(threadRepo, failureRepo, auditRepo, uow)

		ctx := context.Background()
		txCtx := context.WithValue(ctx, "tx", "transaction")

		thread := newProposedThread(t)
		now := time.Now().UTC()

		incremented := &domain.ThreadFailure{
			ID:             uuid.New(),
			WorkspaceID:    workspaceID,
			ThreadID:       thread.ID(),
			ParticipantKey: domain.ThreadParticipantKey,
			Type:           domain.FailureNoCommonSlot,
			Stage:          domain.StagePropose,
			Count:          3,
			FirstFailedAt:  now.Add(-time.Hour),
			LastFailedAt:   now,
		}
		rows := []domain.ThreadFailure{
			*incremented,
			{
				ThreadID:       thread.ID(),
				ParticipantKey: "alice@example.com",
				Type:           domain.FailureProposalRejected,
				Count:          1,
				LastFailedAt:   now.Add(-time.Minute),
			},
		}

		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Commit", txCtx).Return(nil)
		threadRepo.On("FindByID", txCtx, thread.ID()).Return(thread, nil)
		failureRepo.On("Increment", txCtx, mock.AnythingOfType("domain.IncrementFailure")).Return(incremented, nil)
		failureRepo.On("ListByThread", txCtx, thread.ID()).Return(rows, nil)
		auditRepo.On("Append", txCtx, mock.AnythingOfType("audit.Entry")).Return(nil)

		result, err := handler.Handle(ctx, RecordFailureCommand{
			WorkspaceID: workspaceID,
			ThreadID:    thread.ID(),
			Type:        domain.FailureNoCommonSlot,
			Stage:       domain.StagePropose,
		})

		require.NoError(t, err)
		assert.Equal(t, 3, result.Failure.Count)
		assert.Equal(t, 4, result.Summary.TotalFailures)
		assert.Equal(t, 2, result.Summary.UniqueFailureTypes)
		assert.Equal(t, domain.EscalationAttention, result.Summary.EscalationLevel)

		uow.AssertExpectations(t)
		failureRepo.AssertExpectations(t)
	})

	t.Run("rejects an unknown failure type", func(t *testing.T) {
		threadRepo := new(mockThreadRepo)
		failureRepo := new(mockFailureRepo)
		auditRepo := new(mockAuditRepo)
		uow := new(mockUnitOfWork)
		handler := NewRecordFailureHandler(threadRepo, failureRepo, auditRepo, uow)

		_, err := handler.Handle(context.Background(), RecordFailureCommand{
			WorkspaceID: workspaceID,
			ThreadID:    uuid.New(),
			Type:        domain.FailureType("bogus"),
			Stage:       domain.StagePropose,
		})

		assert.ErrorIs(t, err, ErrInvalidFailureType)
		uow.AssertNotCalled(t, "Begin", mock.Anything)
	})

	t.Run("rejects an unknown failure stage", func(t *testing.T) {
		threadRepo := new(mockThreadRepo)
		failureRepo := new(mockFailureRepo)
		auditRepo := new(mockAuditRepo)
		uow := new(mockUnitOfWork)
		handler := NewRecordFailureHandler(threadRepo, failureRepo, auditRepo, uow)

		_, err := handler.Handle(context.Background(), RecordFailureCommand{
			WorkspaceID: workspaceID,
			ThreadID:    uuid.New(),
			Type:        domain.FailureManualFail,
			Stage:       domain.FailureStage("bogus"),
		})

		assert.ErrorIs(t, err, ErrInvalidFailureStage)
	})

	t.Run("fails when thread not found", func(t *testing.T) {
		threadRepo := new(mockThreadRepo)
		failureRepo := new(mockFailureRepo)
		auditRepo := new(mockAuditRepo)
		uow := new(mockUnitOfWork)
		handler := NewRecordFailureHandler(threadRepo, failureRepo, auditRepo, uow)

		ctx := context.Background()
		txCtx := context.WithValue(ctx, "tx", "transaction")
		threadID := uuid.New()

		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Rollback", txCtx).Return(nil)
		threadRepo.On("FindByID", txCtx, threadID).Return(nil, domain.ErrThreadNotFound)

		_, err := handler.Handle(ctx, RecordFailureCommand{
			WorkspaceID: workspaceID,
			ThreadID:    threadID,
			Type:        domain.FailureNoCommonSlot,
			Stage:       domain.StagePropose,
		})

		assert.ErrorIs(t, err, domain.ErrThreadNotFound)
		failureRepo.AssertNotCalled(t, "Increment", mock.Anything, mock.Anything)
	})
}
