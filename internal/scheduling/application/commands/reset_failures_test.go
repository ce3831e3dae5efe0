package commands

import (
	"context"
	"testing"

	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestResetFailuresHandler_Handle(t *testing.T) {
	workspaceID := uuid.New()
	threadID := uuid.New()

	t.Run("resets all failures of a thread", func(t *testing.T) {
		failureRepo := new(mockFailureRepo)
		auditRepo := new(mockAuditRepo)
		uow := new(mockUnitOfWork)
		handler := NewResetFailuresHandler(failureRepo, auditRepo, uow)

		ctx := context.Background()
		txCtx := context.WithValue(ctx, "tx", "transaction")

		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Commit", txCtx).Return(nil)
		failureRepo.On("DeleteByThread", txCtx, threadID).Return(int64(4), nil)
		auditRepo.On("Append", txCtx, mock.AnythingOfType("audit.Entry")).Return(nil)

		result, err := handler.Handle(ctx, ResetFailuresCommand{
			WorkspaceID: workspaceID,
			ThreadID:    threadID,
		})

		require.NoError(t, err)
		assert.Equal(t, int64(4), result.Deleted)
		failureRepo.AssertExpectations(t)
	})

	t.Run("resets failures of one type", func(t *testing.T) {
		failureRepo := new(mockFailureRepo)
		auditRepo := new(mockAuditRepo)
		uow := new(mockUnitOfWork)
		handler := NewResetFailuresHandler(failureRepo, auditRepo, uow)

		ctx := context.Background()
		txCtx := context.WithValue(ctx, "tx", "transaction")

		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Commit", txCtx).Return(nil)
		failureRepo.On("DeleteByThreadAndType", txCtx, threadID, domain.FailureNoCommonSlot).Return(int64(2), nil)
		auditRepo.On("Append", txCtx, mock.AnythingOfType("audit.Entry")).Return(nil)

		result, err := handler.Handle(ctx, ResetFailuresCommand{
			WorkspaceID: workspaceID,
			ThreadID:    threadID,
			Type:        domain.FailureNoCommonSlot,
		})

		require.NoError(t, err)
		assert.Equal(t, int64(2), result.Deleted)
		failureRepo.AssertNotCalled(t, "DeleteByThread", mock.Anything, mock.Anything)
	})

	t.Run("resets failures of one participant", func(t *testing.T) {
		failureRepo := new(mockFailureRepo)
		auditRepo := new(mockAuditRepo)
		uow := new(mockUnitOfWork)
		handler := NewResetFailuresHandler(failureRepo, auditRepo, uow)

		ctx := context.Background()
		txCtx := context.WithValue(ctx, "tx", "transaction")

		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Commit", txCtx).Return(nil)
		failureRepo.On("DeleteByThreadAndParticipant", txCtx, threadID, "alice@example.com").Return(int64(1), nil)
		auditRepo.On("Append", txCtx, mock.AnythingOfType("audit.Entry")).Return(nil)

		result, err := handler.Handle(ctx, ResetFailuresCommand{
			WorkspaceID:    workspaceID,
			ThreadID:       threadID,
			ParticipantKey: "alice@example.com",
		})

		require.NoError(t, err)
		assert.Equal(t, int64(1), result.Deleted)
	})

	t.Run("rejects an unknown failure type", func(t *testing.T) {
		failureRepo := new(mockFailureRepo)
		auditRepo := new(mockAuditRepo)
		uow := new(mockUnitOfWork)
		handler := NewResetFailuresHandler(failureRepo, auditRepo, uow)

		_, err := handler.Handle(context.Background(), ResetFailuresCommand{
			WorkspaceID: workspaceID,
			ThreadID:    threadID,
			Type:        domain.FailureType("bogus"),
		})

		assert.ErrorIs(t, err, ErrInvalidFailureType)
		uow.AssertNotCalled(t, "Begin", mock.Anything)
	})
}
