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

func newOpenPage(t *testing.T, thread *domain.Thread, expiresAt time.Time) *domain.OpenSlotsPage {
	t.Helper()
	page, err := domain.NewOpenSlotsPage(
		thread.WorkspaceID(), thread.ID(), thread.Title(), "page-token",
		testSlots(), expiresAt,
	)
	require.NoError(t, err)
	return page
}

func TestSelectSlotHandler_Handle(t *testing.T) {
	t.Run("claims a slot and finalizes the thread", func(t *testing.T) {
		threadRepo := new(mockThreadRepo)
		openSlotsRepo := new(mockOpenSlotsRepo)
		outboxRepo := new(mockOutboxRepo)
		auditRepo := new(mockAuditRepo)
		uow := new(mockUnitOfWork)
		handler := NewSelectSlotHandler(threadRepo, openSlotsRepo, outboxRepo, auditRepo, uow)

		ctx := context.Background()
		txCtx := context.WithValue(ctx, "tx", "transaction")

		thread := threadAtCap(t, 2)
		page := newOpenPage(t, thread, time.Now().Add(24*time.Hour))
		require.NoError(t, thread.Escalate(page.ID()))
		slot := page.Slots()[0]

		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Commit", txCtx).Return(nil)
		openSlotsRepo.On("FindByToken", txCtx, "page-token").Return(page, nil)
		openSlotsRepo.On("ClaimSlot", txCtx, slot.ID, "Ada", "ada@example.com", mock.AnythingOfType("time.Time")).Return(nil)
		threadRepo.On("FindByID", txCtx, thread.ID()).Return(thread, nil)
		threadRepo.On("Save", txCtx, thread).Return(nil)
		outboxRepo.On("SaveBatch", txCtx, mock.AnythingOfType("[]*outbox.Message")).Return(nil)
		auditRepo.On("Append", txCtx, mock.AnythingOfType("audit.Entry")).Return(nil)

		result, err := handler.Handle(ctx, SelectSlotCommand{
			PageToken: "page-token",
			SlotID:    slot.ID,
			Name:      "Ada",
			Email:     "ada@example.com",
		})

		require.NoError(t, err)
		assert.Equal(t, thread.ID(), result.ThreadID)
		assert.Equal(t, slot.Start, result.Start)
		assert.Equal(t, slot.End, result.End)
		assert.Equal(t, domain.ThreadStatusFinalized, thread.Status())
		assert.True(t, slot.Claimed())

		uow.AssertExpectations(t)
		openSlotsRepo.AssertExpectations(t)
		threadRepo.AssertExpectations(t)
	})

	t.Run("rejects an expired page", func(t *testing.T) {
		threadRepo := new(mockThreadRepo)
		openSlotsRepo := new(mockOpenSlotsRepo)
		outboxRepo := new(mockOutboxRepo)
		auditRepo := new(mockAuditRepo)
		uow := new(mockUnitOfWork)
		handler := NewSelectSlotHandler(threadRepo, openSlotsRepo, outboxRepo, auditRepo, uow)

		ctx := context.Background()
		txCtx := context.WithValue(ctx, "tx", "transaction")

		thread := newProposedThread(t)
		page := newOpenPage(t, thread, time.Now().Add(-time.Hour))

		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Rollback", txCtx).Return(nil)
		openSlotsRepo.On("FindByToken", txCtx, "page-token").Return(page, nil)

		_, err := handler.Handle(ctx, SelectSlotCommand{
			PageToken: "page-token",
			SlotID:    page.Slots()[0].ID,
			Name:      "Ada",
			Email:     "ada@example.com",
		})

		assert.ErrorIs(t, err, domain.ErrPageExpired)
		uow.AssertExpectations(t)
	})

	t.Run("rejects an already claimed slot", func(t *testing.T) {
		threadRepo := new(mockThreadRepo)
		openSlotsRepo := new(mockOpenSlotsRepo)
		outboxRepo := new(mockOutboxRepo)
		auditRepo := new(mockAuditRepo)
		uow := new(mockUnitOfWork)
		handler := NewSelectSlotHandler(threadRepo, openSlotsRepo, outboxRepo, auditRepo, uow)

		ctx := context.Background()
		txCtx := context.WithValue(ctx, "tx", "transaction")

		thread := newProposedThread(t)
		page := newOpenPage(t, thread, time.Now().Add(24*time.Hour))
		slot := page.Slots()[0]
		require.NoError(t, page.Claim(slot.ID, "First", "first@example.com", time.Now()))

		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Rollback", txCtx).Return(nil)
		openSlotsRepo.On("FindByToken", txCtx, "page-token").Return(page, nil)

		_, err := handler.Handle(ctx, SelectSlotCommand{
			PageToken: "page-token",
			SlotID:    slot.ID,
			Name:      "Second",
			Email:     "second@example.com",
		})

		assert.ErrorIs(t, err, domain.ErrSlotAlreadySelected)
		openSlotsRepo.AssertNotCalled(t, "ClaimSlot", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("loses the race when the conditional update fails", func(t *testing.T) {
		threadRepo := new(mockThreadRepo)
		openSlotsRepo := new(mockOpenSlotsRepo)
		outboxRepo := new(mockOutboxRepo)
		auditRepo := new(mockAuditRepo)
		uow := new(mockUnitOfWork)
		handler := NewSelectSlotHandler(threadRepo, openSlotsRepo, outboxRepo, auditRepo, uow)

		ctx := context.Background()
		txCtx := context.WithValue(ctx, "tx", "transaction")

		thread := newProposedThread(t)
		page := newOpenPage(t, thread, time.Now().Add(24*time.Hour))
		slot := page.Slots()[0]

		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Rollback", txCtx).Return(nil)
		openSlotsRepo.On("FindByToken", txCtx, "page-token").Return(page, nil)
		openSlotsRepo.On("ClaimSlot", txCtx, slot.ID, "Ada", "ada@example.com", mock.AnythingOfType("time.Time")).
			Return(domain.ErrSlotAlreadySelected)

		_, err := handler.Handle(ctx, SelectSlotCommand{
			PageToken: "page-token",
			SlotID:    slot.ID,
			Name:      "Ada",
			Email:     "ada@example.com",
		})

		assert.ErrorIs(t, err, domain.ErrSlotAlreadySelected)
		threadRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("requires claimant name and email", func(t *testing.T) {
		threadRepo := new(mockThreadRepo)
		openSlotsRepo := new(mockOpenSlotsRepo)
		outboxRepo := new(mockOutboxRepo)
		auditRepo := new(mockAuditRepo)
		uow := new(mockUnitOfWork)
		handler := NewSelectSlotHandler(threadRepo, openSlotsRepo, outboxRepo, auditRepo, uow)

		ctx := context.Background()
		txCtx := context.WithValue(ctx, "tx", "transaction")

		thread := newProposedThread(t)
		page := newOpenPage(t, thread, time.Now().Add(24*time.Hour))

		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Rollback", txCtx).Return(nil)
		openSlotsRepo.On("FindByToken", txCtx, "page-token").Return(page, nil)

		_, err := handler.Handle(ctx, SelectSlotCommand{
			PageToken: "page-token",
			SlotID:    page.Slots()[0].ID,
			Name:      "  ",
			Email:     "",
		})

		assert.ErrorIs(t, err, domain.ErrClaimantRequired)
	})

	t.Run("fails when page not found", func(t *testing.T) {
		threadRepo := new(mockThreadRepo)
		openSlotsRepo := new(mockOpenSlotsRepo)
		outboxRepo := new(mockOutboxRepo)
		auditRepo := new(mockAuditRepo)
		uow := new(mockUnitOfWork)
		handler := NewSelectSlotHandler(threadRepo, openSlotsRepo, outboxRepo, auditRepo, uow)

		ctx := context.Background()
		txCtx := context.WithValue(ctx, "tx", "transaction")

		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Rollback", txCtx).Return(nil)
		openSlotsRepo.On("FindByToken", txCtx, "missing").Return(nil, domain.ErrPageNotFound)

		_, err := handler.Handle(ctx, SelectSlotCommand{
			PageToken: "missing",
			SlotID:    uuid.New(),
			Name:      "Ada",
			Email:     "ada@example.com",
		})

		assert.ErrorIs(t, err, domain.ErrPageNotFound)
	})
}
