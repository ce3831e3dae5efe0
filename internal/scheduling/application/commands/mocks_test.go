package commands

import (
	"context"
	"time"

	"github.com/slotlinehq/slotline/internal/audit"
	"github.com/slotlinehq/slotline/internal/scheduling/application/services"
	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	"github.com/slotlinehq/slotline/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// mockThreadRepo is a mock implementation of domain.ThreadRepository.
type mockThreadRepo struct {
	mock.Mock
}

func (m *mockThreadRepo) Save(ctx context.Context, thread *domain.Thread) error {
	args := m.Called(ctx, thread)
	return args.Error(0)
}

func (m *mockThreadRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Thread, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Thread), args.Error(1)
}

func (m *mockThreadRepo) FindByInviteToken(ctx context.Context, token string) (*domain.Thread, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Thread), args.Error(1)
}

// mockOpenSlotsRepo is a mock implementation of domain.OpenSlotsRepository.
type mockOpenSlotsRepo struct {
	mock.Mock
}

func (m *mockOpenSlotsRepo) Save(ctx context.Context, page *domain.OpenSlotsPage) error {
	args := m.Called(ctx, page)
	return args.Error(0)
}

func (m *mockOpenSlotsRepo) FindByToken(ctx context.Context, token string) (*domain.OpenSlotsPage, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OpenSlotsPage), args.Error(1)
}

func (m *mockOpenSlotsRepo) FindByThreadID(ctx context.Context, threadID uuid.UUID) (*domain.OpenSlotsPage, error) {
	args := m.Called(ctx, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OpenSlotsPage), args.Error(1)
}

func (m *mockOpenSlotsRepo) ClaimSlot(ctx context.Context, slotID uuid.UUID, name, email string, at time.Time) error {
	args := m.Called(ctx, slotID, name, email, at)
	return args.Error(0)
}

// mockFailureRepo is a mock implementation of domain.FailureRepository.
type mockFailureRepo struct {
	mock.Mock
}

func (m *mockFailureRepo) Increment(ctx context.Context, inc domain.IncrementFailure) (*domain.ThreadFailure, error) {
	args := m.Called(ctx, inc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ThreadFailure), args.Error(1)
}

func (m *mockFailureRepo) ListByThread(ctx context.Context, threadID uuid.UUID) ([]domain.ThreadFailure, error) {
	args := m.Called(ctx, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ThreadFailure), args.Error(1)
}

func (m *mockFailureRepo) DeleteByThread(ctx context.Context, threadID uuid.UUID) (int64, error) {
	args := m.Called(ctx, threadID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockFailureRepo) DeleteByThreadAndType(ctx context.Context, threadID uuid.UUID, failureType domain.FailureType) (int64, error) {
	args := m.Called(ctx, threadID, failureType)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockFailureRepo) DeleteByThreadAndParticipant(ctx context.Context, threadID uuid.UUID, participantKey string) (int64, error) {
	args := m.Called(ctx, threadID, participantKey)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockFailureRepo) WorkspaceStats(ctx context.Context, workspaceID uuid.UUID, since time.Time) (*domain.WorkspaceFailureStats, error) {
	args := m.Called(ctx, workspaceID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WorkspaceFailureStats), args.Error(1)
}

// mockOutboxRepo is a mock implementation of outbox.Repository.
type mockOutboxRepo struct {
	mock.Mock
}

func (m *mockOutboxRepo) Save(ctx context.Context, msg *outbox.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockOutboxRepo) SaveBatch(ctx context.Context, msgs []*outbox.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockOutboxRepo) GetUnpublished(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *mockOutboxRepo) MarkPublished(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockOutboxRepo) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	args := m.Called(ctx, id, errMsg, nextRetryAt)
	return args.Error(0)
}

func (m *mockOutboxRepo) MarkDead(ctx context.Context, id int64, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *mockOutboxRepo) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	args := m.Called(ctx, olderThanDays)
	return args.Get(0).(int64), args.Error(1)
}

// mockAuditRepo is a mock implementation of audit.Repository.
type mockAuditRepo struct {
	mock.Mock
}

func (m *mockAuditRepo) Append(ctx context.Context, entry audit.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockAuditRepo) ListByThread(ctx context.Context, threadID uuid.UUID, limit int) ([]audit.Entry, error) {
	args := m.Called(ctx, threadID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.Entry), args.Error(1)
}

func (m *mockAuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// mockUnitOfWork is a mock implementation of application.UnitOfWork.
type mockUnitOfWork struct {
	mock.Mock
}

func (m *mockUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(context.Context), args.Error(1)
}

func (m *mockUnitOfWork) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockUnitOfWork) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// mockGenerator is a mock implementation of services.CandidateGenerator.
type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, req services.CandidateRequest) ([]domain.SlotRange, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SlotRange), args.Error(1)
}
