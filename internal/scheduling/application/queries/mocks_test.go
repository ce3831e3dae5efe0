package queries

import (
	"context"
	"time"

	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

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
