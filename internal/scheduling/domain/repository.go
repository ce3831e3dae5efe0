package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ThreadRepository defines the interface for thread persistence.
type ThreadRepository interface {
	Save(ctx context.Context, thread *Thread) error
	FindByID(ctx context.Context, id uuid.UUID) (*Thread, error)
	FindByInviteToken(ctx context.Context, token string) (*Thread, error)
}

// IncrementFailure is the input for a failure upsert-increment.
type IncrementFailure struct {
	WorkspaceID    uuid.UUID
	ThreadID       uuid.UUID
	ParticipantKey string // defaults to ThreadParticipantKey when empty
	Type           FailureType
	Stage          FailureStage
	Meta           json.RawMessage
}

// FailureRepository defines the interface for thread failure persistence.
//
// Increment must be a single atomic insert-or-update on the natural key
// (workspace, thread, participant key, failure type) so that concurrent
// failures on the same key never drop a count.
type FailureRepository interface {
	Increment(ctx context.Context, inc IncrementFailure) (*ThreadFailure, error)
	ListByThread(ctx context.Context, threadID uuid.UUID) ([]ThreadFailure, error)
	DeleteByThread(ctx context.Context, threadID uuid.UUID) (int64, error)
	DeleteByThreadAndType(ctx context.Context, threadID uuid.UUID, failureType FailureType) (int64, error)
	DeleteByThreadAndParticipant(ctx context.Context, threadID uuid.UUID, participantKey string) (int64, error)
	WorkspaceStats(ctx context.Context, workspaceID uuid.UUID, since time.Time) (*WorkspaceFailureStats, error)
}

// OpenSlotsRepository defines the interface for open-slots page persistence.
//
// ClaimSlot must be an atomic conditional update (claim only if currently
// unclaimed) and return ErrSlotAlreadySelected when the guard fails, so that
// concurrent claimants get exactly one winner.
type OpenSlotsRepository interface {
	Save(ctx context.Context, page *OpenSlotsPage) error
	FindByToken(ctx context.Context, token string) (*OpenSlotsPage, error)
	FindByThreadID(ctx context.Context, threadID uuid.UUID) (*OpenSlotsPage, error)
	ClaimSlot(ctx context.Context, slotID uuid.UUID, name, email string, at time.Time) error
}
