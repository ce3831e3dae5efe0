package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for audit log persistence.
type Repository interface {
	Append(ctx context.Context, entry Entry) error
	ListByThread(ctx context.Context, threadID uuid.UUID, limit int) ([]Entry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
