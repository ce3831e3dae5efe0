// Package audit records state transitions of scheduling threads for
// operational visibility and retention-bounded history.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry is one append-only audit record.
type Entry struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	ThreadID    *uuid.UUID
	Action      string
	Detail      json.RawMessage
	CreatedAt   time.Time
}

// NewEntry creates an audit entry stamped with the current time.
func NewEntry(workspaceID uuid.UUID, threadID *uuid.UUID, action string, detail json.RawMessage) Entry {
	return Entry{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		ThreadID:    threadID,
		Action:      action,
		Detail:      detail,
		CreatedAt:   time.Now().UTC(),
	}
}
