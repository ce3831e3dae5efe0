package queries

import (
	"context"
	"time"

	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	"github.com/google/uuid"
)

// FailureSummaryDTO is the read model for a thread's failure state.
type FailureSummaryDTO struct {
	ThreadID           uuid.UUID                  `json:"thread_id"`
	TotalFailures      int                        `json:"total_failures"`
	UniqueFailureTypes int                        `json:"unique_failure_types"`
	ByType             map[domain.FailureType]int `json:"by_type"`
	TopParticipants    []ParticipantFailuresDTO   `json:"top_participants"`
	LastFailedAt       *time.Time                 `json:"last_failed_at,omitempty"`
	EscalationLevel    int                        `json:"escalation_level"`
}

// ParticipantFailuresDTO is one participant's failure count.
type ParticipantFailuresDTO struct {
	ParticipantKey string `json:"participant_key"`
	Count          int    `json:"count"`
}

// GetFailureSummaryQuery contains the parameters for a thread failure summary.
type GetFailureSummaryQuery struct {
	ThreadID uuid.UUID
}

// GetFailureSummaryHandler handles the GetFailureSummaryQuery.
type GetFailureSummaryHandler struct {
	threadRepo  domain.ThreadRepository
	failureRepo domain.FailureRepository
}

// NewGetFailureSummaryHandler creates a new GetFailureSummaryHandler.
func NewGetFailureSummaryHandler(threadRepo domain.ThreadRepository, failureRepo domain.FailureRepository) *GetFailureSummaryHandler {
	return &GetFailureSummaryHandler{threadRepo: threadRepo, failureRepo: failureRepo}
}

// Handle executes the GetFailureSummaryQuery. A thread with no recorded
// failures yields an empty summary at escalation level zero, not an error.
func (h *GetFailureSummaryHandler) Handle(ctx context.Context, query GetFailureSummaryQuery) (*FailureSummaryDTO, error) {
	if _, err := h.threadRepo.FindByID(ctx, query.ThreadID); err != nil {
		return nil, err
	}

	rows, err := h.failureRepo.ListByThread(ctx, query.ThreadID)
	if err != nil {
		return nil, err
	}

	summary := domain.SummarizeFailures(query.ThreadID, rows)

	participants := make([]ParticipantFailuresDTO, 0, len(summary.TopParticipants))
	for _, p := range summary.TopParticipants {
		participants = append(participants, ParticipantFailuresDTO{
			ParticipantKey: p.ParticipantKey,
			Count:          p.Count,
		})
	}

	return &FailureSummaryDTO{
		ThreadID:           summary.ThreadID,
		TotalFailures:      summary.TotalFailures,
		UniqueFailureTypes: summary.UniqueFailureTypes,
		ByType:             summary.ByType,
		TopParticipants:    participants,
		LastFailedAt:       summary.LastFailedAt,
		EscalationLevel:    summary.EscalationLevel,
	}, nil
}
