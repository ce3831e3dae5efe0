package queries

import (
	"context"
	"time"

	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	"github.com/google/uuid"
)

// defaultStatsWindowDays is the trailing window when the query carries none.
const defaultStatsWindowDays = 30

// WorkspaceFailureStatsDTO aggregates failure activity across a workspace.
type WorkspaceFailureStatsDTO struct {
	WorkspaceID         uuid.UUID                  `json:"workspace_id"`
	WindowDays          int                        `json:"window_days"`
	Total               int                        `json:"total"`
	ThreadsWithFailures int                        `json:"threads_with_failures"`
	ByType              map[domain.FailureType]int `json:"by_type"`
}

// GetWorkspaceFailureStatsQuery contains the parameters for workspace stats.
type GetWorkspaceFailureStatsQuery struct {
	WorkspaceID uuid.UUID
	WindowDays  int
}

// GetWorkspaceFailureStatsHandler handles the GetWorkspaceFailureStatsQuery.
type GetWorkspaceFailureStatsHandler struct {
	failureRepo domain.FailureRepository
}

// NewGetWorkspaceFailureStatsHandler creates a new GetWorkspaceFailureStatsHandler.
func NewGetWorkspaceFailureStatsHandler(failureRepo domain.FailureRepository) *GetWorkspaceFailureStatsHandler {
	return &GetWorkspaceFailureStatsHandler{failureRepo: failureRepo}
}

// Handle executes the GetWorkspaceFailureStatsQuery.
func (h *GetWorkspaceFailureStatsHandler) Handle(ctx context.Context, query GetWorkspaceFailureStatsQuery) (*WorkspaceFailureStatsDTO, error) {
	windowDays := query.WindowDays
	if windowDays <= 0 {
		windowDays = defaultStatsWindowDays
	}
	since := time.Now().UTC().AddDate(0, 0, -windowDays)

	stats, err := h.failureRepo.WorkspaceStats(ctx, query.WorkspaceID, since)
	if err != nil {
		return nil, err
	}

	return &WorkspaceFailureStatsDTO{
		WorkspaceID:         stats.WorkspaceID,
		WindowDays:          windowDays,
		Total:               stats.Total,
		ThreadsWithFailures: stats.ThreadsWithFailures,
		ByType:              stats.ByType,
	}, nil
}
