package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/slotlinehq/slotline/internal/audit"
	"github.com/slotlinehq/slotline/internal/scheduling/application/commands"
	"github.com/slotlinehq/slotline/internal/scheduling/application/queries"
	"github.com/slotlinehq/slotline/internal/scheduling/application/services"
	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	"github.com/google/uuid"
)

// OpenSlotsReader serves the public open-slots read path. The Redis cache
// decorator and the plain query handler both satisfy it.
type OpenSlotsReader interface {
	Handle(ctx context.Context, query queries.GetOpenSlotsQuery) (*queries.OpenSlotsPageDTO, error)
}

// PageInvalidator drops a cached page after a mutation.
type PageInvalidator interface {
	Invalidate(ctx context.Context, token string)
}

// SchedulingHandler handles scheduling API requests.
type SchedulingHandler struct {
	requestAlternate *commands.RequestAlternateHandler
	selectSlot       *commands.SelectSlotHandler
	recordFailure    *commands.RecordFailureHandler
	resetFailures    *commands.ResetFailuresHandler
	failureSummary   *queries.GetFailureSummaryHandler
	workspaceStats   *queries.GetWorkspaceFailureStatsHandler
	openSlots        OpenSlotsReader
	pageCache        PageInvalidator
	auditRepo        audit.Repository
	logger           *slog.Logger
}

// SchedulingHandlerConfig holds dependencies for the scheduling handler.
type SchedulingHandlerConfig struct {
	RequestAlternate *commands.RequestAlternateHandler
	SelectSlot       *commands.SelectSlotHandler
	RecordFailure    *commands.RecordFailureHandler
	ResetFailures    *commands.ResetFailuresHandler
	FailureSummary   *queries.GetFailureSummaryHandler
	WorkspaceStats   *queries.GetWorkspaceFailureStatsHandler
	OpenSlots        OpenSlotsReader
	PageCache        PageInvalidator // optional
	AuditRepo        audit.Repository
	Logger           *slog.Logger
}

// NewSchedulingHandler creates a new scheduling handler.
func NewSchedulingHandler(cfg SchedulingHandlerConfig) *SchedulingHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SchedulingHandler{
		requestAlternate: cfg.RequestAlternate,
		selectSlot:       cfg.SelectSlot,
		recordFailure:    cfg.RecordFailure,
		resetFailures:    cfg.ResetFailures,
		failureSummary:   cfg.FailureSummary,
		workspaceStats:   cfg.WorkspaceStats,
		openSlots:        cfg.OpenSlots,
		pageCache:        cfg.PageCache,
		auditRepo:        cfg.AuditRepo,
		logger:           cfg.Logger,
	}
}

type requestAlternateRequest struct {
	Comment    string     `json:"comment"`
	RangeStart *time.Time `json:"range_start"`
	RangeEnd   *time.Time `json:"range_end"`
	Prefer     string     `json:"prefer"`
}

type requestAlternateResponse struct {
	ThreadID               uuid.UUID      `json:"thread_id"`
	ProposalVersion        int            `json:"proposal_version"`
	AdditionalProposeCount int            `json:"additional_propose_count"`
	Slots                  []slotRangeDTO `json:"slots,omitempty"`
	MaxReached             bool           `json:"max_reached"`
	AutoOpenSlots          bool           `json:"auto_open_slots"`
	OpenSlotsURL           string         `json:"open_slots_url,omitempty"`
}

type slotRangeDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RequestAlternate handles POST /i/{token}/request-alternate.
func (h *SchedulingHandler) RequestAlternate(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	var req requestAlternateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}
	if req.Prefer == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "prefer is required")
		return
	}

	cmd := commands.RequestAlternateCommand{
		InviteToken: token,
		Comment:     req.Comment,
		Prefer:      services.TimeOfDay(req.Prefer),
	}
	if req.RangeStart != nil {
		cmd.RangeStart = *req.RangeStart
	}
	if req.RangeEnd != nil {
		cmd.RangeEnd = *req.RangeEnd
	}

	result, err := h.requestAlternate.Handle(r.Context(), cmd)
	if err != nil {
		h.writeDomainError(w, err, "request alternate failed")
		return
	}

	resp := requestAlternateResponse{
		ThreadID:               result.ThreadID,
		ProposalVersion:        result.ProposalVersion,
		AdditionalProposeCount: result.AdditionalProposeCount,
		MaxReached:             result.MaxReached,
		AutoOpenSlots:          result.AutoOpenSlots,
		OpenSlotsURL:           result.OpenSlotsURL,
	}
	for _, s := range result.Slots {
		resp.Slots = append(resp.Slots, slotRangeDTO{Start: s.Start, End: s.End})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetOpenSlots handles GET /open/{token}.
func (h *SchedulingHandler) GetOpenSlots(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	page, err := h.openSlots.Handle(r.Context(), queries.GetOpenSlotsQuery{PageToken: token})
	if err != nil {
		h.writeDomainError(w, err, "open slots lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type selectSlotRequest struct {
	SlotID uuid.UUID `json:"slot_id"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
}

type selectSlotResponse struct {
	ThreadID uuid.UUID `json:"thread_id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// SelectSlot handles POST /open/{token}/select.
func (h *SchedulingHandler) SelectSlot(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	var req selectSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}
	if req.SlotID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "bad_request", "slot_id is required")
		return
	}

	result, err := h.selectSlot.Handle(r.Context(), commands.SelectSlotCommand{
		PageToken: token,
		SlotID:    req.SlotID,
		Name:      req.Name,
		Email:     req.Email,
	})
	if err != nil {
		h.writeDomainError(w, err, "slot selection failed")
		return
	}

	if h.pageCache != nil {
		h.pageCache.Invalidate(r.Context(), token)
	}

	writeJSON(w, http.StatusOK, selectSlotResponse{
		ThreadID: result.ThreadID,
		Start:    result.Start,
		End:      result.End,
	})
}

// GetFailureSummary handles GET /api/v1/threads/{threadID}/failures.
func (h *SchedulingHandler) GetFailureSummary(w http.ResponseWriter, r *http.Request) {
	threadID, err := uuid.Parse(r.PathValue("threadID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid thread ID")
		return
	}

	summary, err := h.failureSummary.Handle(r.Context(), queries.GetFailureSummaryQuery{ThreadID: threadID})
	if err != nil {
		h.writeDomainError(w, err, "failure summary lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type recordFailureRequest struct {
	WorkspaceID    uuid.UUID       `json:"workspace_id"`
	ParticipantKey string          `json:"participant_key"`
	FailureType    string          `json:"failure_type"`
	FailureStage   string          `json:"failure_stage"`
	Meta           json.RawMessage `json:"meta"`
}

// RecordFailure handles POST /api/v1/threads/{threadID}/failures.
func (h *SchedulingHandler) RecordFailure(w http.ResponseWriter, r *http.Request) {
	threadID, err := uuid.Parse(r.PathValue("threadID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid thread ID")
		return
	}

	var req recordFailureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}
	if req.WorkspaceID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "bad_request", "workspace_id is required")
		return
	}

	result, err := h.recordFailure.Handle(r.Context(), commands.RecordFailureCommand{
		WorkspaceID:    req.WorkspaceID,
		ThreadID:       threadID,
		ParticipantKey: req.ParticipantKey,
		Type:           domain.FailureType(req.FailureType),
		Stage:          domain.FailureStage(req.FailureStage),
		Meta:           req.Meta,
	})
	if err != nil {
		h.writeDomainError(w, err, "record failure failed")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type resetFailuresResponse struct {
	Deleted int64 `json:"deleted"`
}

// ResetFailures handles DELETE /api/v1/threads/{threadID}/failures.
// Optional query parameters `type` and `participant` narrow the reset.
func (h *SchedulingHandler) ResetFailures(w http.ResponseWriter, r *http.Request) {
	threadID, err := uuid.Parse(r.PathValue("threadID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid thread ID")
		return
	}
	workspaceID, err := uuid.Parse(r.URL.Query().Get("workspace_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "workspace_id is required")
		return
	}

	result, err := h.resetFailures.Handle(r.Context(), commands.ResetFailuresCommand{
		WorkspaceID:    workspaceID,
		ThreadID:       threadID,
		Type:           domain.FailureType(r.URL.Query().Get("type")),
		ParticipantKey: r.URL.Query().Get("participant"),
	})
	if err != nil {
		h.writeDomainError(w, err, "reset failures failed")
		return
	}
	writeJSON(w, http.StatusOK, resetFailuresResponse{Deleted: result.Deleted})
}

type auditEntryDTO struct {
	ID        uuid.UUID       `json:"id"`
	Action    string          `json:"action"`
	Detail    json.RawMessage `json:"detail"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListAuditLog handles GET /api/v1/threads/{threadID}/audit.
func (h *SchedulingHandler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	threadID, err := uuid.Parse(r.PathValue("threadID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid thread ID")
		return
	}

	entries, err := h.auditRepo.ListByThread(r.Context(), threadID, 50)
	if err != nil {
		h.writeDomainError(w, err, "audit log lookup failed")
		return
	}

	dtos := make([]auditEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, auditEntryDTO{
			ID:        e.ID,
			Action:    e.Action,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetWorkspaceFailureStats handles GET /api/v1/workspaces/{workspaceID}/failure-stats.
func (h *SchedulingHandler) GetWorkspaceFailureStats(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(r.PathValue("workspaceID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid workspace ID")
		return
	}

	windowDays := 0
	if raw := r.URL.Query().Get("window_days"); raw != "" {
		windowDays, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "Invalid window_days")
			return
		}
	}

	stats, err := h.workspaceStats.Handle(r.Context(), queries.GetWorkspaceFailureStatsQuery{
		WorkspaceID: workspaceID,
		WindowDays:  windowDays,
	})
	if err != nil {
		h.writeDomainError(w, err, "workspace stats lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// writeDomainError maps domain sentinels onto the HTTP error taxonomy.
// Token-addressed resources that are missing or expired all collapse into
// one generic 404 so the public surface does not leak which case it was.
func (h *SchedulingHandler) writeDomainError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, domain.ErrThreadNotFound),
		errors.Is(err, domain.ErrPageNotFound),
		errors.Is(err, domain.ErrPageExpired):
		writeError(w, http.StatusNotFound, "not_found", "This link is invalid or has expired")

	case errors.Is(err, domain.ErrSlotAlreadySelected):
		writeError(w, http.StatusConflict, "slot_already_selected", "This slot has already been taken")

	case errors.Is(err, domain.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "not_found", "This link is invalid or has expired")

	case errors.Is(err, domain.ErrThreadAlreadyFinalized):
		writeError(w, http.StatusConflict, "already_finalized", "This meeting has already been finalized")

	case errors.Is(err, domain.ErrClaimantRequired),
		errors.Is(err, commands.ErrInvalidFailureType),
		errors.Is(err, commands.ErrInvalidFailureStage),
		errors.Is(err, services.ErrInvalidRange),
		errors.Is(err, services.ErrInvalidTimeOfDay),
		errors.Is(err, services.ErrNoCandidatesInRange):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())

	default:
		h.logger.Error(logMsg, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
