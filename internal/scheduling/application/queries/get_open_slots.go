package queries

import (
	"context"
	"time"

	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	"github.com/google/uuid"
)

// OpenSlotsPageDTO is the public read model of an open-slots booking page.
// Claimant identities are never exposed, only whether each slot is taken.
type OpenSlotsPageDTO struct {
	Title     string        `json:"title"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Slots     []OpenSlotDTO `json:"slots"`
}

// OpenSlotDTO is one claimable slot on a page.
type OpenSlotDTO struct {
	ID      uuid.UUID `json:"id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Claimed bool      `json:"claimed"`
}

// GetOpenSlotsQuery contains the parameters for fetching a public page.
type GetOpenSlotsQuery struct {
	PageToken string
}

// GetOpenSlotsHandler handles the GetOpenSlotsQuery.
type GetOpenSlotsHandler struct {
	openSlotsRepo domain.OpenSlotsRepository
}

// NewGetOpenSlotsHandler creates a new GetOpenSlotsHandler.
func NewGetOpenSlotsHandler(openSlotsRepo domain.OpenSlotsRepository) *GetOpenSlotsHandler {
	return &GetOpenSlotsHandler{openSlotsRepo: openSlotsRepo}
}

// Handle executes the GetOpenSlotsQuery.
func (h *GetOpenSlotsHandler) Handle(ctx context.Context, query GetOpenSlotsQuery) (*OpenSlotsPageDTO, error) {
	page, err := h.openSlotsRepo.FindByToken(ctx, query.PageToken)
	if err != nil {
		return nil, err
	}
	if page.IsExpired(time.Now().UTC()) {
		return nil, domain.ErrPageExpired
	}

	slots := make([]OpenSlotDTO, 0, len(page.Slots()))
	for _, s := range page.Slots() {
		slots = append(slots, OpenSlotDTO{
			ID:      s.ID,
			Start:   s.Start,
			End:     s.End,
			Claimed: s.Claimed(),
		})
	}

	return &OpenSlotsPageDTO{
		Title:     page.Title(),
		Token:     page.Token(),
		ExpiresAt: page.ExpiresAt(),
		Slots:     slots,
	}, nil
}
