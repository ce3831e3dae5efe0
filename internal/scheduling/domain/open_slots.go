package domain

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	sharedDomain "github.com/slotlinehq/slotline/internal/shared/domain"
	"github.com/google/uuid"
)

var (
	ErrPageEmptyTitle      = errors.New("open slots page title cannot be empty")
	ErrPageEmptyToken      = errors.New("open slots page token cannot be empty")
	ErrPageNoSlots         = errors.New("open slots page requires at least one slot")
	ErrPageNotFound        = errors.New("open slots page not found")
	ErrPageExpired         = errors.New("open slots page link has expired")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrSlotAlreadySelected = errors.New("slot already selected")
	ErrClaimantRequired    = errors.New("claimant name and email are required")
)

// SlotRange is a candidate time range proposed for a meeting.
type SlotRange struct {
	Start time.Time
	End   time.Time
}

// OpenSlot is one claimable time range on a public booking page.
// At most one respondent may ever claim a slot.
type OpenSlot struct {
	ID            uuid.UUID
	Start         time.Time
	End           time.Time
	ClaimantName  string
	ClaimantEmail string
	ClaimedAt     *time.Time
}

// Claimed reports whether the slot has been taken.
func (s *OpenSlot) Claimed() bool {
	return s.ClaimedAt != nil
}

// OpenSlotsPage is the public fallback booking page a thread escalates to
// once its re-proposal budget is exhausted.
type OpenSlotsPage struct {
	sharedDomain.BaseAggregateRoot
	workspaceID uuid.UUID
	threadID    uuid.UUID
	title       string
	token       string
	expiresAt   time.Time
	slots       []*OpenSlot
}

// NewOpenSlotsPage creates a public booking page seeded with candidate ranges.
func NewOpenSlotsPage(workspaceID, threadID uuid.UUID, title, token string, ranges []SlotRange, expiresAt time.Time) (*OpenSlotsPage, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrPageEmptyTitle
	}
	if token == "" {
		return nil, ErrPageEmptyToken
	}
	if len(ranges) == 0 {
		return nil, ErrPageNoSlots
	}

	slots := make([]*OpenSlot, 0, len(ranges))
	for _, r := range ranges {
		slots = append(slots, &OpenSlot{
			ID:    uuid.New(),
			Start: r.Start,
			End:   r.End,
		})
	}

	page := &OpenSlotsPage{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		workspaceID:       workspaceID,
		threadID:          threadID,
		title:             title,
		token:             token,
		expiresAt:         expiresAt,
		slots:             slots,
	}

	page.AddDomainEvent(NewOpenSlotsCreated(page))
	return page, nil
}

// Getters
func (p *OpenSlotsPage) WorkspaceID() uuid.UUID { return p.workspaceID }
func (p *OpenSlotsPage) ThreadID() uuid.UUID    { return p.threadID }
func (p *OpenSlotsPage) Title() string          { return p.title }
func (p *OpenSlotsPage) Token() string          { return p.token }
func (p *OpenSlotsPage) ExpiresAt() time.Time   { return p.expiresAt }
func (p *OpenSlotsPage) Slots() []*OpenSlot     { return p.slots }

// IsExpired reports whether the page's validity window has passed.
func (p *OpenSlotsPage) IsExpired(now time.Time) bool {
	return now.After(p.expiresAt)
}

// Slot returns the slot with the given ID, or nil.
func (p *OpenSlotsPage) Slot(slotID uuid.UUID) *OpenSlot {
	for _, s := range p.slots {
		if s.ID == slotID {
			return s
		}
	}
	return nil
}

// Claim transitions a slot from unclaimed to claimed-by(name, email).
// Every claim attempt on an already-claimed slot fails with
// ErrSlotAlreadySelected, even a repeat by the original claimant.
func (p *OpenSlotsPage) Claim(slotID uuid.UUID, name, email string, at time.Time) error {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" {
		return ErrClaimantRequired
	}

	slot := p.Slot(slotID)
	if slot == nil {
		return ErrSlotNotFound
	}
	if slot.Claimed() {
		return ErrSlotAlreadySelected
	}

	slot.ClaimantName = name
	slot.ClaimantEmail = email
	slot.ClaimedAt = &at
	p.Touch()
	p.AddDomainEvent(NewSlotClaimed(p, slot))
	return nil
}

// RehydrateOpenSlotsPage recreates a page from persisted state.
func RehydrateOpenSlotsPage(
	id uuid.UUID,
	workspaceID uuid.UUID,
	threadID uuid.UUID,
	title string,
	token string,
	expiresAt time.Time,
	slots []*OpenSlot,
	createdAt time.Time,
	updatedAt time.Time,
) *OpenSlotsPage {
	baseEntity := sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt)
	baseAggregate := sharedDomain.RehydrateBaseAggregateRoot(baseEntity)

	return &OpenSlotsPage{
		BaseAggregateRoot: baseAggregate,
		workspaceID:       workspaceID,
		threadID:          threadID,
		title:             title,
		token:             token,
		expiresAt:         expiresAt,
		slots:             slots,
	}
}

// NewPageToken generates an opaque token for public page URLs.
func NewPageToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand is documented never to fail on supported platforms
		return uuid.NewString()
	}
	return hex.EncodeToString(buf)
}
