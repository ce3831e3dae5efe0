package domain

import (
	sharedDomain "github.com/slotlinehq/slotline/internal/shared/domain"
	"github.com/google/uuid"
)

const (
	threadAggregateType = "Thread"
	pageAggregateType   = "OpenSlotsPage"
)

// ThreadCreated is emitted when a scheduling thread is created.
type ThreadCreated struct {
	sharedDomain.BaseEvent
	ThreadID    uuid.UUID `json:"thread_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Title       string    `json:"title"`
}

// NewThreadCreated creates a ThreadCreated event.
func NewThreadCreated(t *Thread) *ThreadCreated {
	return &ThreadCreated{
		BaseEvent:   sharedDomain.NewBaseEvent(t.ID(), threadAggregateType, "scheduling.thread.created"),
		ThreadID:    t.ID(),
		WorkspaceID: t.WorkspaceID(),
		Title:       t.Title(),
	}
}

// ThreadReproposed is emitted when a new round of candidate slots is offered.
type ThreadReproposed struct {
	sharedDomain.BaseEvent
	ThreadID               uuid.UUID `json:"thread_id"`
	WorkspaceID            uuid.UUID `json:"workspace_id"`
	ProposalVersion        int       `json:"proposal_version"`
	AdditionalProposeCount int       `json:"additional_propose_count"`
}

// NewThreadReproposed creates a ThreadReproposed event.
func NewThreadReproposed(t *Thread) *ThreadReproposed {
	return &ThreadReproposed{
		BaseEvent:              sharedDomain.NewBaseEvent(t.ID(), threadAggregateType, "scheduling.thread.reproposed"),
		ThreadID:               t.ID(),
		WorkspaceID:            t.WorkspaceID(),
		ProposalVersion:        t.ProposalVersion(),
		AdditionalProposeCount: t.AdditionalProposeCount(),
	}
}

// ThreadEscalated is emitted when a thread's re-proposal budget is exhausted
// and it falls back to a public open-slots page.
type ThreadEscalated struct {
	sharedDomain.BaseEvent
	ThreadID        uuid.UUID `json:"thread_id"`
	WorkspaceID     uuid.UUID `json:"workspace_id"`
	OpenSlotsPageID uuid.UUID `json:"open_slots_page_id"`
}

// NewThreadEscalated creates a ThreadEscalated event.
func NewThreadEscalated(t *Thread) *ThreadEscalated {
	var pageID uuid.UUID
	if t.OpenSlotsPageID() != nil {
		pageID = *t.OpenSlotsPageID()
	}
	return &ThreadEscalated{
		BaseEvent:       sharedDomain.NewBaseEvent(t.ID(), threadAggregateType, "scheduling.thread.escalated"),
		ThreadID:        t.ID(),
		WorkspaceID:     t.WorkspaceID(),
		OpenSlotsPageID: pageID,
	}
}

// ThreadFinalized is emitted when a thread is confirmed on a time range.
type ThreadFinalized struct {
	sharedDomain.BaseEvent
	ThreadID    uuid.UUID `json:"thread_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Title       string    `json:"title"`
}

// NewThreadFinalized creates a ThreadFinalized event.
func NewThreadFinalized(t *Thread) *ThreadFinalized {
	return &ThreadFinalized{
		BaseEvent:   sharedDomain.NewBaseEvent(t.ID(), threadAggregateType, "scheduling.thread.finalized"),
		ThreadID:    t.ID(),
		WorkspaceID: t.WorkspaceID(),
		Title:       t.Title(),
	}
}

// OpenSlotsCreated is emitted when a public booking page is created.
type OpenSlotsCreated struct {
	sharedDomain.BaseEvent
	PageID    uuid.UUID `json:"page_id"`
	ThreadID  uuid.UUID `json:"thread_id"`
	SlotCount int       `json:"slot_count"`
}

// NewOpenSlotsCreated creates an OpenSlotsCreated event.
func NewOpenSlotsCreated(p *OpenSlotsPage) *OpenSlotsCreated {
	return &OpenSlotsCreated{
		BaseEvent: sharedDomain.NewBaseEvent(p.ID(), pageAggregateType, "scheduling.openslots.created"),
		PageID:    p.ID(),
		ThreadID:  p.ThreadID(),
		SlotCount: len(p.Slots()),
	}
}

// SlotClaimed is emitted when a respondent claims an open slot.
type SlotClaimed struct {
	sharedDomain.BaseEvent
	PageID        uuid.UUID `json:"page_id"`
	ThreadID      uuid.UUID `json:"thread_id"`
	SlotID        uuid.UUID `json:"slot_id"`
	ClaimantName  string    `json:"claimant_name"`
	ClaimantEmail string    `json:"claimant_email"`
}

// NewSlotClaimed creates a SlotClaimed event.
func NewSlotClaimed(p *OpenSlotsPage, slot *OpenSlot) *SlotClaimed {
	return &SlotClaimed{
		BaseEvent:     sharedDomain.NewBaseEvent(p.ID(), pageAggregateType, "scheduling.openslots.slot_claimed"),
		PageID:        p.ID(),
		ThreadID:      p.ThreadID(),
		SlotID:        slot.ID,
		ClaimantName:  slot.ClaimantName,
		ClaimantEmail: slot.ClaimantEmail,
	}
}
