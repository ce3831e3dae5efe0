package domain

import (
	"errors"
	"strings"
	"time"

	sharedDomain "github.com/slotlinehq/slotline/internal/shared/domain"
	"github.com/google/uuid"
)

var (
	ErrThreadNotFound         = errors.New("thread not found")
	ErrThreadEmptyTitle       = errors.New("thread title cannot be empty")
	ErrThreadNoInvitees       = errors.New("thread requires at least one invitee")
	ErrThreadEmptyToken       = errors.New("thread invite token cannot be empty")
	ErrThreadNotReproposable  = errors.New("thread is not open for re-proposal")
	ErrThreadAlreadyFinalized = errors.New("thread is already finalized")
)

// ThreadStatus describes where a scheduling negotiation currently stands.
type ThreadStatus string

const (
	ThreadStatusProposed  ThreadStatus = "proposed"
	ThreadStatusEscalated ThreadStatus = "escalated"
	ThreadStatusFinalized ThreadStatus = "finalized"
	ThreadStatusExpired   ThreadStatus = "expired"
)

// IsValid checks if the status is supported.
func (s ThreadStatus) IsValid() bool {
	switch s {
	case ThreadStatusProposed, ThreadStatusEscalated, ThreadStatusFinalized, ThreadStatusExpired:
		return true
	default:
		return false
	}
}

// Thread represents a scheduling negotiation between an organizer and invitees.
//
// Re-proposal bookkeeping lives here: proposalVersion increments on every
// round of candidate slots, additionalProposeCount tracks how many rounds
// happened beyond the original proposal and is compared against a fixed cap
// to decide when the thread escalates to a public open-slots page.
type Thread struct {
	sharedDomain.BaseAggregateRoot
	workspaceID            uuid.UUID
	organizerID            uuid.UUID
	title                  string
	inviteeEmails          []string
	status                 ThreadStatus
	proposalVersion        int
	additionalProposeCount int
	inviteToken            string
	openSlotsPageID        *uuid.UUID
	finalStart             *time.Time
	finalEnd               *time.Time
}

// NewThread creates a new scheduling thread in the proposed state.
func NewThread(workspaceID, organizerID uuid.UUID, title string, inviteeEmails []string, inviteToken string) (*Thread, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrThreadEmptyTitle
	}
	if len(inviteeEmails) == 0 {
		return nil, ErrThreadNoInvitees
	}
	if inviteToken == "" {
		return nil, ErrThreadEmptyToken
	}

	thread := &Thread{
		BaseAggregateRoot:      sharedDomain.NewBaseAggregateRoot(),
		workspaceID:            workspaceID,
		organizerID:            organizerID,
		title:                  title,
		inviteeEmails:          inviteeEmails,
		status:                 ThreadStatusProposed,
		proposalVersion:        1,
		additionalProposeCount: 0,
		inviteToken:            inviteToken,
	}

	thread.AddDomainEvent(NewThreadCreated(thread))
	return thread, nil
}

// Getters
func (t *Thread) WorkspaceID() uuid.UUID      { return t.workspaceID }
func (t *Thread) OrganizerID() uuid.UUID      { return t.organizerID }
func (t *Thread) Title() string               { return t.title }
func (t *Thread) InviteeEmails() []string     { return t.inviteeEmails }
func (t *Thread) Status() ThreadStatus        { return t.status }
func (t *Thread) ProposalVersion() int        { return t.proposalVersion }
func (t *Thread) AdditionalProposeCount() int { return t.additionalProposeCount }
func (t *Thread) InviteToken() string         { return t.inviteToken }
func (t *Thread) OpenSlotsPageID() *uuid.UUID { return t.openSlotsPageID }
func (t *Thread) FinalStart() *time.Time      { return t.finalStart }
func (t *Thread) FinalEnd() *time.Time        { return t.finalEnd }

// CanRepropose reports whether another same-thread re-proposal is allowed
// under the given cap. The comparison is strict: once the counter reaches
// the cap, every further request-alternate call escalates.
func (t *Thread) CanRepropose(maxAdditionalProposals int) bool {
	return t.status == ThreadStatusProposed && t.additionalProposeCount < maxAdditionalProposals
}

// RecordReproposal applies one re-proposal round: both the additional
// proposal counter and the proposal version advance by exactly one.
func (t *Thread) RecordReproposal() error {
	if t.status != ThreadStatusProposed {
		return ErrThreadNotReproposable
	}
	t.additionalProposeCount++
	t.proposalVersion++
	t.Touch()
	t.AddDomainEvent(NewThreadReproposed(t))
	return nil
}

// Escalate moves the thread to the escalated state, linked to an open-slots
// page. Escalating an already-escalated thread is a no-op so that repeated
// request-alternate calls past the cap reuse the existing page.
func (t *Thread) Escalate(pageID uuid.UUID) error {
	if t.status == ThreadStatusFinalized {
		return ErrThreadAlreadyFinalized
	}
	if t.status == ThreadStatusEscalated {
		return nil
	}
	t.status = ThreadStatusEscalated
	t.openSlotsPageID = &pageID
	t.Touch()
	t.AddDomainEvent(NewThreadEscalated(t))
	return nil
}

// Finalize confirms the thread on the given time range.
func (t *Thread) Finalize(start, end time.Time) error {
	if t.status == ThreadStatusFinalized {
		return ErrThreadAlreadyFinalized
	}
	t.status = ThreadStatusFinalized
	t.finalStart = &start
	t.finalEnd = &end
	t.Touch()
	t.AddDomainEvent(NewThreadFinalized(t))
	return nil
}

// Expire marks the thread's invite as lapsed.
func (t *Thread) Expire() {
	if t.status == ThreadStatusFinalized || t.status == ThreadStatusExpired {
		return
	}
	t.status = ThreadStatusExpired
	t.Touch()
}

// RehydrateThread recreates a thread from persisted state.
func RehydrateThread(
	id uuid.UUID,
	workspaceID uuid.UUID,
	organizerID uuid.UUID,
	title string,
	inviteeEmails []string,
	status ThreadStatus,
	proposalVersion int,
	additionalProposeCount int,
	inviteToken string,
	openSlotsPageID *uuid.UUID,
	finalStart *time.Time,
	finalEnd *time.Time,
	createdAt time.Time,
	updatedAt time.Time,
) *Thread {
	baseEntity := sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt)
	baseAggregate := sharedDomain.RehydrateBaseAggregateRoot(baseEntity)

	return &Thread{
		BaseAggregateRoot:      baseAggregate,
		workspaceID:            workspaceID,
		organizerID:            organizerID,
		title:                  title,
		inviteeEmails:          inviteeEmails,
		status:                 status,
		proposalVersion:        proposalVersion,
		additionalProposeCount: additionalProposeCount,
		inviteToken:            inviteToken,
		openSlotsPageID:        openSlotsPageID,
		finalStart:             finalStart,
		finalEnd:               finalEnd,
	}
}
