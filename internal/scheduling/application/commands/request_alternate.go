package commands

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/slotlinehq/slotline/internal/audit"
	"github.com/slotlinehq/slotline/internal/scheduling/application/services"
	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	sharedApplication "github.com/slotlinehq/slotline/internal/shared/application"
	sharedDomain "github.com/slotlinehq/slotline/internal/shared/domain"
	"github.com/slotlinehq/slotline/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// RequestAlternateCommand is an invitee asking for different candidate slots.
type RequestAlternateCommand struct {
	InviteToken string
	Comment     string
	RangeStart  time.Time
	RangeEnd    time.Time
	Prefer      services.TimeOfDay
}

// RequestAlternateResult reports what the request produced: either a fresh
// round of candidate slots, or an escalation to a public open-slots page once
// the re-proposal budget is spent.
type RequestAlternateResult struct {
	ThreadID               uuid.UUID
	ProposalVersion        int
	AdditionalProposeCount int
	Slots                  []domain.SlotRange
	MaxReached             bool
	AutoOpenSlots          bool
	OpenSlotsURL           string
	OpenSlotsToken         string
}

// RequestAlternateConfig tunes escalation behavior.
type RequestAlternateConfig struct {
	MaxAdditionalProposals int
	OpenSlotsTTL           time.Duration
	PublicBaseURL          string
}

// RequestAlternateHandler handles the RequestAlternateCommand.
type RequestAlternateHandler struct {
	threadRepo    domain.ThreadRepository
	openSlotsRepo domain.OpenSlotsRepository
	outboxRepo    outbox.Repository
	auditRepo     audit.Repository
	generator     services.CandidateGenerator
	uow           sharedApplication.UnitOfWork
	config        RequestAlternateConfig
}

// NewRequestAlternateHandler creates a new RequestAlternateHandler.
func NewRequestAlternateHandler(
	threadRepo domain.ThreadRepository,
	openSlotsRepo domain.OpenSlotsRepository,
	outboxRepo outbox.Repository,
	auditRepo audit.Repository,
	generator services.CandidateGenerator,
	uow sharedApplication.UnitOfWork,
	config RequestAlternateConfig,
) *RequestAlternateHandler {
	return &RequestAlternateHandler{
		threadRepo:    threadRepo,
		openSlotsRepo: openSlotsRepo,
		outboxRepo:    outboxRepo,
		auditRepo:     auditRepo,
		generator:     generator,
		uow:           uow,
		config:        config,
	}
}

// Handle executes the RequestAlternateCommand.
//
// Under the cap the thread gets one more round of candidate slots and both of
// its counters advance. At or past the cap the thread escalates instead: the
// open-slots page is created on the first escalating call and reused on every
// call after that.
func (h *RequestAlternateHandler) Handle(ctx context.Context, cmd RequestAlternateCommand) (*RequestAlternateResult, error) {
	var result *RequestAlternateResult

	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		thread, err := h.threadRepo.FindByInviteToken(txCtx, cmd.InviteToken)
		if err != nil {
			return err
		}
		if thread.Status() == domain.ThreadStatusFinalized {
			return domain.ErrThreadAlreadyFinalized
		}

		if thread.CanRepropose(h.config.MaxAdditionalProposals) {
			result, err = h.repropose(txCtx, thread, cmd)
			return err
		}

		result, err = h.escalate(txCtx, thread, cmd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (h *RequestAlternateHandler) repropose(ctx context.Context, thread *domain.Thread, cmd RequestAlternateCommand) (*RequestAlternateResult, error) {
	slots, err := h.generator.Generate(ctx, services.CandidateRequest{
		RangeStart: cmd.RangeStart,
		RangeEnd:   cmd.RangeEnd,
		Prefer:     cmd.Prefer,
	})
	if err != nil {
		return nil, err
	}

	if err := thread.RecordReproposal(); err != nil {
		return nil, err
	}
	if err := h.threadRepo.Save(ctx, thread); err != nil {
		return nil, err
	}
	if err := h.saveEvents(ctx, thread.DomainEvents()); err != nil {
		return nil, err
	}

	threadID := thread.ID()
	detail, _ := json.Marshal(map[string]any{
		"comment":          cmd.Comment,
		"prefer":           cmd.Prefer,
		"proposal_version": thread.ProposalVersion(),
		"slot_count":       len(slots),
	})
	if err := h.auditRepo.Append(ctx, audit.NewEntry(thread.WorkspaceID(), &threadID, "thread.reproposed", detail)); err != nil {
		return nil, err
	}

	return &RequestAlternateResult{
		ThreadID:               thread.ID(),
		ProposalVersion:        thread.ProposalVersion(),
		AdditionalProposeCount: thread.AdditionalProposeCount(),
		Slots:                  slots,
	}, nil
}

func (h *RequestAlternateHandler) escalate(ctx context.Context, thread *domain.Thread, cmd RequestAlternateCommand) (*RequestAlternateResult, error) {
	page, err := h.openSlotsRepo.FindByThreadID(ctx, thread.ID())
	if err != nil && !errors.Is(err, domain.ErrPageNotFound) {
		return nil, err
	}

	created := false
	if page == nil {
		page, err = h.createPage(ctx, thread, cmd)
		if err != nil {
			return nil, err
		}
		created = true
	}

	if err := thread.Escalate(page.ID()); err != nil {
		return nil, err
	}
	if err := h.threadRepo.Save(ctx, thread); err != nil {
		return nil, err
	}
	if err := h.saveEvents(ctx, thread.DomainEvents()); err != nil {
		return nil, err
	}

	if created {
		threadID := thread.ID()
		detail, _ := json.Marshal(map[string]any{
			"comment":     cmd.Comment,
			"page_id":     page.ID(),
			"slot_count":  len(page.Slots()),
			"expires_at":  page.ExpiresAt(),
			"max_reached": true,
		})
		if err := h.auditRepo.Append(ctx, audit.NewEntry(thread.WorkspaceID(), &threadID, "thread.escalated", detail)); err != nil {
			return nil, err
		}
	}

	return &RequestAlternateResult{
		ThreadID:               thread.ID(),
		ProposalVersion:        thread.ProposalVersion(),
		AdditionalProposeCount: thread.AdditionalProposeCount(),
		MaxReached:             true,
		AutoOpenSlots:          true,
		OpenSlotsURL:           h.config.PublicBaseURL + "/open/" + page.Token(),
		OpenSlotsToken:         page.Token(),
	}, nil
}

func (h *RequestAlternateHandler) createPage(ctx context.Context, thread *domain.Thread, cmd RequestAlternateCommand) (*domain.OpenSlotsPage, error) {
	rangeStart, rangeEnd := cmd.RangeStart, cmd.RangeEnd
	if !rangeEnd.After(rangeStart) {
		// No usable window from the invitee, offer the next two weeks.
		rangeStart = time.Now().UTC()
		rangeEnd = rangeStart.AddDate(0, 0, 14)
	}

	ranges, err := h.generator.Generate(ctx, services.CandidateRequest{
		RangeStart: rangeStart,
		RangeEnd:   rangeEnd,
		Prefer:     cmd.Prefer,
	})
	if errors.Is(err, services.ErrNoCandidatesInRange) {
		// The invitee's window fits no slot (weekend-only, too short). The
		// page belongs to the organizer, so widen to the next two weeks
		// rather than bounce the escalation.
		rangeStart = time.Now().UTC()
		ranges, err = h.generator.Generate(ctx, services.CandidateRequest{
			RangeStart: rangeStart,
			RangeEnd:   rangeStart.AddDate(0, 0, 14),
			Prefer:     cmd.Prefer,
		})
	}
	if err != nil {
		return nil, err
	}

	page, err := domain.NewOpenSlotsPage(
		thread.WorkspaceID(),
		thread.ID(),
		thread.Title(),
		domain.NewPageToken(),
		ranges,
		time.Now().UTC().Add(h.config.OpenSlotsTTL),
	)
	if err != nil {
		return nil, err
	}

	if err := h.openSlotsRepo.Save(ctx, page); err != nil {
		return nil, err
	}
	if err := h.saveEvents(ctx, page.DomainEvents()); err != nil {
		return nil, err
	}
	return page, nil
}

func (h *RequestAlternateHandler) saveEvents(ctx context.Context, events []sharedDomain.DomainEvent) error {
	return saveEventsToOutbox(ctx, h.outboxRepo, events)
}
