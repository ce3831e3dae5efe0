package domain

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ThreadParticipantKey is the reserved participant key for failures that
// concern the whole thread rather than a specific participant.
const ThreadParticipantKey = "_thread_"

// FailureType classifies a recorded negative outcome on a thread.
type FailureType string

const (
	FailureNoCommonSlot       FailureType = "no_common_slot"
	FailureProposalRejected   FailureType = "proposal_rejected"
	FailureRescheduleFailed   FailureType = "reschedule_failed"
	FailureManualFail         FailureType = "manual_fail"
	FailureInviteExpired      FailureType = "invite_expired"
	FailureCandidateExhausted FailureType = "candidate_exhausted"
)

// IsValid checks if the failure type is supported.
func (f FailureType) IsValid() bool {
	switch f {
	case FailureNoCommonSlot, FailureProposalRejected, FailureRescheduleFailed,
		FailureManualFail, FailureInviteExpired, FailureCandidateExhausted:
		return true
	default:
		return false
	}
}

// FailureStage identifies the lifecycle stage a failure occurred in.
type FailureStage string

const (
	StagePropose    FailureStage = "propose"
	StageReschedule FailureStage = "reschedule"
	StageFinalize   FailureStage = "finalize"
	StageInvite     FailureStage = "invite"
)

// IsValid checks if the failure stage is supported.
func (s FailureStage) IsValid() bool {
	switch s {
	case StagePropose, StageReschedule, StageFinalize, StageInvite:
		return true
	default:
		return false
	}
}

// ThreadFailure is one counted failure key on a thread. Rows are unique per
// (workspace, thread, participant key, failure type); repeats increment Count
// and overwrite Stage, LastFailedAt and Meta while FirstFailedAt stays fixed.
type ThreadFailure struct {
	ID             uuid.UUID
	WorkspaceID    uuid.UUID
	ThreadID       uuid.UUID
	ParticipantKey string
	Type           FailureType
	Stage          FailureStage
	Count          int
	FirstFailedAt  time.Time
	LastFailedAt   time.Time
	Meta           json.RawMessage
}

// IsThreadWide reports whether the failure is not tied to a participant.
func (f ThreadFailure) IsThreadWide() bool {
	return f.ParticipantKey == ThreadParticipantKey
}

// Escalation levels derived from the total failure count of a thread.
const (
	EscalationNone      = 0 // no failures recorded
	EscalationCaution   = 1 // exactly one failure
	EscalationAttention = 2 // two or more failures
)

// EscalationLevelFor derives the three-tier escalation signal from a
// thread's total failure count. The level is a pure function of the total;
// it does not weight by type or distinct participants.
func EscalationLevelFor(totalFailures int) int {
	switch {
	case totalFailures <= 0:
		return EscalationNone
	case totalFailures == 1:
		return EscalationCaution
	default:
		return EscalationAttention
	}
}

// ParticipantFailures aggregates failures for one participant.
type ParticipantFailures struct {
	ParticipantKey string
	Count          int
}

// FailureSummary aggregates all failure rows of a thread.
type FailureSummary struct {
	ThreadID           uuid.UUID
	TotalFailures      int
	UniqueFailureTypes int
	ByType             map[FailureType]int
	TopParticipants    []ParticipantFailures
	LastFailedAt       *time.Time
	EscalationLevel    int
}

// maxTopParticipants bounds the participant breakdown in a summary.
const maxTopParticipants = 3

// SummarizeFailures folds a thread's failure rows into a FailureSummary.
// The thread-wide sentinel key is excluded from the participant breakdown
// but still counts toward the total.
func SummarizeFailures(threadID uuid.UUID, rows []ThreadFailure) FailureSummary {
	summary := FailureSummary{
		ThreadID: threadID,
		ByType:   make(map[FailureType]int),
	}

	byParticipant := make(map[string]int)
	for _, row := range rows {
		summary.TotalFailures += row.Count
		summary.ByType[row.Type] += row.Count

		if !row.IsThreadWide() {
			byParticipant[row.ParticipantKey] += row.Count
		}

		if summary.LastFailedAt == nil || row.LastFailedAt.After(*summary.LastFailedAt) {
			at := row.LastFailedAt
			summary.LastFailedAt = &at
		}
	}

	summary.UniqueFailureTypes = len(summary.ByType)

	participants := make([]ParticipantFailures, 0, len(byParticipant))
	for key, count := range byParticipant {
		participants = append(participants, ParticipantFailures{ParticipantKey: key, Count: count})
	}
	sort.Slice(participants, func(i, j int) bool {
		if participants[i].Count != participants[j].Count {
			return participants[i].Count > participants[j].Count
		}
		return participants[i].ParticipantKey < participants[j].ParticipantKey
	})
	if len(participants) > maxTopParticipants {
		participants = participants[:maxTopParticipants]
	}
	summary.TopParticipants = participants

	summary.EscalationLevel = EscalationLevelFor(summary.TotalFailures)
	return summary
}

// WorkspaceFailureStats aggregates failures across a workspace's threads
// within a trailing window, for operational dashboards.
type WorkspaceFailureStats struct {
	WorkspaceID         uuid.UUID
	Total               int
	ThreadsWithFailures int
	ByType              map[FailureType]int
}
