package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestThread(t *testing.T) *Thread {
	t.Helper()
	thread, err := NewThread(uuid.New(), uuid.New(), "Quarterly review", []string{"alice@example.com"}, "invite-token")
	require.NoError(t, err)
	return thread
}

func TestNewThread(t *testing.T) {
	t.Run("creates thread in proposed state", func(t *testing.T) {
		thread := newTestThread(t)

		assert.Equal(t, ThreadStatusProposed, thread.Status())
		assert.Equal(t, 1, thread.ProposalVersion())
		assert.Equal(t, 0, thread.AdditionalProposeCount())
		assert.Len(t, thread.DomainEvents(), 1)
	})

	t.Run("rejects empty title", func(t *testing.T) {
		_, err := NewThread(uuid.New(), uuid.New(), "   ", []string{"a@example.com"}, "tok")
		assert.ErrorIs(t, err, ErrThreadEmptyTitle)
	})

	t.Run("rejects missing invitees", func(t *testing.T) {
		_, err := NewThread(uuid.New(), uuid.New(), "Sync", nil, "tok")
		assert.ErrorIs(t, err, ErrThreadNoInvitees)
	})

	t.Run("rejects empty invite token", func(t *testing.T) {
		_, err := NewThread(uuid.New(), uuid.New(), "Sync", []string{"a@example.com"}, "")
		assert.ErrorIs(t, err, ErrThreadEmptyToken)
	})
}

func TestThread_RecordReproposal(t *testing.T) {
	t.Run("advances both counters by exactly one", func(t *testing.T) {
		thread := newTestThread(t)

		require.NoError(t, thread.RecordReproposal())
		assert.Equal(t, 1, thread.AdditionalProposeCount())
		assert.Equal(t, 2, thread.ProposalVersion())

		require.NoError(t, thread.RecordReproposal())
		assert.Equal(t, 2, thread.AdditionalProposeCount())
		assert.Equal(t, 3, thread.ProposalVersion())
	})

	t.Run("fails on finalized thread", func(t *testing.T) {
		thread := newTestThread(t)
		require.NoError(t, thread.Finalize(time.Now(), time.Now().Add(time.Hour)))

		assert.ErrorIs(t, thread.RecordReproposal(), ErrThreadNotReproposable)
	})
}

func TestThread_CanRepropose(t *testing.T) {
	t.Run("true below the cap", func(t *testing.T) {
		thread := newTestThread(t)
		assert.True(t, thread.CanRepropose(2))

		require.NoError(t, thread.RecordReproposal())
		assert.True(t, thread.CanRepropose(2))
	})

	t.Run("false once the counter reaches the cap", func(t *testing.T) {
		thread := newTestThread(t)
		require.NoError(t, thread.RecordReproposal())
		require.NoError(t, thread.RecordReproposal())

		assert.False(t, thread.CanRepropose(2))
	})

	t.Run("false for counter already over the cap", func(t *testing.T) {
		thread := RehydrateThread(
			uuid.New(), uuid.New(), uuid.New(), "Sync", []string{"a@example.com"},
			ThreadStatusProposed, 4, 3, "tok", nil, nil, nil,
			time.Now(), time.Now(),
		)
		assert.False(t, thread.CanRepropose(2))
	})
}

func TestThread_Escalate(t *testing.T) {
	t.Run("moves to escalated and links page", func(t *testing.T) {
		thread := newTestThread(t)
		pageID := uuid.New()

		require.NoError(t, thread.Escalate(pageID))

		assert.Equal(t, ThreadStatusEscalated, thread.Status())
		require.NotNil(t, thread.OpenSlotsPageID())
		assert.Equal(t, pageID, *thread.OpenSlotsPageID())
	})

	t.Run("is a no-op when already escalated", func(t *testing.T) {
		thread := newTestThread(t)
		firstPage := uuid.New()
		require.NoError(t, thread.Escalate(firstPage))

		require.NoError(t, thread.Escalate(uuid.New()))
		assert.Equal(t, firstPage, *thread.OpenSlotsPageID())
	})

	t.Run("fails on finalized thread", func(t *testing.T) {
		thread := newTestThread(t)
		require.NoError(t, thread.Finalize(time.Now(), time.Now().Add(time.Hour)))

		assert.ErrorIs(t, thread.Escalate(uuid.New()), ErrThreadAlreadyFinalized)
	})
}

func TestThread_Finalize(t *testing.T) {
	t.Run("records the confirmed range", func(t *testing.T) {
		thread := newTestThread(t)
		start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
		end := start.Add(time.Hour)

		require.NoError(t, thread.Finalize(start, end))

		assert.Equal(t, ThreadStatusFinalized, thread.Status())
		require.NotNil(t, thread.FinalStart())
		assert.Equal(t, start, *thread.FinalStart())
	})

	t.Run("fails when already finalized", func(t *testing.T) {
		thread := newTestThread(t)
		require.NoError(t, thread.Finalize(time.Now(), time.Now().Add(time.Hour)))

		assert.ErrorIs(t, thread.Finalize(time.Now(), time.Now()), ErrThreadAlreadyFinalized)
	})

	t.Run("an escalated thread can still finalize", func(t *testing.T) {
		thread := newTestThread(t)
		require.NoError(t, thread.Escalate(uuid.New()))

		require.NoError(t, thread.Finalize(time.Now(), time.Now().Add(time.Hour)))
		assert.Equal(t, ThreadStatusFinalized, thread.Status())
	})
}
