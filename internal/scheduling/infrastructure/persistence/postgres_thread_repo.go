// Package persistence provides PostgreSQL and SQLite implementations of the
// scheduling repositories.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	sharedPersistence "github.com/slotlinehq/slotline/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresThreadRepository implements domain.ThreadRepository using PostgreSQL.
type PostgresThreadRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresThreadRepository creates a new PostgreSQL thread repository.
func NewPostgresThreadRepository(pool *pgxpool.Pool) *PostgresThreadRepository {
	return &PostgresThreadRepository{pool: pool}
}

// Save persists a thread using an upsert on its identity.
func (r *PostgresThreadRepository) Save(ctx context.Context, thread *domain.Thread) error {
	invitees, err := json.Marshal(thread.InviteeEmails())
	if err != nil {
		return fmt.Errorf("failed to marshal invitee emails: %w", err)
	}

	query := `
		INSERT INTO threads (
			id, workspace_id, organizer_id, title, invitee_emails, status,
			proposal_version, additional_propose_count, invite_token,
			open_slots_page_id, final_start, final_end, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			invitee_emails = EXCLUDED.invitee_emails,
			status = EXCLUDED.status,
			proposal_version = EXCLUDED.proposal_version,
			additional_propose_count = EXCLUDED.additional_propose_count,
			open_slots_page_id = EXCLUDED.open_slots_page_id,
			final_start = EXCLUDED.final_start,
			final_end = EXCLUDED.final_end,
			updated_at = EXCLUDED.updated_at
	`

	exec := sharedPersistence.Executor(ctx, r.pool)
	_, err = exec.Exec(ctx, query,
		thread.ID(),
		thread.WorkspaceID(),
		thread.OrganizerID(),
		thread.Title(),
		invitees,
		string(thread.Status()),
		thread.ProposalVersion(),
		thread.AdditionalProposeCount(),
		thread.InviteToken(),
		thread.OpenSlotsPageID(),
		thread.FinalStart(),
		thread.FinalEnd(),
		thread.CreatedAt(),
		thread.UpdatedAt(),
	)
	return err
}

const postgresSelectThread = `
	SELECT id, workspace_id, organizer_id, title, invitee_emails, status,
	       proposal_version, additional_propose_count, invite_token,
	       open_slots_page_id, final_start, final_end, created_at, updated_at
	FROM threads
`

// FindByID retrieves a thread by its ID.
func (r *PostgresThreadRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Thread, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	row := exec.QueryRow(ctx, postgresSelectThread+` WHERE id = $1`, id)
	return scanPostgresThread(row)
}

// FindByInviteToken retrieves a thread by its invite token.
func (r *PostgresThreadRepository) FindByInviteToken(ctx context.Context, token string) (*domain.Thread, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	row := exec.QueryRow(ctx, postgresSelectThread+` WHERE invite_token = $1`, token)
	return scanPostgresThread(row)
}

func scanPostgresThread(row pgx.Row) (*domain.Thread, error) {
	var (
		id                     uuid.UUID
		workspaceID            uuid.UUID
		organizerID            uuid.UUID
		title                  string
		inviteesRaw            []byte
		status                 string
		proposalVersion        int
		additionalProposeCount int
		inviteToken            string
		openSlotsPageID        *uuid.UUID
		finalStart             *time.Time
		finalEnd               *time.Time
		createdAt              time.Time
		updatedAt              time.Time
	)

	err := row.Scan(
		&id, &workspaceID, &organizerID, &title, &inviteesRaw, &status,
		&proposalVersion, &additionalProposeCount, &inviteToken,
		&openSlotsPageID, &finalStart, &finalEnd, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrThreadNotFound
		}
		return nil, err
	}

	var invitees []string
	if err := json.Unmarshal(inviteesRaw, &invitees); err != nil {
		return nil, fmt.Errorf("failed to unmarshal invitee emails: %w", err)
	}

	return domain.RehydrateThread(
		id, workspaceID, organizerID, title, invitees,
		domain.ThreadStatus(status), proposalVersion, additionalProposeCount,
		inviteToken, openSlotsPageID, finalStart, finalEnd, createdAt, updatedAt,
	), nil
}
