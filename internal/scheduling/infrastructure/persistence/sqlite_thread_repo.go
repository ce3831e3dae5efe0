package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	"github.com/google/uuid"
)

// SQLiteThreadRepository implements domain.ThreadRepository using SQLite.
type SQLiteThreadRepository struct {
	db *sql.DB
}

// NewSQLiteThreadRepository creates a new SQLite thread repository.
func NewSQLiteThreadRepository(db *sql.DB) *SQLiteThreadRepository {
	return &SQLiteThreadRepository{db: db}
}

// Save persists a thread using an upsert on its identity.
func (r *SQLiteThreadRepository) Save(ctx context.Context, thread *domain.Thread) error {
	invitees, err := json.Marshal(thread.InviteeEmails())
	if err != nil {
		return fmt.Errorf("failed to marshal invitee emails: %w", err)
	}

	query := `
		INSERT INTO threads (
			id, workspace_id, organizer_id, title, invitee_emails, status,
			proposal_version, additional_propose_count, invite_token,
			open_slots_page_id, final_start, final_end, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			invitee_emails = excluded.invitee_emails,
			status = excluded.status,
			proposal_version = excluded.proposal_version,
			additional_propose_count = excluded.additional_propose_count,
			open_slots_page_id = excluded.open_slots_page_id,
			final_start = excluded.final_start,
			final_end = excluded.final_end,
			updated_at = excluded.updated_at
	`

	_, err = sqliteExec(ctx, r.db).ExecContext(ctx, query,
		thread.ID().String(),
		thread.WorkspaceID().String(),
		thread.OrganizerID().String(),
		thread.Title(),
		string(invitees),
		string(thread.Status()),
		thread.ProposalVersion(),
		thread.AdditionalProposeCount(),
		thread.InviteToken(),
		uuidPtrString(thread.OpenSlotsPageID()),
		formatSQLiteTimePtr(thread.FinalStart()),
		formatSQLiteTimePtr(thread.FinalEnd()),
		formatSQLiteTime(thread.CreatedAt()),
		formatSQLiteTime(thread.UpdatedAt()),
	)
	return err
}

const sqliteSelectThread = `
	SELECT id, workspace_id, organizer_id, title, invitee_emails, status,
	       proposal_version, additional_propose_count, invite_token,
	       open_slots_page_id, final_start, final_end, created_at, updated_at
	FROM threads
`

// FindByID retrieves a thread by its ID.
func (r *SQLiteThreadRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Thread, error) {
	row := sqliteExec(ctx, r.db).QueryRowContext(ctx, sqliteSelectThread+` WHERE id = ?`, id.String())
	return scanSQLiteThread(row)
}

// FindByInviteToken retrieves a thread by its invite token.
func (r *SQLiteThreadRepository) FindByInviteToken(ctx context.Context, token string) (*domain.Thread, error) {
	row := sqliteExec(ctx, r.db).QueryRowContext(ctx, sqliteSelectThread+` WHERE invite_token = ?`, token)
	return scanSQLiteThread(row)
}

func scanSQLiteThread(row *sql.Row) (*domain.Thread, error) {
	var (
		idRaw                  string
		workspaceIDRaw         string
		organizerIDRaw         string
		title                  string
		inviteesRaw            string
		status                 string
		proposalVersion        int
		additionalProposeCount int
		inviteToken            string
		openSlotsPageIDRaw     sql.NullString
		finalStartRaw          sql.NullString
		finalEndRaw            sql.NullString
		createdAtRaw           string
		updatedAtRaw           string
	)

	err := row.Scan(
		&idRaw, &workspaceIDRaw, &organizerIDRaw, &title, &inviteesRaw, &status,
		&proposalVersion, &additionalProposeCount, &inviteToken,
		&openSlotsPageIDRaw, &finalStartRaw, &finalEndRaw, &createdAtRaw, &updatedAtRaw,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrThreadNotFound
		}
		return nil, err
	}

	id, err := uuid.Parse(idRaw)
	if err != nil {
		return nil, err
	}
	workspaceID, err := uuid.Parse(workspaceIDRaw)
	if err != nil {
		return nil, err
	}
	organizerID, err := uuid.Parse(organizerIDRaw)
	if err != nil {
		return nil, err
	}

	var invitees []string
	if err := json.Unmarshal([]byte(inviteesRaw), &invitees); err != nil {
		return nil, fmt.Errorf("failed to unmarshal invitee emails: %w", err)
	}

	openSlotsPageID, err := parseUUIDPtr(openSlotsPageIDRaw)
	if err != nil {
		return nil, err
	}
	finalStart, err := parseSQLiteTimePtr(finalStartRaw)
	if err != nil {
		return nil, err
	}
	finalEnd, err := parseSQLiteTimePtr(finalEndRaw)
	if err != nil {
		return nil, err
	}
	createdAt, err := parseSQLiteTime(createdAtRaw)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseSQLiteTime(updatedAtRaw)
	if err != nil {
		return nil, err
	}

	return domain.RehydrateThread(
		id, workspaceID, organizerID, title, invitees,
		domain.ThreadStatus(status), proposalVersion, additionalProposeCount,
		inviteToken, openSlotsPageID, finalStart, finalEnd, createdAt, updatedAt,
	), nil
}
