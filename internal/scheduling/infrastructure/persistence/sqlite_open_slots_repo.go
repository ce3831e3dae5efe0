package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	"github.com/google/uuid"
)

// SQLiteOpenSlotsRepository implements domain.OpenSlotsRepository using SQLite.
type SQLiteOpenSlotsRepository struct {
	db *sql.DB
}

// NewSQLiteOpenSlotsRepository creates a new SQLite open-slots repository.
func NewSQLiteOpenSlotsRepository(db *sql.DB) *SQLiteOpenSlotsRepository {
	return &SQLiteOpenSlotsRepository{db: db}
}

// Save persists a page and its slots.
func (r *SQLiteOpenSlotsRepository) Save(ctx context.Context, page *domain.OpenSlotsPage) error {
	exec := sqliteExec(ctx, r.db)

	pageQuery := `
		INSERT INTO open_slots_pages (
			id, workspace_id, thread_id, title, token, expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`
	_, err := exec.ExecContext(ctx, pageQuery,
		page.ID().String(),
		page.WorkspaceID().String(),
		page.ThreadID().String(),
		page.Title(),
		page.Token(),
		formatSQLiteTime(page.ExpiresAt()),
		formatSQLiteTime(page.CreatedAt()),
		formatSQLiteTime(page.UpdatedAt()),
	)
	if err != nil {
		return err
	}

	slotQuery := `
		INSERT INTO open_slots (id, page_id, start_at, end_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`
	for _, slot := range page.Slots() {
		if _, err := exec.ExecContext(ctx, slotQuery,
			slot.ID.String(), page.ID().String(),
			formatSQLiteTime(slot.Start), formatSQLiteTime(slot.End),
		); err != nil {
			return err
		}
	}
	return nil
}

// ClaimSlot atomically claims a slot if and only if it is still unclaimed.
func (r *SQLiteOpenSlotsRepository) ClaimSlot(ctx context.Context, slotID uuid.UUID, name, email string, at time.Time) error {
	exec := sqliteExec(ctx, r.db)

	query := `
		UPDATE open_slots
		SET claimant_name = ?, claimant_email = ?, claimed_at = ?
		WHERE id = ? AND claimed_at IS NULL
	`
	res, err := exec.ExecContext(ctx, query, name, email, formatSQLiteTime(at), slotID.String())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = exec.QueryRowContext(ctx, `SELECT COUNT(1) FROM open_slots WHERE id = ?`, slotID.String()).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return domain.ErrSlotAlreadySelected
	}
	return domain.ErrSlotNotFound
}

const sqliteSelectPage = `
	SELECT id, workspace_id, thread_id, title, token, expires_at, created_at, updated_at
	FROM open_slots_pages
`

// FindByToken retrieves a page and its slots by public token.
func (r *SQLiteOpenSlotsRepository) FindByToken(ctx context.Context, token string) (*domain.OpenSlotsPage, error) {
	row := sqliteExec(ctx, r.db).QueryRowContext(ctx, sqliteSelectPage+` WHERE token = ?`, token)
	return r.scanPage(ctx, row)
}

// FindByThreadID retrieves the page escalated from the given thread.
func (r *SQLiteOpenSlotsRepository) FindByThreadID(ctx context.Context, threadID uuid.UUID) (*domain.OpenSlotsPage, error) {
	row := sqliteExec(ctx, r.db).QueryRowContext(ctx, sqliteSelectPage+` WHERE thread_id = ?`, threadID.String())
	return r.scanPage(ctx, row)
}

func (r *SQLiteOpenSlotsRepository) scanPage(ctx context.Context, row *sql.Row) (*domain.OpenSlotsPage, error) {
	var (
		idRaw          string
		workspaceIDRaw string
		threadIDRaw    string
		title          string
		token          string
		expiresAtRaw   string
		createdAtRaw   string
		updatedAtRaw   string
	)

	err := row.Scan(&idRaw, &workspaceIDRaw, &threadIDRaw, &title, &token, &expiresAtRaw, &createdAtRaw, &updatedAtRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPageNotFound
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
	threadID, err := uuid.Parse(threadIDRaw)
	if err != nil {
		return nil, err
	}
	expiresAt, err := parseSQLiteTime(expiresAtRaw)
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

	slots, err := r.loadSlots(ctx, id)
	if err != nil {
		return nil, err
	}

	return domain.RehydrateOpenSlotsPage(id, workspaceID, threadID, title, token, expiresAt, slots, createdAt, updatedAt), nil
}

func (r *SQLiteOpenSlotsRepository) loadSlots(ctx context.Context, pageID uuid.UUID) ([]*domain.OpenSlot, error) {
	query := `
		SELECT id, start_at, end_at, claimant_name, claimant_email, claimed_at
		FROM open_slots
		WHERE page_id = ?
		ORDER BY start_at
	`

	rows, err := sqliteExec(ctx, r.db).QueryContext(ctx, query, pageID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slots := make([]*domain.OpenSlot, 0)
	for rows.Next() {
		var (
			idRaw         string
			startRaw      string
			endRaw        string
			claimantName  sql.NullString
			claimantEmail sql.NullString
			claimedAtRaw  sql.NullString
		)
		if err := rows.Scan(&idRaw, &startRaw, &endRaw, &claimantName, &claimantEmail, &claimedAtRaw); err != nil {
			return nil, err
		}

		id, err := uuid.Parse(idRaw)
		if err != nil {
			return nil, err
		}
		start, err := parseSQLiteTime(startRaw)
		if err != nil {
			return nil, err
		}
		end, err := parseSQLiteTime(endRaw)
		if err != nil {
			return nil, err
		}
		claimedAt, err := parseSQLiteTimePtr(claimedAtRaw)
		if err != nil {
			return nil, err
		}

		slots = append(slots, &domain.OpenSlot{
			ID:            id,
			Start:         start,
			End:           end,
			ClaimantName:  claimantName.String,
			ClaimantEmail: claimantEmail.String,
			ClaimedAt:     claimedAt,
		})
	}
	return slots, rows.Err()
}
