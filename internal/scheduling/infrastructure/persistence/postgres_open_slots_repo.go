package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	sharedPersistence "github.com/slotlinehq/slotline/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresOpenSlotsRepository implements domain.OpenSlotsRepository using PostgreSQL.
type PostgresOpenSlotsRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresOpenSlotsRepository creates a new PostgreSQL open-slots repository.
func NewPostgresOpenSlotsRepository(pool *pgxpool.Pool) *PostgresOpenSlotsRepository {
	return &PostgresOpenSlotsRepository{pool: pool}
}

// Save persists a page and its slots.
func (r *PostgresOpenSlotsRepository) Save(ctx context.Context, page *domain.OpenSlotsPage) error {
	exec := sharedPersistence.Executor(ctx, r.pool)

	pageQuery := `
		INSERT INTO open_slots_pages (
			id, workspace_id, thread_id, title, token, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := exec.Exec(ctx, pageQuery,
		page.ID(),
		page.WorkspaceID(),
		page.ThreadID(),
		page.Title(),
		page.Token(),
		page.ExpiresAt(),
		page.CreatedAt(),
		page.UpdatedAt(),
	)
	if err != nil {
		return err
	}

	// Slot rows are insert-only apart from claim data, which ClaimSlot owns.
	slotQuery := `
		INSERT INTO open_slots (id, page_id, start_at, end_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`
	for _, slot := range page.Slots() {
		if _, err := exec.Exec(ctx, slotQuery, slot.ID, page.ID(), slot.Start, slot.End); err != nil {
			return err
		}
	}
	return nil
}

// ClaimSlot atomically claims a slot if and only if it is still unclaimed.
// The condition makes concurrent claimants race on the database row: exactly
// one update wins, the rest observe zero affected rows.
func (r *PostgresOpenSlotsRepository) ClaimSlot(ctx context.Context, slotID uuid.UUID, name, email string, at time.Time) error {
	exec := sharedPersistence.Executor(ctx, r.pool)

	query := `
		UPDATE open_slots
		SET claimant_name = $2, claimant_email = $3, claimed_at = $4
		WHERE id = $1 AND claimed_at IS NULL
	`
	tag, err := exec.Exec(ctx, query, slotID, name, email, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := exec.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM open_slots WHERE id = $1)`, slotID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return domain.ErrSlotAlreadySelected
	}
	return domain.ErrSlotNotFound
}

const postgresSelectPage = `
	SELECT id, workspace_id, thread_id, title, token, expires_at, created_at, updated_at
	FROM open_slots_pages
`

// FindByToken retrieves a page and its slots by public token.
func (r *PostgresOpenSlotsRepository) FindByToken(ctx context.Context, token string) (*domain.OpenSlotsPage, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	row := exec.QueryRow(ctx, postgresSelectPage+` WHERE token = $1`, token)
	return r.scanPage(ctx, row)
}

// FindByThreadID retrieves the page escalated from the given thread.
func (r *PostgresOpenSlotsRepository) FindByThreadID(ctx context.Context, threadID uuid.UUID) (*domain.OpenSlotsPage, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	row := exec.QueryRow(ctx, postgresSelectPage+` WHERE thread_id = $1`, threadID)
	return r.scanPage(ctx, row)
}

func (r *PostgresOpenSlotsRepository) scanPage(ctx context.Context, row pgx.Row) (*domain.OpenSlotsPage, error) {
	var (
		id          uuid.UUID
		workspaceID uuid.UUID
		threadID    uuid.UUID
		title       string
		token       string
		expiresAt   time.Time
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := row.Scan(&id, &workspaceID, &threadID, &title, &token, &expiresAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPageNotFound
		}
		return nil, err
	}

	slots, err := r.loadSlots(ctx, id)
	if err != nil {
		return nil, err
	}

	return domain.RehydrateOpenSlotsPage(id, workspaceID, threadID, title, token, expiresAt, slots, createdAt, updatedAt), nil
}

func (r *PostgresOpenSlotsRepository) loadSlots(ctx context.Context, pageID uuid.UUID) ([]*domain.OpenSlot, error) {
	query := `
		SELECT id, start_at, end_at, claimant_name, claimant_email, claimed_at
		FROM open_slots
		WHERE page_id = $1
		ORDER BY start_at
	`

	exec := sharedPersistence.Executor(ctx, r.pool)
	rows, err := exec.Query(ctx, query, pageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slots := make([]*domain.OpenSlot, 0)
	for rows.Next() {
		var (
			slot          domain.OpenSlot
			claimantName  *string
			claimantEmail *string
		)
		if err := rows.Scan(&slot.ID, &slot.Start, &slot.End, &claimantName, &claimantEmail, &slot.ClaimedAt); err != nil {
			return nil, err
		}
		if claimantName != nil {
			slot.ClaimantName = *claimantName
		}
		if claimantEmail != nil {
			slot.ClaimantEmail = *claimantEmail
		}
		slots = append(slots, &slot)
	}
	return slots, rows.Err()
}
