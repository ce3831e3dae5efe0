package audit

import (
	"context"
	"encoding/json"
	"time"

	sharedPersistence "github.com/slotlinehq/slotline/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL audit repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Append stores one audit entry.
func (r *PostgresRepository) Append(ctx context.Context, entry Entry) error {
	detail := entry.Detail
	if len(detail) == 0 {
		detail = json.RawMessage("{}")
	}

	query := `
		INSERT INTO audit_log (id, workspace_id, thread_id, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, query,
		entry.ID, entry.WorkspaceID, entry.ThreadID, entry.Action, []byte(detail), entry.CreatedAt)
	return err
}

// ListByThread returns the most recent entries of a thread, newest first.
func (r *PostgresRepository) ListByThread(ctx context.Context, threadID uuid.UUID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, workspace_id, thread_id, action, detail, created_at
		FROM audit_log
		WHERE thread_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, query, threadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			entry  Entry
			detail []byte
		)
		if err := rows.Scan(&entry.ID, &entry.WorkspaceID, &entry.ThreadID, &entry.Action, &detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Detail = json.RawMessage(detail)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteOlderThan removes entries created before the cutoff.
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx,
		`DELETE FROM audit_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
