package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	sharedPersistence "github.com/slotlinehq/slotline/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite audit repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type sqliteExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *SQLiteRepository) exec(ctx context.Context) sqliteExecutor {
	if info, ok := sharedPersistence.SQLiteTxInfoFromContext(ctx); ok {
		return info.Tx
	}
	return r.db
}

// Append stores one audit entry.
func (r *SQLiteRepository) Append(ctx context.Context, entry Entry) error {
	detail := entry.Detail
	if len(detail) == 0 {
		detail = json.RawMessage("{}")
	}

	var threadID any
	if entry.ThreadID != nil {
		threadID = entry.ThreadID.String()
	}

	query := `
		INSERT INTO audit_log (id, workspace_id, thread_id, action, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.exec(ctx).ExecContext(ctx, query,
		entry.ID.String(), entry.WorkspaceID.String(), threadID,
		entry.Action, string(detail), entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// ListByThread returns the most recent entries of a thread, newest first.
func (r *SQLiteRepository) ListByThread(ctx context.Context, threadID uuid.UUID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, workspace_id, thread_id, action, detail, created_at
		FROM audit_log
		WHERE thread_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := r.exec(ctx).QueryContext(ctx, query, threadID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			idRaw          string
			workspaceIDRaw string
			threadIDRaw    sql.NullString
			action         string
			detail         string
			createdAtRaw   string
		)
		if err := rows.Scan(&idRaw, &workspaceIDRaw, &threadIDRaw, &action, &detail, &createdAtRaw); err != nil {
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
		var threadIDPtr *uuid.UUID
		if threadIDRaw.Valid {
			parsed, err := uuid.Parse(threadIDRaw.String)
			if err != nil {
				return nil, err
			}
			threadIDPtr = &parsed
		}
		createdAt, err := time.Parse(time.RFC3339Nano, createdAtRaw)
		if err != nil {
			return nil, err
		}

		entries = append(entries, Entry{
			ID:          id,
			WorkspaceID: workspaceID,
			ThreadID:    threadIDPtr,
			Action:      action,
			Detail:      json.RawMessage(detail),
			CreatedAt:   createdAt,
		})
	}
	return entries, rows.Err()
}

// DeleteOlderThan removes entries created before the cutoff.
func (r *SQLiteRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.exec(ctx).ExecContext(ctx,
		`DELETE FROM audit_log WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
