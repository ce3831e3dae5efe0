package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	"github.com/google/uuid"
)

// SQLiteFailureRepository implements domain.FailureRepository using SQLite.
type SQLiteFailureRepository struct {
	db *sql.DB
}

// NewSQLiteFailureRepository creates a new SQLite failure repository.
func NewSQLiteFailureRepository(db *sql.DB) *SQLiteFailureRepository {
	return &SQLiteFailureRepository{db: db}
}

// Increment applies a single atomic insert-or-increment on the natural key.
func (r *SQLiteFailureRepository) Increment(ctx context.Context, inc domain.IncrementFailure) (*domain.ThreadFailure, error) {
	participantKey := inc.ParticipantKey
	if participantKey == "" {
		participantKey = domain.ThreadParticipantKey
	}
	meta := inc.Meta
	if len(meta) == 0 {
		meta = []byte("{}")
	}
	now := formatSQLiteTime(time.Now())

	query := `
		INSERT INTO thread_failures (
			id, workspace_id, thread_id, participant_key, failure_type,
			failure_stage, count, first_failed_at, last_failed_at, meta_json
		) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT (workspace_id, thread_id, participant_key, failure_type) DO UPDATE SET
			count = count + 1,
			failure_stage = excluded.failure_stage,
			last_failed_at = excluded.last_failed_at,
			meta_json = excluded.meta_json
		RETURNING id, workspace_id, thread_id, participant_key, failure_type,
		          failure_stage, count, first_failed_at, last_failed_at, meta_json
	`

	row := sqliteExec(ctx, r.db).QueryRowContext(ctx, query,
		uuid.NewString(),
		inc.WorkspaceID.String(),
		inc.ThreadID.String(),
		participantKey,
		string(inc.Type),
		string(inc.Stage),
		now,
		now,
		string(meta),
	)
	return scanSQLiteFailure(row)
}

type sqliteRowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteFailure(row sqliteRowScanner) (*domain.ThreadFailure, error) {
	var (
		idRaw          string
		workspaceIDRaw string
		threadIDRaw    string
		participantKey string
		failureType    string
		failureStage   string
		count          int
		firstRaw       string
		lastRaw        string
		metaRaw        string
	)

	if err := row.Scan(
		&idRaw, &workspaceIDRaw, &threadIDRaw, &participantKey, &failureType,
		&failureStage, &count, &firstRaw, &lastRaw, &metaRaw,
	); err != nil {
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
	firstFailedAt, err := parseSQLiteTime(firstRaw)
	if err != nil {
		return nil, err
	}
	lastFailedAt, err := parseSQLiteTime(lastRaw)
	if err != nil {
		return nil, err
	}

	return &domain.ThreadFailure{
		ID:             id,
		WorkspaceID:    workspaceID,
		ThreadID:       threadID,
		ParticipantKey: participantKey,
		Type:           domain.FailureType(failureType),
		Stage:          domain.FailureStage(failureStage),
		Count:          count,
		FirstFailedAt:  firstFailedAt,
		LastFailedAt:   lastFailedAt,
		Meta:           []byte(metaRaw),
	}, nil
}

// ListByThread returns all failure rows of a thread.
func (r *SQLiteFailureRepository) ListByThread(ctx context.Context, threadID uuid.UUID) ([]domain.ThreadFailure, error) {
	query := `
		SELECT id, workspace_id, thread_id, participant_key, failure_type,
		       failure_stage, count, first_failed_at, last_failed_at, meta_json
		FROM thread_failures
		WHERE thread_id = ?
		ORDER BY last_failed_at DESC
	`

	rows, err := sqliteExec(ctx, r.db).QueryContext(ctx, query, threadID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	failures := make([]domain.ThreadFailure, 0)
	for rows.Next() {
		failure, err := scanSQLiteFailure(rows)
		if err != nil {
			return nil, err
		}
		failures = append(failures, *failure)
	}
	return failures, rows.Err()
}

// DeleteByThread removes all failure rows of a thread.
func (r *SQLiteFailureRepository) DeleteByThread(ctx context.Context, threadID uuid.UUID) (int64, error) {
	res, err := sqliteExec(ctx, r.db).ExecContext(ctx,
		`DELETE FROM thread_failures WHERE thread_id = ?`, threadID.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteByThreadAndType removes failure rows of one type on a thread.
func (r *SQLiteFailureRepository) DeleteByThreadAndType(ctx context.Context, threadID uuid.UUID, failureType domain.FailureType) (int64, error) {
	res, err := sqliteExec(ctx, r.db).ExecContext(ctx,
		`DELETE FROM thread_failures WHERE thread_id = ? AND failure_type = ?`,
		threadID.String(), string(failureType))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteByThreadAndParticipant removes failure rows of one participant on a thread.
func (r *SQLiteFailureRepository) DeleteByThreadAndParticipant(ctx context.Context, threadID uuid.UUID, participantKey string) (int64, error) {
	res, err := sqliteExec(ctx, r.db).ExecContext(ctx,
		`DELETE FROM thread_failures WHERE thread_id = ? AND participant_key = ?`,
		threadID.String(), participantKey)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// WorkspaceStats aggregates failures across a workspace within a window.
func (r *SQLiteFailureRepository) WorkspaceStats(ctx context.Context, workspaceID uuid.UUID, since time.Time) (*domain.WorkspaceFailureStats, error) {
	exec := sqliteExec(ctx, r.db)
	sinceRaw := formatSQLiteTime(since)

	query := `
		SELECT failure_type, SUM(count)
		FROM thread_failures
		WHERE workspace_id = ? AND last_failed_at >= ?
		GROUP BY failure_type
	`
	rows, err := exec.QueryContext(ctx, query, workspaceID.String(), sinceRaw)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &domain.WorkspaceFailureStats{
		WorkspaceID: workspaceID,
		ByType:      make(map[domain.FailureType]int),
	}
	for rows.Next() {
		var (
			failureType string
			total       int
		)
		if err := rows.Scan(&failureType, &total); err != nil {
			return nil, err
		}
		stats.ByType[domain.FailureType(failureType)] = total
		stats.Total += total
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	row := exec.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT thread_id) FROM thread_failures WHERE workspace_id = ? AND last_failed_at >= ?`,
		workspaceID.String(), sinceRaw)
	if err := row.Scan(&stats.ThreadsWithFailures); err != nil {
		return nil, err
	}

	return stats, nil
}
