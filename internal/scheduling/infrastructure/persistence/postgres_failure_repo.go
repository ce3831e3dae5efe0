package persistence

import (
	"context"
	"time"

	"github.com/slotlinehq/slotline/internal/scheduling/domain"
	sharedPersistence "github.com/slotlinehq/slotline/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresFailureRepository implements domain.FailureRepository using PostgreSQL.
type PostgresFailureRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresFailureRepository creates a new PostgreSQL failure repository.
func NewPostgresFailureRepository(pool *pgxpool.Pool) *PostgresFailureRepository {
	return &PostgresFailureRepository{pool: pool}
}

// Increment applies a single atomic insert-or-increment on the natural key.
// The row's count advances by one; stage, last_failed_at and meta are
// overwritten while first_failed_at keeps its original value.
func (r *PostgresFailureRepository) Increment(ctx context.Context, inc domain.IncrementFailure) (*domain.ThreadFailure, error) {
	participantKey := inc.ParticipantKey
	if participantKey == "" {
		participantKey = domain.ThreadParticipantKey
	}
	meta := inc.Meta
	if len(meta) == 0 {
		meta = []byte("{}")
	}

	query := `
		INSERT INTO thread_failures (
			id, workspace_id, thread_id, participant_key, failure_type,
			failure_stage, count, first_failed_at, last_failed_at, meta_json
		) VALUES ($1, $2, $3, $4, $5, $6, 1, NOW(), NOW(), $7)
		ON CONFLICT (workspace_id, thread_id, participant_key, failure_type) DO UPDATE SET
			count = thread_failures.count + 1,
			failure_stage = EXCLUDED.failure_stage,
			last_failed_at = NOW(),
			meta_json = EXCLUDED.meta_json
		RETURNING id, workspace_id, thread_id, participant_key, failure_type,
		          failure_stage, count, first_failed_at, last_failed_at, meta_json
	`

	exec := sharedPersistence.Executor(ctx, r.pool)
	row := exec.QueryRow(ctx, query,
		uuid.New(),
		inc.WorkspaceID,
		inc.ThreadID,
		participantKey,
		string(inc.Type),
		string(inc.Stage),
		meta,
	)

	var failure domain.ThreadFailure
	err := row.Scan(
		&failure.ID,
		&failure.WorkspaceID,
		&failure.ThreadID,
		&failure.ParticipantKey,
		&failure.Type,
		&failure.Stage,
		&failure.Count,
		&failure.FirstFailedAt,
		&failure.LastFailedAt,
		&failure.Meta,
	)
	if err != nil {
		return nil, err
	}
	return &failure, nil
}

// ListByThread returns all failure rows of a thread.
func (r *PostgresFailureRepository) ListByThread(ctx context.Context, threadID uuid.UUID) ([]domain.ThreadFailure, error) {
	query := `
		SELECT id, workspace_id, thread_id, participant_key, failure_type,
		       failure_stage, count, first_failed_at, last_failed_at, meta_json
		FROM thread_failures
		WHERE thread_id = $1
		ORDER BY last_failed_at DESC
	`

	exec := sharedPersistence.Executor(ctx, r.pool)
	rows, err := exec.Query(ctx, query, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	failures := make([]domain.ThreadFailure, 0)
	for rows.Next() {
		var failure domain.ThreadFailure
		if err := rows.Scan(
			&failure.ID,
			&failure.WorkspaceID,
			&failure.ThreadID,
			&failure.ParticipantKey,
			&failure.Type,
			&failure.Stage,
			&failure.Count,
			&failure.FirstFailedAt,
			&failure.LastFailedAt,
			&failure.Meta,
		); err != nil {
			return nil, err
		}
		failures = append(failures, failure)
	}
	return failures, rows.Err()
}

// DeleteByThread removes all failure rows of a thread.
func (r *PostgresFailureRepository) DeleteByThread(ctx context.Context, threadID uuid.UUID) (int64, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	tag, err := exec.Exec(ctx, `DELETE FROM thread_failures WHERE thread_id = $1`, threadID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteByThreadAndType removes failure rows of one type on a thread.
func (r *PostgresFailureRepository) DeleteByThreadAndType(ctx context.Context, threadID uuid.UUID, failureType domain.FailureType) (int64, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	tag, err := exec.Exec(ctx,
		`DELETE FROM thread_failures WHERE thread_id = $1 AND failure_type = $2`,
		threadID, string(failureType),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteByThreadAndParticipant removes failure rows of one participant on a thread.
func (r *PostgresFailureRepository) DeleteByThreadAndParticipant(ctx context.Context, threadID uuid.UUID, participantKey string) (int64, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	tag, err := exec.Exec(ctx,
		`DELETE FROM thread_failures WHERE thread_id = $1 AND participant_key = $2`,
		threadID, participantKey,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// WorkspaceStats aggregates failures across a workspace within a window.
func (r *PostgresFailureRepository) WorkspaceStats(ctx context.Context, workspaceID uuid.UUID, since time.Time) (*domain.WorkspaceFailureStats, error) {
	query := `
		SELECT failure_type, SUM(count), COUNT(DISTINCT thread_id)
		FROM thread_failures
		WHERE workspace_id = $1 AND last_failed_at >= $2
		GROUP BY failure_type
	`

	exec := sharedPersistence.Executor(ctx, r.pool)
	rows, err := exec.Query(ctx, query, workspaceID, since)
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
			threads     int
		)
		if err := rows.Scan(&failureType, &total, &threads); err != nil {
			return nil, err
		}
		stats.ByType[domain.FailureType(failureType)] = total
		stats.Total += total
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	// Distinct threads across all types needs its own query, a per-type sum
	// would double count threads failing in more than one way.
	countRow := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(DISTINCT thread_id) FROM thread_failures WHERE workspace_id = $1 AND last_failed_at >= $2`,
		workspaceID, since,
	)
	if err := countRow.Scan(&stats.ThreadsWithFailures); err != nil {
		return nil, err
	}

	return stats, nil
}
