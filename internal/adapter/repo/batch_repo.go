package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studio/internal/domain"
)

// BatchRepositoryPG persists batch runs and per-task results in PostgreSQL.
// It implements pipeline.RunStore.
type BatchRepositoryPG struct {
	pool *pgxpool.Pool
}

func NewBatchRepository(pool *pgxpool.Pool) *BatchRepositoryPG {
	return &BatchRepositoryPG{pool: pool}
}

// CreateRun inserts the run and all of its task records in one transaction so
// the full placeholder set becomes visible atomically.
func (r *BatchRepositoryPG) CreateRun(ctx context.Context, run *domain.BatchRun, tasks []domain.TaskRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
INSERT INTO batch_runs (id, session_key, prompt, status, progress, error_message)
VALUES ($1, $2, $3, $4, $5, '');
`
	if _, err := tx.Exec(ctx, query, run.ID, run.SessionKey, run.Prompt, run.Status, run.Progress); err != nil {
		return fmt.Errorf("insert batch run: %w", err)
	}

	taskQuery := `
INSERT INTO batch_tasks (run_id, task_id, position, state, storage_key, mime, error_message)
VALUES ($1, $2, $3, $4, '', '', '');
`
	for _, task := range tasks {
		if _, err := tx.Exec(ctx, taskQuery, task.RunID, task.TaskID, task.Position, task.State); err != nil {
			return fmt.Errorf("insert batch task: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// UpdateTask records a task's state transition.
func (r *BatchRepositoryPG) UpdateTask(ctx context.Context, runID, taskID string, state domain.TaskState, storageKey, mime, message string) error {
	query := `
UPDATE batch_tasks
SET state = $3, storage_key = $4, mime = $5, error_message = $6, updated_at = NOW()
WHERE run_id = $1 AND task_id = $2;
`
	_, err := r.pool.Exec(ctx, query, runID, taskID, state, storageKey, mime, message)
	return err
}

// UpdateProgress bumps the run's completion percentage. GREATEST keeps it
// monotonic even if updates land out of order.
func (r *BatchRepositoryPG) UpdateProgress(ctx context.Context, runID string, progress int) error {
	query := `
UPDATE batch_runs SET progress = GREATEST(progress, $2), updated_at = NOW() WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, runID, progress)
	return err
}

// CompleteRun marks the run terminal.
func (r *BatchRepositoryPG) CompleteRun(ctx context.Context, runID string) error {
	query := `
UPDATE batch_runs SET status = $2, updated_at = NOW() WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, runID, domain.RunStatusCompleted)
	return err
}

// AbortRun discards every per-task result accumulated so far and records the
// single batch-level error.
func (r *BatchRepositoryPG) AbortRun(ctx context.Context, runID, message string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM batch_tasks WHERE run_id = $1;`, runID); err != nil {
		return fmt.Errorf("discard batch tasks: %w", err)
	}
	query := `
UPDATE batch_runs SET status = $2, error_message = $3, updated_at = NOW() WHERE id = $1;
`
	if _, err := tx.Exec(ctx, query, runID, domain.RunStatusAborted, message); err != nil {
		return fmt.Errorf("abort batch run: %w", err)
	}

	return tx.Commit(ctx)
}

// GetRun fetches a run with its task records ordered by submission position.
func (r *BatchRepositoryPG) GetRun(ctx context.Context, runID string) (*domain.BatchRun, []domain.TaskRecord, error) {
	query := `
SELECT id, session_key, prompt, status, progress, error_message, created_at, updated_at
FROM batch_runs WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, runID)
	var run domain.BatchRun
	if err := row.Scan(&run.ID, &run.SessionKey, &run.Prompt, &run.Status, &run.Progress,
		&run.ErrorMessage, &run.CreatedAt, &run.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, domain.ErrNotFound
		}
		return nil, nil, err
	}

	taskQuery := `
SELECT run_id, task_id, position, state, storage_key, mime, error_message, updated_at
FROM batch_tasks WHERE run_id = $1 ORDER BY position;
`
	rows, err := r.pool.Query(ctx, taskQuery, runID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var tasks []domain.TaskRecord
	for rows.Next() {
		var t domain.TaskRecord
		if err := rows.Scan(&t.RunID, &t.TaskID, &t.Position, &t.State, &t.StorageKey,
			&t.MIME, &t.ErrorMessage, &t.UpdatedAt); err != nil {
			return nil, nil, err
		}
		tasks = append(tasks, t)
	}
	return &run, tasks, rows.Err()
}
