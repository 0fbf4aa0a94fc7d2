package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/unclebandit/outreach-scheduler/internal/model"
)

type BatchRepositoryInterface interface {
	// Create stores the batch and sets batch_id on its tasks in one transaction.
	Create(ctx context.Context, batch *model.Batch) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Batch, error)
}

type BatchRepository struct {
	DB *sqlx.DB
}

var _ BatchRepositoryInterface = (*BatchRepository)(nil)

func (r *BatchRepository) Create(ctx context.Context, batch *model.Batch) (err error) {
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO batches (id, utc_offset, scheduled_processing_time, job_id, created_at)
        VALUES ($1, $2, $3, $4, $5)`,
		batch.ID, batch.UTCOffset, batch.ScheduledProcessingTime.UTC(), batch.JobID, batch.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "failed to insert batch %s", batch.ID)
	}

	if len(batch.TaskIDs) > 0 {
		ids := make([]string, len(batch.TaskIDs))
		for i, id := range batch.TaskIDs {
			ids[i] = id.String()
		}
		// batch_id is written once
		_, err = tx.ExecContext(ctx, `
            UPDATE email_tasks SET batch_id = $1
            WHERE id = ANY($2::uuid[]) AND batch_id IS NULL`,
			batch.ID, pq.Array(ids))
		if err != nil {
			return errors.Wrapf(err, "failed to attach tasks to batch %s", batch.ID)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit batch")
	}
	return nil
}

func (r *BatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Batch, error) {
	var batch model.Batch
	err := r.DB.GetContext(ctx, &batch, `
        SELECT id, utc_offset, scheduled_processing_time, job_id, created_at
        FROM batches WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to get batch %s", id)
	}

	if err := r.DB.SelectContext(ctx, &batch.TaskIDs,
		`SELECT id FROM email_tasks WHERE batch_id = $1 ORDER BY created_at, id`, id); err != nil {
		return nil, errors.Wrapf(err, "failed to list tasks of batch %s", id)
	}
	return &batch, nil
}
