package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	appErrors "github.com/unclebandit/outreach-scheduler/internal/errors"
	"github.com/unclebandit/outreach-scheduler/internal/model"
)

const uniqueViolation = pq.ErrorCode("23505")

// EmailTaskRepositoryInterface is the task ledger.
type EmailTaskRepositoryInterface interface {
	// Register creates a SCHEDULED task for email, or returns appErrors.ErrDuplicateRecipient.
	Register(ctx context.Context, email string) (*model.EmailTask, error)
	// GetByID returns nil, nil when the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*model.EmailTask, error)
	// Finish moves a SCHEDULED task to a terminal status. It reports false when
	// the task was not SCHEDULED and nothing changed.
	Finish(ctx context.Context, id uuid.UUID, status model.TaskStatus, content string) (bool, error)
	MarkOpened(ctx context.Context, id uuid.UUID) error
}

type EmailTaskRepository struct {
	DB *sqlx.DB
}

var _ EmailTaskRepositoryInterface = (*EmailTaskRepository)(nil)

const taskColumns = `id, recipient_email, batch_id, email_content, status, created_at, updated_at`

func (r *EmailTaskRepository) Register(ctx context.Context, email string) (*model.EmailTask, error) {
	now := time.Now().UTC()
	query := `
        INSERT INTO email_tasks (id, recipient_email, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $4)
        ON CONFLICT (recipient_email) DO NOTHING
        RETURNING ` + taskColumns

	var task model.EmailTask
	err := r.DB.GetContext(ctx, &task, query, uuid.New(), email, model.TaskScheduled, now)
	if err != nil {
		// no row back means the conflict branch was taken
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return nil, appErrors.ErrDuplicateRecipient
		}
		return nil, errors.Wrapf(err, "failed to register %s", email)
	}
	return &task, nil
}

func (r *EmailTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.EmailTask, error) {
	var task model.EmailTask
	err := r.DB.GetContext(ctx, &task, `SELECT `+taskColumns+` FROM email_tasks WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to get email task %s", id)
	}
	return &task, nil
}

func (r *EmailTaskRepository) Finish(ctx context.Context, id uuid.UUID, status model.TaskStatus, content string) (bool, error) {
	if status != model.TaskSent && status != model.TaskSendingFailed {
		return false, errors.Errorf("invalid finish status %q", status)
	}
	res, err := r.DB.ExecContext(ctx, `
        UPDATE email_tasks
        SET status = $2, email_content = $3, updated_at = $4
        WHERE id = $1 AND status = $5`,
		id, status, content, time.Now().UTC(), model.TaskScheduled)
	if err != nil {
		return false, errors.Wrapf(err, "failed to finish email task %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read rows affected")
	}
	return n == 1, nil
}

func (r *EmailTaskRepository) MarkOpened(ctx context.Context, id uuid.UUID) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE email_tasks SET status = $2, updated_at = $3 WHERE id = $1`,
		id, model.TaskOpened, time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "failed to mark email task %s opened", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if n == 0 {
		return appErrors.NewTaskNotFound(id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
