package service

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/unclebandit/outreach-scheduler/internal/logger"
	"github.com/unclebandit/outreach-scheduler/internal/metrics"
	"github.com/unclebandit/outreach-scheduler/internal/model"
	"github.com/unclebandit/outreach-scheduler/internal/queue"
)

// TaskStore is the part of the ledger the dispatcher needs.
type TaskStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.EmailTask, error)
	Finish(ctx context.Context, id uuid.UUID, status model.TaskStatus, content string) (bool, error)
}

// DispatchWorker sends the emails of a due batch, one at a time, with a
// random pause between sends.
type DispatchWorker struct {
	TaskRepo TaskStore
	Outreach *Outreach
	MinDelay time.Duration
	MaxDelay time.Duration

	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
	// Delay picks the pause before the next send.
	Delay func() time.Duration
}

func NewDispatchWorker(repo TaskStore, outreach *Outreach, minDelay, maxDelay time.Duration) *DispatchWorker {
	return &DispatchWorker{
		TaskRepo: repo,
		Outreach: outreach,
		MinDelay: minDelay,
		MaxDelay: maxDelay,
	}
}

// BatchReport counts what happened to a batch's recipients.
type BatchReport struct {
	Sent    int
	Failed  int
	Skipped int
}

// HandleJob is a queue.Handler for batch jobs.
func (w *DispatchWorker) HandleJob(ctx context.Context, job queue.Job) error {
	var batch model.BatchJob
	if err := job.Decode(&batch); err != nil {
		// a body that cannot be decoded will not decode on redelivery either
		logger.FromContextWithErr(ctx, err).Error("dropping malformed batch job", slog.String("job_id", job.ID))
		return nil
	}

	log := logger.FromContext(ctx).With(
		slog.String("job_id", job.ID),
		slog.String("batch_id", batch.BatchID.String()),
	)
	ctx = logger.NewContext(ctx, log)

	report, err := w.ProcessBatch(ctx, batch)
	log.Info("batch processed",
		slog.Int("sent", report.Sent),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
	)
	return err
}

// ProcessBatch handles recipients in order. Tasks that are missing or no
// longer SCHEDULED are skipped, which makes redelivered batches safe to
// replay. Cancellation of ctx or a failed ledger read stops the loop early
// and returns an error so the job is redelivered.
func (w *DispatchWorker) ProcessBatch(ctx context.Context, batch model.BatchJob) (BatchReport, error) {
	var report BatchReport
	attempted := false

	for _, r := range batch.Recipients {
		log := logger.FromContext(ctx).With(slog.String("task_id", r.TaskID.String()))

		task, err := w.TaskRepo.GetByID(ctx, r.TaskID)
		if err != nil {
			// redelivery resumes here; finished tasks are skipped on replay
			return report, errors.Wrapf(err, "failed to load task %s", r.TaskID)
		}
		if task == nil || task.Status != model.TaskScheduled {
			log.Info("task not pending, skipping")
			report.Skipped++
			continue
		}

		outcome := w.precheck(r.Recipient)
		if outcome == nil {
			if attempted {
				if err := w.sleep(ctx, w.nextDelay()); err != nil {
					return report, err
				}
			}
			o := w.Outreach.Send(ctx, r.Recipient, task.ID.String())
			outcome = &o
			attempted = true
		}

		status := outcome.Status()
		if outcome.Err != nil {
			logger.FromContextWithErr(ctx, outcome.Err).Warn("send attempt failed", slog.String("task_id", task.ID.String()))
		}

		finished, err := w.TaskRepo.Finish(ctx, task.ID, status, outcome.Content)
		switch {
		case err != nil:
			logger.FromContextWithErr(ctx, err).Error("failed to record task outcome", slog.String("task_id", task.ID.String()))
		case !finished:
			log.Warn("task left SCHEDULED state before it was finished")
		}

		metrics.Dispatched.WithLabelValues(string(status)).Inc()
		if outcome.Sent {
			report.Sent++
		} else {
			report.Failed++
		}
	}
	return report, nil
}

// precheck settles recipients that are never handed to the composer.
func (w *DispatchWorker) precheck(r model.Recipient) *Outcome {
	if IsEnglishCompanyName(r.CompanyName) {
		return nil
	}
	return &Outcome{Content: model.ContentNotEnglish}
}

func (w *DispatchWorker) nextDelay() time.Duration {
	if w.Delay != nil {
		return w.Delay()
	}
	if w.MaxDelay <= w.MinDelay {
		return w.MinDelay
	}
	return w.MinDelay + rand.N(w.MaxDelay-w.MinDelay+1)
}

func (w *DispatchWorker) sleep(ctx context.Context, d time.Duration) error {
	if w.Sleep != nil {
		return w.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
