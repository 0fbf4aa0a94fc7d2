package service

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	appErrors "github.com/unclebandit/outreach-scheduler/internal/errors"
	"github.com/unclebandit/outreach-scheduler/internal/logger"
	"github.com/unclebandit/outreach-scheduler/internal/metrics"
	"github.com/unclebandit/outreach-scheduler/internal/model"
	"github.com/unclebandit/outreach-scheduler/internal/queue"
	"github.com/unclebandit/outreach-scheduler/internal/repository"
)

// OffsetResolver maps location candidates to a UTC offset in hours.
type OffsetResolver interface {
	Offset(ctx context.Context, candidates ...string) float64
}

// SchedulingService turns an uploaded recipient list into timed batch jobs.
type SchedulingService struct {
	Resolver  OffsetResolver
	Sizer     BatchSizer
	Planner   *Planner
	TaskRepo  repository.EmailTaskRepositoryInterface
	BatchRepo repository.BatchRepositoryInterface
	RunRepo   repository.RunRepositoryInterface
	Queue     queue.ScheduledQueue
	Now       func() time.Time
}

var _ queue.SchedulingRunner = (*SchedulingService)(nil)

// ScheduleResult summarises one scheduling pass.
type ScheduleResult struct {
	Batches    []*model.Batch
	Scheduled  int
	Duplicates int
	Failed     int
}

type offsetGroup struct {
	hours      float64
	recipients []model.Recipient
}

// Run executes a queued scheduling run and records its lifecycle. Failures
// are recorded on the run rather than returned, so a run is never replayed.
func (s *SchedulingService) Run(ctx context.Context, job model.SchedulingRunJob) error {
	log := logger.FromContext(ctx).With(slog.String("run_id", job.RunID))
	ctx = logger.NewContext(ctx, log)

	if err := s.RunRepo.SetStatus(ctx, job.RunID, model.RunStarted, nil); err != nil {
		logger.FromContextWithErr(ctx, err).Error("failed to mark run started")
	}

	res, err := s.Schedule(ctx, job.Recipients)
	status := model.RunDone
	if err != nil {
		status = model.RunFailed
		logger.FromContextWithErr(ctx, err).Error("scheduling run failed")
	}
	metrics.SchedulingRuns.WithLabelValues(string(status)).Inc()

	if setErr := s.RunRepo.SetStatus(ctx, job.RunID, status, err); setErr != nil {
		logger.FromContextWithErr(ctx, setErr).Error("failed to record run status", slog.String("status", string(status)))
	}

	if res != nil {
		log.Info("scheduling run finished",
			slog.String("status", string(status)),
			slog.Int("batches", len(res.Batches)),
			slog.Int("scheduled", res.Scheduled),
			slog.Int("duplicates", res.Duplicates),
			slog.Int("failed", res.Failed),
		)
	}
	return nil
}

// Schedule groups recipients by UTC offset, splits each group into batches,
// registers every recipient in the ledger and enqueues one job per batch at
// its planned time. Groups are planned in ascending offset order and share
// the daily cap.
func (s *SchedulingService) Schedule(ctx context.Context, recipients []model.Recipient) (*ScheduleResult, error) {
	log := logger.FromContext(ctx)
	now := s.now()

	groups := s.groupByOffset(ctx, recipients)
	state := s.Planner.Start(now)
	res := &ScheduleResult{}

	for _, g := range groups {
		s.Planner.EnterGroup(state, g.hours)

		for _, chunk := range SplitBatches(g.recipients, s.Sizer) {
			members := s.register(ctx, chunk, res)
			if len(members) == 0 {
				continue
			}

			at := s.Planner.Assign(state, len(members))
			batch, err := s.enqueue(ctx, g.hours, at, members)
			if err != nil {
				res.Failed += len(members)
				logger.FromContextWithErr(ctx, err).Error("failed to schedule batch",
					slog.Float64("utc_offset", g.hours),
					slog.Int("size", len(members)),
				)
				continue
			}

			res.Batches = append(res.Batches, batch)
			res.Scheduled += len(members)
			metrics.BatchesScheduled.Inc()
			metrics.RecipientsScheduled.Add(float64(len(members)))
			metrics.ScheduleLeadSeconds.Observe(at.Sub(now).Seconds())

			log.Info("batch scheduled",
				slog.String("batch_id", batch.ID.String()),
				slog.Float64("utc_offset", g.hours),
				slog.Int("size", len(members)),
				slog.Time("scheduled_at", at),
			)
		}
	}

	if res.Failed > 0 {
		return res, errors.Errorf("%d of %d recipients could not be scheduled", res.Failed, len(recipients))
	}
	return res, nil
}

func (s *SchedulingService) groupByOffset(ctx context.Context, recipients []model.Recipient) []offsetGroup {
	byMinutes := make(map[time.Duration]*offsetGroup)
	for _, r := range recipients {
		hours := s.Resolver.Offset(ctx, r.Locations...)
		key := OffsetDuration(hours)
		g, ok := byMinutes[key]
		if !ok {
			g = &offsetGroup{hours: hours}
			byMinutes[key] = g
		}
		g.recipients = append(g.recipients, r)
	}

	keys := make([]time.Duration, 0, len(byMinutes))
	for k := range byMinutes {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	groups := make([]offsetGroup, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, *byMinutes[k])
	}
	return groups
}

// register records each recipient in the ledger. Recipients already known to
// the ledger are dropped and do not count toward the batch.
func (s *SchedulingService) register(ctx context.Context, chunk []model.Recipient, res *ScheduleResult) []model.BatchRecipient {
	members := make([]model.BatchRecipient, 0, len(chunk))
	for _, r := range chunk {
		task, err := s.TaskRepo.Register(ctx, r.Email)
		switch {
		case errors.Is(err, appErrors.ErrDuplicateRecipient):
			res.Duplicates++
			metrics.DuplicateRecipients.Inc()
			logger.FromContext(ctx).Info("recipient already registered, skipping", slog.String("email", r.Email))
			continue
		case err != nil:
			res.Failed++
			logger.FromContextWithErr(ctx, err).Error("failed to register recipient", slog.String("email", r.Email))
			continue
		}
		members = append(members, model.BatchRecipient{TaskID: task.ID, Recipient: r})
	}
	return members
}

func (s *SchedulingService) enqueue(ctx context.Context, hours float64, at time.Time, members []model.BatchRecipient) (*model.Batch, error) {
	batch := &model.Batch{
		ID:                      uuid.New(),
		UTCOffset:               hours,
		ScheduledProcessingTime: at,
		CreatedAt:               s.now(),
		TaskIDs:                 make([]uuid.UUID, 0, len(members)),
	}
	for _, m := range members {
		batch.TaskIDs = append(batch.TaskIDs, m.TaskID)
	}

	job := model.BatchJob{BatchID: batch.ID, UTCOffset: hours, Recipients: members}
	jobID, err := s.Queue.Enqueue(ctx, job, at)
	if err != nil {
		s.failTasks(ctx, batch.TaskIDs)
		return nil, errors.Wrap(err, "failed to enqueue batch job")
	}
	batch.JobID = &jobID

	// the job is already queued, so a missing batch row only loses bookkeeping
	if err := s.BatchRepo.Create(ctx, batch); err != nil {
		logger.FromContextWithErr(ctx, err).Error("failed to persist batch", slog.String("batch_id", batch.ID.String()))
	}
	return batch, nil
}

func (s *SchedulingService) failTasks(ctx context.Context, ids []uuid.UUID) {
	for _, id := range ids {
		if _, err := s.TaskRepo.Finish(ctx, id, model.TaskSendingFailed, model.ContentError); err != nil {
			logger.FromContextWithErr(ctx, err).Error("failed to mark task failed", slog.String("task_id", id.String()))
		}
	}
}

func (s *SchedulingService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
