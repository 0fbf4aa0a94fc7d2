package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/unclebandit/outreach-scheduler/internal/model"
)

const TopicSchedulingRuns = "scheduling_runs"

// SchedulingRunner plans one accepted upload.
type SchedulingRunner interface {
	Run(ctx context.Context, job model.SchedulingRunJob) error
}

// StartSchedulingRunSubscriber wires runner to the scheduling_runs topic.
func StartSchedulingRunSubscriber(ctx context.Context, q Queue, runner SchedulingRunner) error {
	return q.Subscribe(TopicSchedulingRuns, func(payload any) error {
		job, ok := payload.(model.SchedulingRunJob)
		if !ok {
			slog.Error("invalid scheduling run payload", "type", fmt.Sprintf("%T", payload))
			return nil // no retry
		}

		slog.Info("processing scheduling run", "run_id", job.RunID, "recipients", len(job.Recipients))
		return runner.Run(ctx, job)
	})
}
