package repository

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/outreach-scheduler/internal/model"
)

// RunRepositoryInterface stores the lifecycle of scheduling runs.
type RunRepositoryInterface interface {
	SetStatus(ctx context.Context, id string, status model.RunStatus, runErr error) error
	// Get reports unknown runs as pending.
	Get(ctx context.Context, id string) (*model.SchedulingRun, error)
}

const (
	runKeyPrefix  = "outreach:run:"
	DefaultRunTTL = 24 * time.Hour
)

// RunRepository keeps run state in a Redis hash that expires after TTL.
type RunRepository struct {
	Client redis.UniversalClient
	TTL    time.Duration
}

var _ RunRepositoryInterface = (*RunRepository)(nil)

func (r *RunRepository) SetStatus(ctx context.Context, id string, status model.RunStatus, runErr error) error {
	key := runKeyPrefix + id
	fields := map[string]any{
		"status":     string(status),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
		"error":      "",
	}
	if runErr != nil {
		fields["error"] = runErr.Error()
	}

	ttl := r.TTL
	if ttl <= 0 {
		ttl = DefaultRunTTL
	}

	_, err := r.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, fields)
		p.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to store run %s status", id)
	}
	return nil
}

func (r *RunRepository) Get(ctx context.Context, id string) (*model.SchedulingRun, error) {
	values, err := r.Client.HGetAll(ctx, runKeyPrefix+id).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get run %s", id)
	}

	run := &model.SchedulingRun{ID: id, Status: model.RunPending}
	if len(values) == 0 {
		return run, nil
	}
	run.Status = model.RunStatus(values["status"])
	run.Error = values["error"]
	if ts, err := time.Parse(time.RFC3339Nano, values["updated_at"]); err == nil {
		run.UpdatedAt = ts
	}
	return run, nil
}

// MemoryRunRepository is the in-process variant used with the memory queue.
type MemoryRunRepository struct {
	mu   sync.RWMutex
	runs map[string]model.SchedulingRun
}

var _ RunRepositoryInterface = (*MemoryRunRepository)(nil)

func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{runs: make(map[string]model.SchedulingRun)}
}

func (r *MemoryRunRepository) SetStatus(_ context.Context, id string, status model.RunStatus, runErr error) error {
	run := model.SchedulingRun{ID: id, Status: status, UpdatedAt: time.Now().UTC()}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	r.mu.Lock()
	r.runs[id] = run
	r.mu.Unlock()
	return nil
}

func (r *MemoryRunRepository) Get(_ context.Context, id string) (*model.SchedulingRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if run, ok := r.runs[id]; ok {
		return &run, nil
	}
	return &model.SchedulingRun{ID: id, Status: model.RunPending}, nil
}
