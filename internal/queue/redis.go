package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// claimScript moves due jobs from the scheduled set to the processing set,
// scoring them with their lease deadline.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('ZADD', KEYS[2], ARGV[2], id)
end
return ids
`)

// reapScript returns jobs whose lease expired to the scheduled set.
var reapScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[2], id)
  redis.call('ZADD', KEYS[1], ARGV[1], id)
end
return #ids
`)

// RedisQueue is a durable ScheduledQueue backed by sorted sets scored by
// not-before time. Claimed jobs hold a lease; a job whose worker dies is
// redelivered once the lease expires.
type RedisQueue struct {
	Client       redis.UniversalClient
	Prefix       string
	PollInterval time.Duration
	Lease        time.Duration
	Concurrency  int
	MaxRetries   int

	now func() time.Time
}

var (
	_ ScheduledQueue = (*RedisQueue)(nil)
	_ Consumer       = (*RedisQueue)(nil)
)

func NewRedisQueue(client redis.UniversalClient, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "outreach:batches"
	}
	return &RedisQueue{
		Client:       client,
		Prefix:       prefix,
		PollInterval: 5 * time.Second,
		Lease:        6 * time.Hour,
		Concurrency:  DefaultConcurrency,
		MaxRetries:   DefaultMaxRetries,
		now:          time.Now,
	}
}

func (q *RedisQueue) scheduledKey() string  { return q.Prefix + ":scheduled" }
func (q *RedisQueue) processingKey() string { return q.Prefix + ":processing" }
func (q *RedisQueue) jobsKey() string       { return q.Prefix + ":jobs" }

func (q *RedisQueue) Enqueue(ctx context.Context, payload any, notBefore time.Time) (string, error) {
	body, err := encodeBody(payload)
	if err != nil {
		return "", err
	}
	job := Job{ID: uuid.NewString(), Body: body, NotBefore: notBefore.UTC()}
	if err := q.store(ctx, job, notBefore); err != nil {
		return "", err
	}
	return job.ID, nil
}

func (q *RedisQueue) store(ctx context.Context, job Job, at time.Time) error {
	envelope, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "failed to encode job envelope")
	}
	_, err = q.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.jobsKey(), job.ID, envelope)
		p.ZRem(ctx, q.processingKey(), job.ID)
		p.ZAdd(ctx, q.scheduledKey(), redis.Z{Score: float64(at.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to schedule job %s", job.ID)
	}
	return nil
}

// Claim leases up to limit due jobs.
func (q *RedisQueue) Claim(ctx context.Context, limit int) ([]Job, error) {
	now := q.now()
	ids, err := claimScript.Run(ctx, q.Client,
		[]string{q.scheduledKey(), q.processingKey()},
		now.UnixMilli(), now.Add(q.Lease).UnixMilli(), limit,
	).StringSlice()
	if err != nil {
		return nil, errors.Wrap(err, "failed to claim due jobs")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	raw, err := q.Client.HMGet(ctx, q.jobsKey(), ids...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load claimed jobs")
	}

	jobs := make([]Job, 0, len(ids))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			slog.Warn("claimed job has no body, dropping", "job_id", ids[i])
			_ = q.Ack(ctx, ids[i])
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(s), &job); err != nil {
			slog.Error("claimed job is corrupt, dropping", "job_id", ids[i], "error", err)
			_ = q.Ack(ctx, ids[i])
			continue
		}
		job.Attempt++
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Ack removes a finished job.
func (q *RedisQueue) Ack(ctx context.Context, id string) error {
	_, err := q.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, q.processingKey(), id)
		p.HDel(ctx, q.jobsKey(), id)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to ack job %s", id)
	}
	return nil
}

// Retry reschedules a failed job after a backoff, or drops it once retries are exhausted.
func (q *RedisQueue) Retry(ctx context.Context, job Job) error {
	if job.Attempt > q.MaxRetries {
		slog.Error("job permanently failed", "job_id", job.ID, "attempts", job.Attempt)
		return q.Ack(ctx, job.ID)
	}
	return q.store(ctx, job, q.now().Add(retryBackoff(job.Attempt)))
}

// Reap returns expired leases to the scheduled set.
func (q *RedisQueue) Reap(ctx context.Context) (int, error) {
	n, err := reapScript.Run(ctx, q.Client,
		[]string{q.scheduledKey(), q.processingKey()},
		q.now().UnixMilli(),
	).Int()
	if err != nil {
		return 0, errors.Wrap(err, "failed to reap expired leases")
	}
	return n, nil
}

// Len reports scheduled and in-flight job counts.
func (q *RedisQueue) Len(ctx context.Context) (scheduled, processing int64, err error) {
	scheduled, err = q.Client.ZCard(ctx, q.scheduledKey()).Result()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to count scheduled jobs")
	}
	processing, err = q.Client.ZCard(ctx, q.processingKey()).Result()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to count processing jobs")
	}
	return scheduled, processing, nil
}

// Consume polls for due jobs every PollInterval until ctx is cancelled.
func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	concurrency := q.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	ticker := time.NewTicker(q.PollInterval)
	defer ticker.Stop()

	for {
		q.poll(ctx, handler, sem, &wg)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (q *RedisQueue) poll(ctx context.Context, handler Handler, sem chan struct{}, wg *sync.WaitGroup) {
	if n, err := q.Reap(ctx); err != nil {
		slog.Error("reap failed", "error", err)
	} else if n > 0 {
		slog.Warn("requeued jobs with expired lease", "count", n)
	}

	free := cap(sem) - len(sem)
	if free == 0 {
		return
	}
	jobs, err := q.Claim(ctx, free)
	if err != nil {
		slog.Error("claim failed", "error", err)
		return
	}

	for _, job := range jobs {
		sem <- struct{}{}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			defer func() { <-sem }()
			q.handle(ctx, handler, job)
		}(job)
	}
}

func (q *RedisQueue) handle(ctx context.Context, handler Handler, job Job) {
	// settle the job even when ctx was cancelled mid-run
	settleCtx := context.WithoutCancel(ctx)

	if err := handler(ctx, job); err != nil {
		if interrupted(ctx, err) {
			// shutdown does not count as an attempt
			slog.Info("job interrupted, putting it back", "job_id", job.ID, "attempt", job.Attempt)
			job.Attempt--
			if err := q.store(settleCtx, job, q.now()); err != nil {
				slog.Error("failed to put back interrupted job", "job_id", job.ID, "error", err)
			}
			return
		}
		slog.Warn("job failed", "job_id", job.ID, "attempt", job.Attempt, "error", err)
		if err := q.Retry(settleCtx, job); err != nil {
			slog.Error("failed to reschedule job", "job_id", job.ID, "error", err)
		}
		return
	}
	if err := q.Ack(settleCtx, job.ID); err != nil {
		slog.Error("failed to ack job", "job_id", job.ID, "error", err)
	}
}
