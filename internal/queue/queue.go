package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Queue is a topic based in-process queue.
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue implements Queue, ScheduledQueue and Consumer inside one process.
// Scheduled jobs are lost on restart.
type InMemoryQueue struct {
	MaxRetries  int
	Concurrency int

	mu       sync.Mutex
	handlers map[string][]func(payload any) error
	timers   map[string]*time.Timer
	due      chan Job
	stop     chan struct{}
	closed   bool
}

// dueBuffer is how many fired jobs may wait for a free Consume slot before
// further timers block in fire.
const dueBuffer = 1024

var (
	_ Queue          = (*InMemoryQueue)(nil)
	_ ScheduledQueue = (*InMemoryQueue)(nil)
	_ Consumer       = (*InMemoryQueue)(nil)
)

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		MaxRetries:  DefaultMaxRetries,
		Concurrency: DefaultConcurrency,
		handlers:    make(map[string][]func(payload any) error),
		timers:      make(map[string]*time.Timer),
		due:         make(chan Job, dueBuffer),
		stop:        make(chan struct{}),
	}
}

// JobPayload wraps a message payload with retry info.
type JobPayload struct {
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers of topic.
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		go q.processJob(handler, JobPayload{Payload: payload, MaxRetries: q.MaxRetries})
	}
	return nil
}

// Subscribe adds a handler for a topic.
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// processJob runs handler until it succeeds or retries are exhausted.
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	for job.RetryCount <= job.MaxRetries {
		err := handler(job.Payload)
		if err == nil {
			return
		}

		job.RetryCount++
		slog.Warn("job failed", "attempt", job.RetryCount, "max_retries", job.MaxRetries, "error", err)

		if job.RetryCount > job.MaxRetries {
			slog.Error("job permanently failed", "attempts", job.RetryCount)
			return
		}

		time.Sleep(retryBackoff(job.RetryCount))
	}
}

// Enqueue arms a timer that hands the job to Consume once notBefore passes.
func (q *InMemoryQueue) Enqueue(_ context.Context, payload any, notBefore time.Time) (string, error) {
	body, err := encodeBody(payload)
	if err != nil {
		return "", err
	}
	job := Job{ID: uuid.NewString(), Body: body, NotBefore: notBefore}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", errors.New("queue is closed")
	}
	q.timers[job.ID] = time.AfterFunc(time.Until(notBefore), func() { q.fire(job) })
	return job.ID, nil
}

func (q *InMemoryQueue) fire(job Job) {
	q.mu.Lock()
	delete(q.timers, job.ID)
	q.mu.Unlock()
	select {
	case q.due <- job:
	case <-q.stop:
		slog.Warn("queue closed, dropping fired job", "job_id", job.ID)
	}
}

// Pending reports how many scheduled jobs have not fired yet.
func (q *InMemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// Consume blocks, running handler for each due job with bounded concurrency.
func (q *InMemoryQueue) Consume(ctx context.Context, handler Handler) error {
	concurrency := q.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-q.due:
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				attempt := 0
				q.processJob(func(payload any) error {
					attempt++
					j := payload.(Job)
					j.Attempt = attempt
					return handler(ctx, j)
				}, JobPayload{Payload: job, MaxRetries: q.MaxRetries})
			}()
		}
	}
}

// Close stops all timers that have not fired yet and releases timers
// blocked on a full due buffer.
func (q *InMemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		close(q.stop)
	}
	q.closed = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
}
