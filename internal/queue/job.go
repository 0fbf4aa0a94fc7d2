package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Job is one scheduled unit of work.
type Job struct {
	ID        string          `json:"id"`
	Body      json.RawMessage `json:"body"`
	NotBefore time.Time       `json:"not_before"`
	Attempt   int             `json:"attempt"`
}

// Decode unmarshals the job body into v.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Body, v); err != nil {
		return errors.Wrapf(err, "failed to decode job %s", j.ID)
	}
	return nil
}

// ScheduledQueue accepts payloads that must run no earlier than notBefore.
// Delivery is at least once; notBefore is a lower bound only.
type ScheduledQueue interface {
	Enqueue(ctx context.Context, payload any, notBefore time.Time) (string, error)
}

// Handler processes a due job. A non-nil error asks the queue to redeliver it.
type Handler func(ctx context.Context, job Job) error

// Consumer delivers due jobs to a handler until ctx is cancelled.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
}

const (
	DefaultMaxRetries  = 3
	DefaultConcurrency = 4
)

func encodeBody(payload any) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode job payload")
	}
	return b, nil
}

// interrupted reports whether err is the consumer's own cancellation rather than a job failure.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}

// retryBackoff grows linearly with the attempt number.
func retryBackoff(attempt int) time.Duration {
	return time.Duration(attempt*500) * time.Millisecond
}
