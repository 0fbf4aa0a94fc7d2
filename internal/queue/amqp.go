package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/streadway/amqp"
)

const (
	DefaultDelayedExchange = "outreach.delayed"
	DefaultBatchQueue      = "outreach_batches"

	headerDelay      = "x-delay"
	headerNotBefore  = "x-not-before"
	headerRetryCount = "x-retry-count"

	// the delayed-message exchange stores the delay as a 32 bit integer
	maxDelay = time.Duration(1<<32-1) * time.Millisecond
)

// AMQPQueue is a ScheduledQueue on RabbitMQ using the delayed-message exchange
// plugin. A message that surfaces before its not-before time is published
// again with the remaining delay.
type AMQPQueue struct {
	Exchange    string
	QueueName   string
	Concurrency int
	MaxRetries  int

	conn *amqp.Connection
	pub  *amqp.Channel
	mu   sync.Mutex // guards pub
	now  func() time.Time
}

var (
	_ ScheduledQueue = (*AMQPQueue)(nil)
	_ Consumer       = (*AMQPQueue)(nil)
)

// DialAMQP connects and declares the exchange, queue and binding.
func DialAMQP(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to RabbitMQ")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to open a channel")
	}

	q := &AMQPQueue{
		Exchange:    DefaultDelayedExchange,
		QueueName:   DefaultBatchQueue,
		Concurrency: DefaultConcurrency,
		MaxRetries:  DefaultMaxRetries,
		conn:        conn,
		pub:         ch,
		now:         time.Now,
	}
	if err := q.declare(ch); err != nil {
		_ = q.Close()
		return nil, err
	}
	return q, nil
}

func (q *AMQPQueue) declare(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		q.Exchange,
		"x-delayed-message",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		amqp.Table{"x-delayed-type": "direct"},
	)
	if err != nil {
		return errors.Wrap(err, "failed to declare delayed exchange")
	}

	_, err = ch.QueueDeclare(
		q.QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "failed to declare queue")
	}

	if err := ch.QueueBind(q.QueueName, q.QueueName, q.Exchange, false, nil); err != nil {
		return errors.Wrap(err, "failed to bind queue")
	}
	return nil
}

func (q *AMQPQueue) Enqueue(_ context.Context, payload any, notBefore time.Time) (string, error) {
	body, err := encodeBody(payload)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := q.publish(id, body, notBefore, 0); err != nil {
		return "", err
	}
	return id, nil
}

func (q *AMQPQueue) publish(id string, body []byte, notBefore time.Time, retries int) error {
	now := q.now()
	msg := amqp.Publishing{
		MessageId:    id,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Body:         body,
		Headers: amqp.Table{
			headerDelay:      delayMillis(notBefore, now),
			headerNotBefore:  notBefore.UTC().Format(time.RFC3339Nano),
			headerRetryCount: int32(retries),
		},
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.pub.Publish(q.Exchange, q.QueueName, false, false, msg); err != nil {
		return errors.Wrapf(err, "failed to publish job %s", id)
	}
	return nil
}

// Consume runs handler for every delivery with manual acknowledgements.
func (q *AMQPQueue) Consume(ctx context.Context, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return errors.Wrap(err, "failed to open consumer channel")
	}
	defer ch.Close()

	concurrency := q.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if err := ch.Qos(concurrency, 0, false); err != nil {
		return errors.Wrap(err, "failed to set qos")
	}

	msgs, err := ch.Consume(
		q.QueueName,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "failed to register consumer")
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				q.handle(ctx, handler, d)
			}(d)
		}
	}
}

func (q *AMQPQueue) handle(ctx context.Context, handler Handler, d amqp.Delivery) {
	notBefore := parseNotBefore(d.Headers)
	retries := retryCount(d.Headers)

	if !notBefore.IsZero() && q.now().Before(notBefore) {
		// delay was clamped; wait out the remainder
		if err := q.publish(d.MessageId, d.Body, notBefore, retries); err != nil {
			slog.Error("failed to re-delay job", "job_id", d.MessageId, "error", err)
			_ = d.Nack(false, true)
			return
		}
		_ = d.Ack(false)
		return
	}

	job := Job{ID: d.MessageId, Body: d.Body, NotBefore: notBefore, Attempt: retries + 1}
	if err := handler(ctx, job); err != nil {
		if interrupted(ctx, err) {
			// requeue keeps the retry header unchanged
			slog.Info("job interrupted, requeueing", "job_id", job.ID, "attempt", job.Attempt)
			_ = d.Nack(false, true)
			return
		}
		slog.Warn("job failed", "job_id", job.ID, "attempt", job.Attempt, "error", err)
		if retries < q.MaxRetries {
			if perr := q.publish(d.MessageId, d.Body, q.now().Add(retryBackoff(job.Attempt)), retries+1); perr != nil {
				_ = d.Nack(false, true)
				return
			}
		} else {
			slog.Error("job permanently failed", "job_id", job.ID, "attempts", job.Attempt)
		}
	}
	_ = d.Ack(false)
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pub != nil {
		_ = q.pub.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

func delayMillis(notBefore, now time.Time) int64 {
	d := notBefore.Sub(now)
	if d < 0 {
		return 0
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d.Milliseconds()
}

func parseNotBefore(h amqp.Table) time.Time {
	s, ok := h[headerNotBefore].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// retryCount reads the retry header whatever integer width the broker returned.
func retryCount(h amqp.Table) int {
	switch v := h[headerRetryCount].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}
