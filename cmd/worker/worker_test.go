package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-scheduler/internal/config"
	"github.com/unclebandit/outreach-scheduler/internal/model"
	"github.com/unclebandit/outreach-scheduler/internal/queue"
	"github.com/unclebandit/outreach-scheduler/internal/service"
	"github.com/unclebandit/outreach-scheduler/internal/transport"
)

// MockTaskRepo stores tasks in memory
type MockTaskRepo struct {
	tasks map[uuid.UUID]*model.EmailTask
	mu    sync.Mutex
}

func (m *MockTaskRepo) GetByID(_ context.Context, id uuid.UUID) (*model.EmailTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *MockTaskRepo) Finish(_ context.Context, id uuid.UUID, status model.TaskStatus, content string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tasks[id]
	if t == nil || t.Status != model.TaskScheduled {
		return false, nil
	}
	t.Status = status
	t.EmailContent = &content
	return true, nil
}

type staticComposer struct{}

func (staticComposer) Compose(_ context.Context, _, company, _ string) (string, error) {
	return "Hello " + company, nil
}

// signallingTransport succeeds and reports each delivery
type signallingTransport struct {
	wg *sync.WaitGroup
}

func (s signallingTransport) Deliver(context.Context, transport.Email) error {
	s.wg.Done()
	return nil
}

func TestWorker(t *testing.T) {
	id := uuid.New()
	repo := &MockTaskRepo{tasks: map[uuid.UUID]*model.EmailTask{
		id: {ID: id, RecipientEmail: "ann@acme.example", Status: model.TaskScheduled},
	}}

	var wg sync.WaitGroup
	wg.Add(1)

	outreach := &service.Outreach{Composer: staticComposer{}, Transport: signallingTransport{wg: &wg}}
	worker := service.NewDispatchWorker(repo, outreach, 0, 0)

	q := queue.NewInMemoryQueue()
	defer q.Close()

	_, err := q.Enqueue(context.Background(), model.BatchJob{
		BatchID: uuid.New(),
		Recipients: []model.BatchRecipient{{
			TaskID:    id,
			Recipient: model.Recipient{Email: "ann@acme.example", CompanyName: "Acme", FirstName: "Ann"},
		}},
	}, time.Now())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Consume(ctx, worker.HandleJob)
	}()

	// Wait until worker delivers the email
	wg.Wait()
	cancel()
	<-done

	task, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.TaskSent, task.Status)
	assert.Equal(t, "Hello Acme", *task.EmailContent)
}

func TestRunRejectsMemoryQueue(t *testing.T) {
	err := run(context.Background(), &config.Config{Queue: config.QueueConfig{Provider: "memory"}})
	assert.Error(t, err)
}
