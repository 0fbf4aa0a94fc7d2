package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	appErrors "github.com/unclebandit/outreach-scheduler/internal/errors"
	"github.com/unclebandit/outreach-scheduler/internal/model"
	"github.com/unclebandit/outreach-scheduler/internal/transport"
)

// MockTaskRepo is an in-memory ledger.
type MockTaskRepo struct {
	mu          sync.Mutex
	tasks       map[uuid.UUID]*model.EmailTask
	byEmail     map[string]uuid.UUID
	RegisterErr map[string]error
	GetErr      error
}

func NewMockTaskRepo() *MockTaskRepo {
	return &MockTaskRepo{
		tasks:       make(map[uuid.UUID]*model.EmailTask),
		byEmail:     make(map[string]uuid.UUID),
		RegisterErr: make(map[string]error),
	}
}

func (m *MockTaskRepo) Register(_ context.Context, email string) (*model.EmailTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.RegisterErr[email]; err != nil {
		return nil, err
	}
	if _, ok := m.byEmail[email]; ok {
		return nil, appErrors.ErrDuplicateRecipient
	}
	task := &model.EmailTask{ID: uuid.New(), RecipientEmail: email, Status: model.TaskScheduled}
	m.tasks[task.ID] = task
	m.byEmail[email] = task.ID
	cp := *task
	return &cp, nil
}

func (m *MockTaskRepo) GetByID(_ context.Context, id uuid.UUID) (*model.EmailTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	task, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *task
	return &cp, nil
}

func (m *MockTaskRepo) Finish(_ context.Context, id uuid.UUID, status model.TaskStatus, content string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok || task.Status != model.TaskScheduled {
		return false, nil
	}
	task.Status = status
	task.EmailContent = &content
	return true, nil
}

func (m *MockTaskRepo) MarkOpened(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return appErrors.NewTaskNotFound(id)
	}
	task.Status = model.TaskOpened
	return nil
}

func (m *MockTaskRepo) ByEmail(email string) *model.EmailTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil
	}
	cp := *m.tasks[id]
	return &cp
}

// Seed stores a task directly, bypassing Register.
func (m *MockTaskRepo) Seed(email string, status model.TaskStatus) *model.EmailTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := &model.EmailTask{ID: uuid.New(), RecipientEmail: email, Status: status}
	m.tasks[task.ID] = task
	m.byEmail[email] = task.ID
	cp := *task
	return &cp
}

type MockBatchRepo struct {
	mu      sync.Mutex
	Batches []*model.Batch
	Err     error
}

func (m *MockBatchRepo) Create(_ context.Context, batch *model.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Batches = append(m.Batches, batch)
	return nil
}

func (m *MockBatchRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.Batches {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, appErrors.NewTaskNotFound(id)
}

type enqueued struct {
	Job       model.BatchJob
	NotBefore time.Time
}

type MockQueue struct {
	mu   sync.Mutex
	Jobs []enqueued
	Err  error
}

func (m *MockQueue) Enqueue(_ context.Context, payload any, notBefore time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	job, ok := payload.(model.BatchJob)
	if !ok {
		return "", errors.Errorf("unexpected payload %T", payload)
	}
	m.Jobs = append(m.Jobs, enqueued{Job: job, NotBefore: notBefore})
	return uuid.NewString(), nil
}

// MockResolver maps the first location candidate to an offset.
type MockResolver map[string]float64

func (m MockResolver) Offset(_ context.Context, candidates ...string) float64 {
	if len(candidates) == 0 {
		return 0
	}
	return m[candidates[0]]
}

// sequenceSizer replays sizes, repeating the last one.
type sequenceSizer struct {
	sizes []int
	i     int
}

func (s *sequenceSizer) NextSize() int {
	size := s.sizes[min(s.i, len(s.sizes)-1)]
	s.i++
	return size
}

type MockComposer struct {
	mu    sync.Mutex
	Calls []string
	Err   error
}

func (m *MockComposer) Compose(_ context.Context, url, companyName, firstName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, companyName)
	if m.Err != nil {
		return "", appErrors.NewCompositionError(m.Err)
	}
	return "Hi " + firstName + " at " + companyName, nil
}

type MockTransport struct {
	mu   sync.Mutex
	Sent []transport.Email
	Err  error
}

func (m *MockTransport) Deliver(_ context.Context, email transport.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return appErrors.NewDeliveryError(email.To, m.Err)
	}
	m.Sent = append(m.Sent, email)
	return nil
}

func recipient(email, company string, locations ...string) model.Recipient {
	return model.Recipient{
		Email:          email,
		CompanyName:    company,
		CompanyWebsite: "https://" + email,
		FirstName:      "Sam",
		Locations:      locations,
	}
}
