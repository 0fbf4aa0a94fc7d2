package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-scheduler/internal/controller"
	"github.com/unclebandit/outreach-scheduler/internal/model"
	"github.com/unclebandit/outreach-scheduler/internal/queue"
	"github.com/unclebandit/outreach-scheduler/internal/repository"
	"github.com/unclebandit/outreach-scheduler/internal/service"
)

const sampleCSV = "Company Name for Emails,Website,First Name,Email,City,Country\n" +
	"Acme,acme.example,Ann,ann@acme.example,Berlin,Germany\n" +
	"Beta,beta.example,Bob,bob@beta.example,Austin,United States\n" +
	"Gamma,gamma.example,Gil,gil@gamma.example,,Japan\n"

type MockPublisher struct {
	mu       sync.Mutex
	Messages []any
	Topics   []string
	Err      error
}

func (m *MockPublisher) Publish(topic string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Topics = append(m.Topics, topic)
	m.Messages = append(m.Messages, payload)
	return nil
}

type MockArchive struct {
	Keys []string
	Err  error
}

func (m *MockArchive) Store(_ context.Context, key, _ string, _ []byte) error {
	m.Keys = append(m.Keys, key)
	return m.Err
}

type MockLegacy struct {
	Got []model.Recipient
}

func (m *MockLegacy) Run(_ context.Context, rs []model.Recipient) ([]service.LegacyResult, error) {
	m.Got = rs
	out := make([]service.LegacyResult, 0, len(rs))
	for _, r := range rs {
		out = append(out, service.LegacyResult{Email: r.Email, CompanyName: r.CompanyName, EmailSent: true, EmailContent: "hello"})
	}
	return out, nil
}

type fixture struct {
	ctrl      *controller.OutreachController
	runs      *repository.MemoryRunRepository
	publisher *MockPublisher
	archive   *MockArchive
	legacy    *MockLegacy
	router    http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		runs:      repository.NewMemoryRunRepository(),
		publisher: &MockPublisher{},
		archive:   &MockArchive{},
		legacy:    &MockLegacy{},
	}
	f.ctrl = &controller.OutreachController{
		Runs:       f.runs,
		Publisher:  f.publisher,
		Archive:    f.archive,
		Legacy:     f.legacy,
		MaxRows:    100,
		LegacyRows: 2,
	}
	r := chi.NewRouter()
	r.Post("/stable/start-outreach", f.ctrl.StartOutreach)
	r.Get("/stable/scheduling-task-status/{id}", f.ctrl.RunStatus)
	r.Post("/deprecated/start_outreach", f.ctrl.LegacyStartOutreach)
	f.router = r
	return f
}

func uploadRequest(t *testing.T, path, field, contentType, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="prospects.csv"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestStartOutreach_Accepts(t *testing.T) {
	f := newFixture()

	rec := f.do(uploadRequest(t, "/stable/start-outreach", controller.UploadField, "text/csv", sampleCSV))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["message"])
	runID := resp["task_id"]
	require.NotEmpty(t, runID)

	require.Len(t, f.publisher.Messages, 1)
	assert.Equal(t, queue.TopicSchedulingRuns, f.publisher.Topics[0])
	job, ok := f.publisher.Messages[0].(model.SchedulingRunJob)
	require.True(t, ok)
	assert.Equal(t, runID, job.RunID)
	require.Len(t, job.Recipients, 3)
	assert.Equal(t, "ann@acme.example", job.Recipients[0].Email)

	assert.Equal(t, []string{"uploads/" + runID + ".csv"}, f.archive.Keys)

	status := f.do(httptest.NewRequest(http.MethodGet, "/stable/scheduling-task-status/"+runID, nil))
	assert.JSONEq(t, `{"status":"pending"}`, status.Body.String())
}

func TestStartOutreach_RejectsNonCSV(t *testing.T) {
	f := newFixture()

	rec := f.do(uploadRequest(t, "/stable/start-outreach", controller.UploadField, "application/vnd.ms-excel", sampleCSV))

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.JSONEq(t, `{"detail":"Unsupported file type. Got application/vnd.ms-excel; expected: text/csv"}`, rec.Body.String())
	assert.Empty(t, f.publisher.Messages)
}

func TestStartOutreach_AcceptsCharsetParameter(t *testing.T) {
	f := newFixture()
	rec := f.do(uploadRequest(t, "/stable/start-outreach", controller.UploadField, "text/csv; charset=utf-8", sampleCSV))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartOutreach_MissingFile(t *testing.T) {
	f := newFixture()
	rec := f.do(uploadRequest(t, "/stable/start-outreach", "other", "text/csv", sampleCSV))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartOutreach_MissingEmailColumn(t *testing.T) {
	f := newFixture()
	rec := f.do(uploadRequest(t, "/stable/start-outreach", controller.UploadField, "text/csv", "Company,Website\nAcme,acme.example\n"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "detail")
}

func TestStartOutreach_PublishFailure(t *testing.T) {
	f := newFixture()
	f.publisher.Err = errors.New("no subscribers")
	rec := f.do(uploadRequest(t, "/stable/start-outreach", controller.UploadField, "text/csv", sampleCSV))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStartOutreach_ArchiveFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.archive.Err = errors.New("bucket gone")
	rec := f.do(uploadRequest(t, "/stable/start-outreach", controller.UploadField, "text/csv", sampleCSV))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.publisher.Messages, 1)
}

func TestRunStatus(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.runs.SetStatus(context.Background(), "run-9", model.RunDone, nil))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/stable/scheduling-task-status/run-9", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"done"}`, rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/stable/scheduling-task-status/never-seen", nil))
	assert.JSONEq(t, `{"status":"pending"}`, rec.Body.String())
}

func TestLegacyStartOutreach(t *testing.T) {
	f := newFixture()

	rec := f.do(uploadRequest(t, "/deprecated/start_outreach", controller.UploadField, "text/csv", sampleCSV))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Len(t, f.legacy.Got, 2, "legacy path only reads the first rows")
	var results []service.LegacyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "ann@acme.example", results[0].Email)
	assert.True(t, results[0].EmailSent)
}
