package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/outreach-scheduler/internal/controller"
	appErrors "github.com/unclebandit/outreach-scheduler/internal/errors"
	"github.com/unclebandit/outreach-scheduler/internal/handler"
	"github.com/unclebandit/outreach-scheduler/internal/logger"
	"github.com/unclebandit/outreach-scheduler/internal/middleware"
	"github.com/unclebandit/outreach-scheduler/internal/repository"
	"github.com/unclebandit/outreach-scheduler/internal/server"
)

type noOpens struct{}

func (noOpens) MarkOpened(_ context.Context, id uuid.UUID) error {
	return appErrors.NewTaskNotFound(id)
}

type countingLimiter struct{ n int }

func (c *countingLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	c.n++
	return c.n <= 1, 10 * time.Second, nil
}

func newRouter(health func(context.Context) error, limiter middleware.Limiter) http.Handler {
	return server.NewRouter(server.Deps{
		Outreach: &controller.OutreachController{Runs: repository.NewMemoryRunRepository()},
		Tracking: handler.NewTrackingHandler(noOpens{}),
		APIKey:   "key",
		Limiter:  limiter,
		Logger:   logger.NewNoop(),
		Health:   health,
	})
}

func get(h http.Handler, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if key != "" {
		req.Header.Set(middleware.APIKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_AuthAndLimits(t *testing.T) {
	limiter := &countingLimiter{}
	h := newRouter(nil, limiter)

	assert.Equal(t, http.StatusUnauthorized, get(h, "/stable/scheduling-task-status/x", "").Code)
	assert.Equal(t, 0, limiter.n, "unauthenticated requests do not use quota")

	assert.Equal(t, http.StatusOK, get(h, "/stable/scheduling-task-status/x", "key").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(h, "/stable/scheduling-task-status/x", "key").Code)
}

func TestRouter_OpenEndpoints(t *testing.T) {
	h := newRouter(nil, nil)

	assert.Equal(t, http.StatusNotFound, get(h, "/tracking-pixel/"+uuid.NewString(), "").Code)
	assert.Equal(t, http.StatusOK, get(h, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, get(h, "/metrics", "").Code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/deprecated/start_outreach", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_Unhealthy(t *testing.T) {
	h := newRouter(func(context.Context) error { return errors.New("db down") }, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(h, "/healthz", "").Code)
}
