package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/unclebandit/outreach-scheduler/internal/controller"
	appErrors "github.com/unclebandit/outreach-scheduler/internal/errors"
	"github.com/unclebandit/outreach-scheduler/internal/logger"
	"github.com/unclebandit/outreach-scheduler/internal/metrics"
)

// OpenMarker records that a task's email was opened.
type OpenMarker interface {
	MarkOpened(ctx context.Context, id uuid.UUID) error
}

// TrackingHandler serves the open-tracking pixel. It carries no auth because
// mail clients load it as an image.
type TrackingHandler struct {
	Tasks OpenMarker
}

func NewTrackingHandler(tasks OpenMarker) *TrackingHandler {
	return &TrackingHandler{Tasks: tasks}
}

// TrackOpen marks the task OPENED. Repeated hits leave it OPENED.
func (h *TrackingHandler) TrackOpen(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		controller.WriteDetail(w, r, http.StatusNotFound, "Not found id")
		return
	}

	if err := h.Tasks.MarkOpened(r.Context(), id); err != nil {
		if appErrors.StatusCode(err) == http.StatusNotFound {
			controller.WriteDetail(w, r, http.StatusNotFound, "Not found id")
			return
		}
		logger.FromContextWithErr(r.Context(), err).Error("failed to mark task opened", slog.String("task_id", raw))
		controller.WriteDetail(w, r, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	metrics.OpensTracked.Inc()
	controller.WriteJSON(w, r, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Open event tracked successfully for %s", raw),
	})
}
