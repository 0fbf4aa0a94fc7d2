package controller

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/unclebandit/outreach-scheduler/internal/archive"
	"github.com/unclebandit/outreach-scheduler/internal/csvimport"
	appErrors "github.com/unclebandit/outreach-scheduler/internal/errors"
	"github.com/unclebandit/outreach-scheduler/internal/logger"
	"github.com/unclebandit/outreach-scheduler/internal/model"
	"github.com/unclebandit/outreach-scheduler/internal/queue"
	"github.com/unclebandit/outreach-scheduler/internal/repository"
	"github.com/unclebandit/outreach-scheduler/internal/service"
)

const (
	UploadField          = "outreach_csv"
	csvContentType       = "text/csv"
	defaultMaxUploadSize = 10 << 20

	acceptedMessage = "Prospects' information is being processed and divided into batches based on their timezones."
)

// Publisher hands accepted uploads to the scheduling runner.
type Publisher interface {
	Publish(topic string, payload any) error
}

// LegacyRunner sends to recipients synchronously.
type LegacyRunner interface {
	Run(ctx context.Context, recipients []model.Recipient) ([]service.LegacyResult, error)
}

type OutreachController struct {
	Runs      repository.RunRepositoryInterface
	Publisher Publisher
	Archive   archive.Archiver
	Legacy    LegacyRunner

	MaxRows        int
	LegacyRows     int
	MaxUploadBytes int64
}

// StartOutreach accepts a prospect CSV and queues a scheduling run for it.
func (c *OutreachController) StartOutreach(w http.ResponseWriter, r *http.Request) {
	body, err := c.readUpload(w, r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	recipients, err := csvimport.Parse(bytes.NewReader(body), c.MaxRows)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	runID := uuid.NewString()
	log := logger.FromContext(r.Context()).With(slog.String("run_id", runID))

	if err := c.Archive.Store(r.Context(), archive.UploadKey(runID), csvContentType, body); err != nil {
		logger.FromContextWithErr(r.Context(), err).Warn("failed to archive upload", slog.String("run_id", runID))
	}
	if err := c.Runs.SetStatus(r.Context(), runID, model.RunPending, nil); err != nil {
		logger.FromContextWithErr(r.Context(), err).Warn("failed to record pending run", slog.String("run_id", runID))
	}

	job := model.SchedulingRunJob{RunID: runID, Recipients: recipients}
	if err := c.Publisher.Publish(queue.TopicSchedulingRuns, job); err != nil {
		logger.FromContextWithErr(r.Context(), err).Error("failed to publish scheduling run", slog.String("run_id", runID))
		WriteDetail(w, r, http.StatusServiceUnavailable, "Scheduling is temporarily unavailable")
		return
	}

	log.Info("scheduling run accepted", slog.Int("recipients", len(recipients)))
	WriteJSON(w, r, http.StatusOK, map[string]string{
		"message": acceptedMessage,
		"task_id": runID,
	})
}

// RunStatus reports a scheduling run's state. Unknown ids are pending.
func (c *OutreachController) RunStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := c.Runs.Get(r.Context(), id)
	if err != nil {
		logger.FromContextWithErr(r.Context(), err).Error("failed to read run status", slog.String("run_id", id))
		WriteDetail(w, r, http.StatusBadRequest, "Something went wrong while retrieving task status")
		return
	}
	WriteJSON(w, r, http.StatusOK, map[string]string{"status": string(run.Status)})
}

// LegacyStartOutreach sends to the first rows of the upload right away and
// returns what happened to each.
func (c *OutreachController) LegacyStartOutreach(w http.ResponseWriter, r *http.Request) {
	body, err := c.readUpload(w, r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	recipients, err := csvimport.Parse(bytes.NewReader(body), c.LegacyRows)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	results, err := c.Legacy.Run(r.Context(), recipients)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, r, http.StatusOK, results)
}

// readUpload returns the raw bytes of the outreach_csv part after checking
// its declared content type.
func (c *OutreachController) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := c.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	file, header, err := r.FormFile(UploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, appErrors.NewValidationError(http.StatusRequestEntityTooLarge, "Upload exceeds %d bytes", limit)
		}
		return nil, appErrors.NewValidationError(http.StatusBadRequest, "Missing %s file", UploadField)
	}
	defer file.Close()

	declared := header.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(declared); err != nil || mediaType != csvContentType {
		return nil, appErrors.NewValidationError(http.StatusUnsupportedMediaType,
			"Unsupported file type. Got %s; expected: %s", declared, csvContentType)
	}

	body, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read upload")
	}
	return body, nil
}
