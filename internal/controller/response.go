package controller

import (
	"encoding/json"
	"net/http"

	appErrors "github.com/unclebandit/outreach-scheduler/internal/errors"
	"github.com/unclebandit/outreach-scheduler/internal/logger"
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContextWithErr(r.Context(), err).Error("failed to encode response")
	}
}

// WriteDetail writes an error body of the form {"detail": "..."}.
func WriteDetail(w http.ResponseWriter, r *http.Request, status int, detail string) {
	WriteJSON(w, r, status, map[string]string{"detail": detail})
}

// WriteError reports err with the status appErrors.StatusCode picks. Only
// client errors expose their message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := appErrors.StatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContextWithErr(r.Context(), err).Error("request failed")
		WriteDetail(w, r, status, http.StatusText(status))
		return
	}
	WriteDetail(w, r, status, err.Error())
}
