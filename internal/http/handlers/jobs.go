package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Sarai-Chinwag/sell-my-images/internal/domain"
)

// JobStatus reports the customer-facing view of one job.
// GET /v1/jobs/{id}
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, err := a.Jobs.Get(r.Context(), jobID)
	if err != nil {
		a.domainError(w, err)
		return
	}

	resp := map[string]any{"status": publicStatus(job.Status)}
	if job.Status == domain.JobStatusCompleted && job.DownloadToken != "" {
		resp["download_url"] = a.PublicBaseURL + "/v1/download/" + job.DownloadToken
	}
	if job.Status == domain.JobStatusFailed && job.FailureReason != "" {
		resp["reason"] = job.FailureReason
	}
	a.json(w, http.StatusOK, resp)
}

// publicStatus collapses the internal lifecycle into the three states
// customers poll for. Pre-completion states all read as processing;
// abandoned reads as failed.
func publicStatus(status domain.JobStatus) string {
	switch status {
	case domain.JobStatusCompleted:
		return "completed"
	case domain.JobStatusFailed, domain.JobStatusAbandoned:
		return "failed"
	default:
		return "processing"
	}
}
