package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/Sarai-Chinwag/sell-my-images/internal/domain"
)

// RequireAdmin guards admin routes with the X-Admin-Key header. With no key
// configured the routes are disabled outright.
func (a *App) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.AdminAPIKey == "" {
			a.error(w, http.StatusNotFound, "not_found", "resource not found")
			return
		}
		key := r.Header.Get("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(a.AdminAPIKey)) != 1 {
			a.error(w, http.StatusUnauthorized, "unauthorized", "invalid admin key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type adminUpscaleRequest struct {
	JobID        string `json:"job_id"`
	AttachmentID int64  `json:"attachment_id"`
	Resolution   string `json:"resolution"`
}

// AdminUpscale runs an upscale without a customer payment: an existing job is
// marked paid and dispatched, or a fresh pre-paid job is created from an
// attachment reference.
// POST /v1/admin/upscale
func (a *App) AdminUpscale(w http.ResponseWriter, r *http.Request) {
	var req adminUpscaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	jobID := req.JobID
	if jobID == "" {
		res, ok := domain.ParseResolution(req.Resolution)
		if !ok || req.AttachmentID <= 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "job_id, or attachment_id with resolution, is required")
			return
		}
		job, err := a.Jobs.StartPrepaidJob(r.Context(), req.AttachmentID, res)
		if err != nil {
			a.domainError(w, err)
			return
		}
		jobID = job.ID
	}

	if err := a.Upscale.TriggerPrepaid(r.Context(), jobID); err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "dispatched"})
}
