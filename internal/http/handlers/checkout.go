package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Sarai-Chinwag/sell-my-images/internal/domain"
	"github.com/Sarai-Chinwag/sell-my-images/internal/jobs"
)

type checkoutRequest struct {
	AttachmentID int64  `json:"attachment_id"`
	Resolution   string `json:"resolution"`
	Email        string `json:"email"`
}

type checkoutResponse struct {
	JobID       string  `json:"job_id"`
	SessionID   string  `json:"session_id"`
	CheckoutURL string  `json:"checkout_url"`
	Amount      float64 `json:"amount"`
	Reused      bool    `json:"reused"`
}

// Checkout creates (or reuses) a job and opens a hosted payment session.
// POST /v1/checkout
func (a *App) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	resolution, ok := domain.ParseResolution(req.Resolution)
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "resolution must be one of 2x, 4x, 8x")
		return
	}
	if req.AttachmentID <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "attachment_id is required")
		return
	}

	// Refuse before any state mutation when payments cannot complete.
	if err := a.Payments.ValidateConfiguration(); err != nil {
		a.domainError(w, err)
		return
	}

	job, reused, err := a.Jobs.StartCheckoutJob(r.Context(), jobs.CheckoutJobRequest{
		AttachmentID: req.AttachmentID,
		Resolution:   resolution,
		Email:        req.Email,
	})
	if err != nil {
		a.domainError(w, err)
		return
	}

	result, err := a.Payments.CreateCheckoutSession(r.Context(), job)
	if err != nil {
		// Only rows created for this attempt are rolled back; a reused row
		// predates this request and keeps its prior state.
		if !reused {
			a.Jobs.Rollback(r.Context(), job.ID)
		}
		a.domainError(w, err)
		return
	}

	a.json(w, http.StatusCreated, checkoutResponse{
		JobID:       job.ID,
		SessionID:   result.SessionID,
		CheckoutURL: result.CheckoutURL,
		Amount:      result.Amount,
		Reused:      reused,
	})
}
