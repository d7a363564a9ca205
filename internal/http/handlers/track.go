package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Sarai-Chinwag/sell-my-images/internal/middleware"
)

type trackClickRequest struct {
	PostID       int64 `json:"post_id"`
	AttachmentID int64 `json:"attachment_id"`
}

// TrackClick records a buy-button click. Always answers 202: analytics
// failures must never surface to the storefront.
// POST /v1/track-click
func (a *App) TrackClick(w http.ResponseWriter, r *http.Request) {
	var req trackClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	a.Tracker.TrackClick(r.Context(), req.PostID, req.AttachmentID, middleware.ClientIP(r))
	a.json(w, http.StatusAccepted, map[string]bool{"accepted": true})
}
