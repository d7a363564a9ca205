package handlers

import (
	"net/http"
	"strconv"
)

// Prices quotes every resolution for a site attachment.
// GET /v1/prices?attachment_id=42
func (a *App) Prices(w http.ResponseWriter, r *http.Request) {
	attachmentID, err := strconv.ParseInt(r.URL.Query().Get("attachment_id"), 10, 64)
	if err != nil || attachmentID <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "attachment_id is required")
		return
	}

	options, err := a.Jobs.PriceOptions(r.Context(), attachmentID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"attachment_id": attachmentID,
		"options":       options,
	})
}
