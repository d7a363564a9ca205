package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Download streams a finished file for a valid token. This is the one raw
// byte-streaming endpoint; everything else on the API speaks JSON.
// GET /v1/download/{token}
func (a *App) Download(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	file, err := a.Downloads.Redeem(r.Context(), token)
	if err != nil {
		a.domainError(w, err)
		return
	}
	defer file.Content.Close()

	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Name+`"`)
	http.ServeContent(w, r, file.Name, file.ModTime, file.Content)
}
