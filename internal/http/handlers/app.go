// Package handlers holds the HTTP endpoints. Handlers translate between the
// wire format and the services; business rules live below this layer.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Sarai-Chinwag/sell-my-images/internal/analytics"
	"github.com/Sarai-Chinwag/sell-my-images/internal/domain"
	"github.com/Sarai-Chinwag/sell-my-images/internal/download"
	"github.com/Sarai-Chinwag/sell-my-images/internal/infra"
	"github.com/Sarai-Chinwag/sell-my-images/internal/jobs"
	"github.com/Sarai-Chinwag/sell-my-images/internal/payments"
	"github.com/Sarai-Chinwag/sell-my-images/internal/upscale"
)

// App carries the wired services every handler needs.
type App struct {
	Jobs      *jobs.Manager
	Payments  *payments.Service
	Upscale   *upscale.Service
	Downloads *download.Gate
	Tracker   *analytics.Tracker
	Logger    *infra.Logger

	// AdminAPIKey guards the admin endpoints; empty disables them.
	AdminAPIKey string
	// PublicBaseURL roots the download links returned by the status endpoint.
	PublicBaseURL string
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": errCode, "message": message},
	})
}

// domainError maps the error taxonomy onto HTTP responses without leaking
// internals to the client.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrNotConfigured):
		a.error(w, http.StatusServiceUnavailable, "not_configured", "payments are not configured")
	case errors.Is(err, domain.ErrProviderFailure):
		a.error(w, http.StatusBadGateway, "provider_error", "the payment provider rejected the request, try again later")
	case errors.Is(err, domain.ErrConflict):
		a.error(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrGone):
		a.error(w, http.StatusGone, "gone", "this download link has expired")
	default:
		a.Logger.Error().Err(err).Msg("handlers: unhandled error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
