// Package httpapi assembles the public HTTP surface.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Sarai-Chinwag/sell-my-images/internal/http/handlers"
	"github.com/Sarai-Chinwag/sell-my-images/internal/infra"
	"github.com/Sarai-Chinwag/sell-my-images/internal/middleware"
)

// NewRouter wires every route with the shared middleware stack.
func NewRouter(app *handlers.App, cfg *infra.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		middleware.Logger(*app.Logger),
		chimw.Recoverer,
		middleware.CORS(cfg.AllowedOrigins),
		middleware.Locale,
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/prices", app.Prices)
	r.Get("/v1/jobs/{id}", app.JobStatus)
	r.Get("/v1/download/{token}", app.Download)
	r.Post("/v1/track-click", app.TrackClick)

	// Checkout creation is the only endpoint worth brute-forcing (it hits
	// the payment provider), so it gets its own limiter.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))
		r.Post("/v1/checkout", app.Checkout)
	})

	r.Post("/v1/webhooks/stripe", app.StripeWebhook)
	r.Post("/v1/webhooks/upsampler", app.UpsamplerWebhook)

	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(app.RequireAdmin)
		r.Post("/upscale", app.AdminUpscale)
	})

	return r
}
