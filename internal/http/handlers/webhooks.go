package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/Sarai-Chinwag/sell-my-images/internal/providers/stripe"
	"github.com/Sarai-Chinwag/sell-my-images/internal/providers/upsampler"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20

// StripeWebhook receives payment events.
// POST /v1/webhooks/stripe
func (a *App) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable payload")
		return
	}

	err = a.Payments.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, stripe.ErrInvalidSignature) {
			a.error(w, http.StatusBadRequest, "invalid_signature", "webhook signature verification failed")
			return
		}
		a.Logger.Error().Err(err).Msg("handlers: stripe webhook")
	}
	// Processing outcomes never bounce the delivery; the provider would
	// retry-storm an endpoint that errors on already-reconciled events.
	a.json(w, http.StatusOK, map[string]bool{"received": true})
}

// UpsamplerWebhook receives upscale results.
// POST /v1/webhooks/upsampler
func (a *App) UpsamplerWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable payload")
		return
	}
	cb, err := upsampler.ParseCallback(payload)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid callback payload")
		return
	}

	if err := a.Upscale.HandleResult(r.Context(), cb); err != nil {
		a.Logger.Error().Err(err).Str("job_id", cb.JobID).Msg("handlers: upsampler callback")
	}
	a.json(w, http.StatusOK, map[string]bool{"received": true})
}
