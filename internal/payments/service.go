// Package payments orchestrates the checkout and reconciliation flow against
// the payment provider. It owns the normalization boundary: provider field
// names (id, url, amount_total) never leak past this package.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sarai-Chinwag/sell-my-images/internal/domain"
	"github.com/Sarai-Chinwag/sell-my-images/internal/infra"
	"github.com/Sarai-Chinwag/sell-my-images/internal/providers/stripe"
)

// SourceTag marks sessions created by this service so webhook handling can
// ignore events that belong to other integrations on the same account.
const SourceTag = "sell-my-images"

// CheckoutProvider is the slice of the Stripe client this service needs.
type CheckoutProvider interface {
	Configured() error
	CreateCheckoutSession(ctx context.Context, req stripe.SessionRequest) (*stripe.Session, error)
	VerifySignature(payload []byte, header string) error
}

// Upscaler starts processing for a paid job. Wired to the upscale service;
// an interface here keeps the webhook path testable without HTTP calls.
type Upscaler interface {
	Trigger(ctx context.Context, jobID string) error
}

// CheckoutResult is the normalized session handed to API clients: snake-case
// keys session_id and checkout_url, amount in major units.
type CheckoutResult struct {
	SessionID   string  `json:"session_id"`
	CheckoutURL string  `json:"checkout_url"`
	Amount      float64 `json:"amount"`
}

// Service drives checkout session creation and webhook reconciliation.
type Service struct {
	jobs     domain.JobRepository
	provider CheckoutProvider
	upscaler Upscaler
	baseURL  string
	logger   *infra.Logger
}

// NewService wires the payment orchestrator. publicBaseURL is the site root
// customers return to after checkout.
func NewService(jobs domain.JobRepository, provider CheckoutProvider, upscaler Upscaler, publicBaseURL string, logger *infra.Logger) *Service {
	return &Service{
		jobs:     jobs,
		provider: provider,
		upscaler: upscaler,
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
		logger:   logger,
	}
}

// ValidateConfiguration reports whether checkout can be offered at all.
func (s *Service) ValidateConfiguration() error {
	if err := s.provider.Configured(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotConfigured, err)
	}
	return nil
}

// CreateCheckoutSession creates a hosted checkout session for the job and
// persists the session id on it. The charge amount comes from the job's
// frozen cost snapshot, never from a recomputation.
func (s *Service) CreateCheckoutSession(ctx context.Context, job *domain.Job) (*CheckoutResult, error) {
	if err := s.ValidateConfiguration(); err != nil {
		return nil, err
	}
	if job.Cost == nil {
		return nil, domain.ValidationError("job has no cost snapshot")
	}

	session, err := s.provider.CreateCheckoutSession(ctx, stripe.SessionRequest{
		AmountCents:        job.Cost.CustomerPriceCents,
		ProductName:        fmt.Sprintf("Image upscale %s", job.Resolution),
		ProductDescription: fmt.Sprintf("%dx%d AI upscale", job.Cost.OutputWidth, job.Cost.OutputHeight),
		CustomerEmail:      job.Email,
		SuccessURL:         s.returnURL("success", job.ID),
		CancelURL:          s.returnURL("cancelled", job.ID),
		Metadata: map[string]string{
			"job_id":     job.ID,
			"resolution": string(job.Resolution),
			"source":     SourceTag,
		},
	})
	if err != nil {
		if errors.Is(err, stripe.ErrMissingSecretKey) {
			return nil, fmt.Errorf("%w: %v", domain.ErrNotConfigured, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}

	if err := s.jobs.UpdateCheckoutSession(ctx, job.ID, session.ID); err != nil {
		return nil, fmt.Errorf("persist checkout session: %w", err)
	}
	job.CheckoutSessionID = session.ID

	return &CheckoutResult{
		SessionID:   session.ID,
		CheckoutURL: session.URL,
		Amount:      float64(session.AmountTotal) / 100,
	}, nil
}

func (s *Service) returnURL(outcome, jobID string) string {
	q := url.Values{}
	q.Set("smi_payment", outcome)
	q.Set("job_id", jobID)
	return s.baseURL + "/?" + q.Encode()
}

// HandleWebhook verifies, decodes and reconciles one webhook delivery.
// A signature failure is returned to the caller (reject the delivery);
// everything past the signature is processed at-least-once and must be
// idempotent, so processing errors are logged rather than returned.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	if err := s.provider.VerifySignature(payload, signatureHeader); err != nil {
		return err
	}
	ev, obj, err := stripe.ParseEvent(payload)
	if err != nil {
		s.logger.Warn().Err(err).Msg("payments: undecodable webhook payload")
		return nil
	}
	s.HandleEvent(ctx, ev, obj)
	return nil
}

// HandleEvent applies one decoded provider event to the job state machine.
// Re-deliveries and out-of-order arrivals resolve to no-ops through the
// repository's conditional updates.
func (s *Service) HandleEvent(ctx context.Context, ev *stripe.Event, obj *stripe.EventObject) {
	switch ev.Type {
	case stripe.EventCheckoutCompleted:
		s.handleCheckoutCompleted(ctx, ev, obj)
	case stripe.EventCheckoutExpired:
		s.handleCheckoutExpired(ctx, ev, obj)
	case stripe.EventPaymentFailed:
		s.handlePaymentFailed(ctx, ev, obj)
	default:
		s.logger.Debug().Str("event_type", ev.Type).Msg("payments: ignoring event type")
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, ev *stripe.Event, obj *stripe.EventObject) {
	if obj.Source() != SourceTag {
		s.logger.Debug().Str("event_id", ev.ID).Msg("payments: ignoring foreign checkout session")
		return
	}
	jobID := obj.JobID()
	if jobID == "" {
		s.logger.Warn().Str("event_id", ev.ID).Msg("payments: completed session missing job_id metadata")
		return
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("payments: completed session for unknown job")
		return
	}
	if job.Cost != nil && obj.AmountTotal != job.Cost.CustomerPriceCents {
		s.logger.Warn().
			Str("job_id", jobID).
			Int64("charged_cents", obj.AmountTotal).
			Int64("snapshot_cents", job.Cost.CustomerPriceCents).
			Msg("payments: charged amount differs from cost snapshot")
	}

	applied, err := s.jobs.MarkPaymentCompleted(ctx, jobID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("payments: mark paid failed")
		return
	}
	if !applied {
		s.logger.Info().Str("job_id", jobID).Msg("payments: duplicate completed event, already reconciled")
		return
	}

	if email := strings.TrimSpace(obj.CustomerDetails.Email); email != "" {
		if err := s.jobs.UpdateEmailIfEmpty(ctx, jobID, email); err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("payments: email backfill failed")
		}
	}

	s.logger.Info().Str("job_id", jobID).Str("session_id", obj.ID).Msg("payments: payment reconciled")

	if s.upscaler != nil {
		if err := s.upscaler.Trigger(ctx, jobID); err != nil {
			s.logger.Error().Err(err).Str("job_id", jobID).Msg("payments: upscale trigger failed")
		}
	}
}

func (s *Service) handleCheckoutExpired(ctx context.Context, ev *stripe.Event, obj *stripe.EventObject) {
	if obj.Source() != SourceTag || obj.JobID() == "" {
		return
	}
	applied, err := s.jobs.UpdateStatusIf(ctx, obj.JobID(), domain.JobStatusAwaitingPayment, domain.JobStatusAbandoned)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Error().Err(err).Str("job_id", obj.JobID()).Msg("payments: abandon on expiry failed")
		return
	}
	if applied {
		s.logger.Info().Str("job_id", obj.JobID()).Msg("payments: session expired, job abandoned")
	}
}

func (s *Service) handlePaymentFailed(ctx context.Context, ev *stripe.Event, obj *stripe.EventObject) {
	if obj.Source() != SourceTag || obj.JobID() == "" {
		return
	}
	applied, err := s.jobs.MarkPaymentFailed(ctx, obj.JobID())
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Error().Err(err).Str("job_id", obj.JobID()).Msg("payments: mark failed errored")
		return
	}
	if applied {
		s.logger.Info().Str("job_id", obj.JobID()).Msg("payments: payment failed, job closed")
	}
}
