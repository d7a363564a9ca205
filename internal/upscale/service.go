// Package upscale coordinates provider dispatch and result handling for paid
// jobs. Dispatch happens exactly once per job: the processing transition is a
// conditional update, so concurrent webhook deliveries race on the database
// row instead of on application state.
package upscale

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/Sarai-Chinwag/sell-my-images/internal/domain"
	"github.com/Sarai-Chinwag/sell-my-images/internal/download"
	"github.com/Sarai-Chinwag/sell-my-images/internal/infra"
	"github.com/Sarai-Chinwag/sell-my-images/internal/notify"
	"github.com/Sarai-Chinwag/sell-my-images/internal/providers/upsampler"
)

// Provider is the slice of the upsampler client this service needs.
type Provider interface {
	Submit(ctx context.Context, req upsampler.SubmitRequest) error
	Fetch(ctx context.Context, fileURL string) (io.ReadCloser, error)
}

// FileStore persists finished provider output.
type FileStore interface {
	WriteFromReader(ctx context.Context, key string, r io.Reader) (string, error)
	Remove(ctx context.Context, key string) error
}

// Options carries the service wiring.
type Options struct {
	Jobs     domain.JobRepository
	Provider Provider
	Store    FileStore
	Notifier notify.Notifier
	Logger   *infra.Logger

	// PublicBaseURL roots customer-facing download links.
	PublicBaseURL string
	// CallbackURL is where the provider posts job results.
	CallbackURL string
	// DownloadExpiry bounds how long a minted download token stays valid.
	DownloadExpiry time.Duration
}

// Service dispatches paid jobs to the upscaling provider and reconciles the
// asynchronous results.
type Service struct {
	jobs           domain.JobRepository
	provider       Provider
	store          FileStore
	notifier       notify.Notifier
	logger         *infra.Logger
	publicBaseURL  string
	callbackURL    string
	downloadExpiry time.Duration
	now            func() time.Time
}

// NewService wires the upscale coordinator.
func NewService(opts Options) *Service {
	expiry := opts.DownloadExpiry
	if expiry <= 0 {
		expiry = 48 * time.Hour
	}
	return &Service{
		jobs:           opts.Jobs,
		provider:       opts.Provider,
		store:          opts.Store,
		notifier:       opts.Notifier,
		logger:         opts.Logger,
		publicBaseURL:  strings.TrimRight(opts.PublicBaseURL, "/"),
		callbackURL:    opts.CallbackURL,
		downloadExpiry: expiry,
		now:            time.Now,
	}
}

// Trigger dispatches one paid job to the provider. Safe to call repeatedly:
// only the call that wins the processing transition actually submits.
func (s *Service) Trigger(ctx context.Context, jobID string) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("upscale: load job: %w", err)
	}
	if job.PaymentStatus != domain.PaymentStatusPaid {
		return fmt.Errorf("%w: job %s is not paid", domain.ErrConflict, jobID)
	}

	applied, err := s.jobs.MarkProcessing(ctx, jobID)
	if err != nil {
		return fmt.Errorf("upscale: mark processing: %w", err)
	}
	if !applied {
		s.logger.Info().Str("job_id", jobID).Msg("upscale: already dispatched, skipping")
		return nil
	}

	err = s.provider.Submit(ctx, upsampler.SubmitRequest{
		JobID:       job.ID,
		ImageURL:    job.ImageURL,
		Resolution:  job.Resolution,
		CallbackURL: s.callbackURL,
	})
	if err != nil {
		reason := fmt.Sprintf("provider submit failed: %v", err)
		if _, ferr := s.jobs.UpdateFailure(ctx, jobID, reason); ferr != nil {
			s.logger.Error().Err(ferr).Str("job_id", jobID).Msg("upscale: record submit failure")
		}
		s.notifyFailed(ctx, job, reason)
		return fmt.Errorf("upscale: submit: %w", err)
	}

	s.logger.Info().Str("job_id", jobID).Str("resolution", string(job.Resolution)).Msg("upscale: dispatched")
	return nil
}

// TriggerPrepaid marks a job paid without a checkout and dispatches it. This
// backs the operator override for comped upscales.
func (s *Service) TriggerPrepaid(ctx context.Context, jobID string) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("upscale: load job: %w", err)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job %s is already %s", domain.ErrConflict, jobID, job.Status)
	}
	if job.PaymentStatus != domain.PaymentStatusPaid {
		if err := s.jobs.UpdatePaymentStatus(ctx, jobID, domain.PaymentStatusPaid); err != nil {
			return fmt.Errorf("upscale: mark prepaid: %w", err)
		}
		s.logger.Info().Str("job_id", jobID).Msg("upscale: job marked prepaid by operator")
	}
	return s.Trigger(ctx, jobID)
}

// HandleResult reconciles one provider callback. Duplicate callbacks resolve
// to no-ops through the processing-state guard.
func (s *Service) HandleResult(ctx context.Context, cb *upsampler.Callback) error {
	job, err := s.jobs.GetByID(ctx, cb.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().Str("job_id", cb.JobID).Msg("upscale: callback for unknown job")
			return nil
		}
		return fmt.Errorf("upscale: load job: %w", err)
	}

	if !cb.Success {
		reason := cb.Error
		if reason == "" {
			reason = "provider reported failure"
		}
		applied, err := s.jobs.UpdateFailure(ctx, job.ID, reason)
		if err != nil {
			return fmt.Errorf("upscale: record failure: %w", err)
		}
		if applied {
			s.notifyFailed(ctx, job, reason)
		}
		return nil
	}

	if cb.FileURL == "" {
		return fmt.Errorf("upscale: success callback for %s missing file_url", cb.JobID)
	}

	body, err := s.provider.Fetch(ctx, cb.FileURL)
	if err != nil {
		return fmt.Errorf("upscale: fetch result: %w", err)
	}
	defer body.Close()

	key, err := s.store.WriteFromReader(ctx, resultKey(job.ID, cb.FileURL), body)
	if err != nil {
		return fmt.Errorf("upscale: store result: %w", err)
	}

	token, err := download.NewToken()
	if err != nil {
		return err
	}
	expiresAt := s.now().UTC().Add(s.downloadExpiry)

	applied, err := s.jobs.UpdateProcessingResult(ctx, job.ID, key, token, expiresAt)
	if err != nil {
		return fmt.Errorf("upscale: record result: %w", err)
	}
	if !applied {
		// Duplicate callback lost the completion race; drop the extra copy.
		if rerr := s.store.Remove(ctx, key); rerr != nil {
			s.logger.Warn().Err(rerr).Str("job_id", job.ID).Msg("upscale: cleanup duplicate result")
		}
		s.logger.Info().Str("job_id", job.ID).Msg("upscale: duplicate callback, already completed")
		return nil
	}

	s.logger.Info().Str("job_id", job.ID).Str("file", key).Msg("upscale: job completed")
	if s.notifier != nil {
		job.Status = domain.JobStatusCompleted
		job.UpscaledFilePath = key
		job.DownloadToken = token
		s.notifier.JobCompleted(ctx, job, s.publicBaseURL+"/v1/download/"+token)
	}
	return nil
}

func (s *Service) notifyFailed(ctx context.Context, job *domain.Job, reason string) {
	if s.notifier != nil {
		s.notifier.JobFailed(ctx, job, reason)
	}
}

// resultKey derives the storage key for a finished file, keeping the
// provider's file extension when it has one.
func resultKey(jobID, fileURL string) string {
	ext := path.Ext(fileURL)
	if idx := strings.IndexAny(ext, "?#"); idx >= 0 {
		ext = ext[:idx]
	}
	if ext == "" || len(ext) > 8 {
		ext = ".png"
	}
	return "upscaled/" + jobID + ext
}
