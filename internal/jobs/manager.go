// Package jobs owns job creation, duplicate prevention and lifecycle
// housekeeping. Checkout-session orchestration lives in internal/payments;
// this package decides which job row a checkout attaches to.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sarai-Chinwag/sell-my-images/internal/domain"
	"github.com/Sarai-Chinwag/sell-my-images/internal/infra"
	"github.com/Sarai-Chinwag/sell-my-images/internal/pricing"
)

// DuplicateWindow bounds how far back checkout creation looks for an
// existing unpaid job on the same (attachment, resolution) pair. Within the
// window the existing row is reused with a fresh checkout session instead of
// creating a second billable job.
const DuplicateWindow = 10 * time.Minute

// Manager creates jobs and runs lifecycle housekeeping.
type Manager struct {
	jobs   domain.JobRepository
	media  domain.MediaRepository
	calc   *pricing.Calculator
	logger *infra.Logger

	abandonedTTL time.Duration
	retention    time.Duration
	now          func() time.Time
}

// Options carries the manager wiring.
type Options struct {
	Jobs   domain.JobRepository
	Media  domain.MediaRepository
	Calc   *pricing.Calculator
	Logger *infra.Logger

	// AbandonedTTL is how long an awaiting_payment job may idle before the
	// reaper abandons it.
	AbandonedTTL time.Duration
	// Retention is how long abandoned rows are kept before deletion.
	Retention time.Duration
}

// NewManager wires a job manager.
func NewManager(opts Options) *Manager {
	ttl := opts.AbandonedTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Manager{
		jobs:         opts.Jobs,
		media:        opts.Media,
		calc:         opts.Calc,
		logger:       opts.Logger,
		abandonedTTL: ttl,
		retention:    retention,
		now:          time.Now,
	}
}

// PriceOptions quotes every resolution for a site attachment.
func (m *Manager) PriceOptions(ctx context.Context, attachmentID int64) ([]pricing.Option, error) {
	att, err := m.media.GetAttachment(ctx, attachmentID)
	if err != nil {
		return nil, err
	}
	return m.calc.Options(att.Width, att.Height), nil
}

// CheckoutJobRequest describes the job a checkout attempt wants.
type CheckoutJobRequest struct {
	AttachmentID int64
	Resolution   domain.Resolution
	Email        string
}

// StartCheckoutJob returns the job row a new checkout session should attach
// to, creating one when no reusable row exists. The second return value
// reports reuse: callers must not roll back a reused row when the payment
// provider rejects the session, only rows created by this call.
func (m *Manager) StartCheckoutJob(ctx context.Context, req CheckoutJobRequest) (*domain.Job, bool, error) {
	att, err := m.media.GetAttachment(ctx, req.AttachmentID)
	if err != nil {
		return nil, false, err
	}
	cost, err := m.calc.Calculate(att.Width, att.Height, req.Resolution)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	var job *domain.Job
	var reused bool
	lockErr := m.jobs.WithSourceLock(ctx, req.AttachmentID, req.Resolution, func(ctx context.Context) error {
		since := m.now().UTC().Add(-DuplicateWindow)
		existing, err := m.jobs.FindRecentPending(ctx, req.AttachmentID, req.Resolution, since)
		switch {
		case err == nil:
			j, err := m.reuseJob(ctx, existing, req.Email)
			if err != nil {
				return err
			}
			job, reused = j, true
			return nil
		case errors.Is(err, domain.ErrNotFound):
			j, err := m.createJob(ctx, att, req, cost)
			if err != nil {
				return err
			}
			job = j
			return nil
		default:
			return fmt.Errorf("duplicate lookup: %w", err)
		}
	})
	if lockErr != nil {
		return nil, false, lockErr
	}
	return job, reused, nil
}

func (m *Manager) reuseJob(ctx context.Context, existing *domain.Job, email string) (*domain.Job, error) {
	if existing.Status == domain.JobStatusAbandoned {
		applied, err := m.jobs.UpdateStatusIf(ctx, existing.ID, domain.JobStatusAbandoned, domain.JobStatusAwaitingPayment)
		if err != nil {
			return nil, fmt.Errorf("reopen abandoned job: %w", err)
		}
		if applied {
			existing.Status = domain.JobStatusAwaitingPayment
		}
	}
	if email != "" {
		if err := m.jobs.UpdateEmailIfEmpty(ctx, existing.ID, email); err != nil {
			m.logger.Warn().Err(err).Str("job_id", existing.ID).Msg("jobs: email backfill on reuse failed")
		}
		if existing.Email == "" {
			existing.Email = email
		}
	}
	m.logger.Info().Str("job_id", existing.ID).Msg("jobs: reusing recent unpaid job")
	return existing, nil
}

func (m *Manager) createJob(ctx context.Context, att *domain.Attachment, req CheckoutJobRequest, cost *domain.CostData) (*domain.Job, error) {
	job, err := domain.NewJob(domain.CreateJobParams{
		SourceType:   domain.SourceTypeSite,
		AttachmentID: att.ID,
		PostID:       att.PostID,
		ImageURL:     att.URL,
		ImageWidth:   att.Width,
		ImageHeight:  att.Height,
		Resolution:   req.Resolution,
		Email:        req.Email,
	})
	if err != nil {
		return nil, err
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if err := m.jobs.UpdateCostData(ctx, job.ID, cost); err != nil {
		return nil, fmt.Errorf("freeze cost snapshot: %w", err)
	}
	job.Cost = cost
	m.logger.Info().
		Str("job_id", job.ID).
		Int64("attachment_id", att.ID).
		Str("resolution", string(req.Resolution)).
		Int64("price_cents", cost.CustomerPriceCents).
		Msg("jobs: created")
	return job, nil
}

// StartPrepaidJob creates a job for an operator-comped upscale. The duplicate
// window does not apply: comped work charges nobody, so it never competes
// with a customer checkout for reuse.
func (m *Manager) StartPrepaidJob(ctx context.Context, attachmentID int64, resolution domain.Resolution) (*domain.Job, error) {
	att, err := m.media.GetAttachment(ctx, attachmentID)
	if err != nil {
		return nil, err
	}
	cost, err := m.calc.Calculate(att.Width, att.Height, resolution)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return m.createJob(ctx, att, CheckoutJobRequest{AttachmentID: attachmentID, Resolution: resolution}, cost)
}

// Rollback removes a job whose checkout session could not be created. Only
// freshly created rows are rolled back; reused rows keep their prior state.
func (m *Manager) Rollback(ctx context.Context, jobID string) {
	if err := m.jobs.Delete(ctx, jobID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		m.logger.Error().Err(err).Str("job_id", jobID).Msg("jobs: rollback delete failed")
	}
}

// Get loads one job.
func (m *Manager) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return m.jobs.GetByID(ctx, jobID)
}

// SweepResult reports one reaper pass.
type SweepResult struct {
	Abandoned int
	Deleted   int
}

// SweepAbandoned runs the two-phase reaper: stale awaiting_payment jobs are
// abandoned, and abandoned jobs past the retention window are deleted. The
// abandon step is a guarded transition, so jobs that get paid between the
// listing and the update are left alone.
func (m *Manager) SweepAbandoned(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := m.now().UTC()

	stale, err := m.jobs.ListStaleAwaitingPayment(ctx, now.Add(-m.abandonedTTL))
	if err != nil {
		return result, fmt.Errorf("list stale jobs: %w", err)
	}
	for _, job := range stale {
		applied, err := m.jobs.UpdateStatusIf(ctx, job.ID, domain.JobStatusAwaitingPayment, domain.JobStatusAbandoned)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return result, fmt.Errorf("abandon job %s: %w", job.ID, err)
		}
		if applied {
			result.Abandoned++
		}
	}

	expired, err := m.jobs.ListExpiredAbandoned(ctx, now.Add(-m.retention))
	if err != nil {
		return result, fmt.Errorf("list expired jobs: %w", err)
	}
	for _, job := range expired {
		if err := m.jobs.Delete(ctx, job.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return result, fmt.Errorf("delete job %s: %w", job.ID, err)
		}
		result.Deleted++
	}

	if result.Abandoned > 0 || result.Deleted > 0 {
		m.logger.Info().
			Int("abandoned", result.Abandoned).
			Int("deleted", result.Deleted).
			Msg("jobs: sweep complete")
	}
	return result, nil
}
