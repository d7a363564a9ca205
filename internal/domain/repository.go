package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for jobs. Updates are partial: each
// method touches only the columns it names, so concurrent writers to
// different fields of the same job never clobber each other. Guarded methods
// (the *If and Mark* variants) apply a conditional update and report whether
// the row matched, which is the idempotency primitive the webhook handlers
// rely on.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	GetByDownloadToken(ctx context.Context, token string) (*Job, error)
	Delete(ctx context.Context, jobID string) error

	// UpdateStatusIf transitions status only when the current value matches
	// expected. Returns false (no error) when the guard did not match.
	UpdateStatusIf(ctx context.Context, jobID string, expected, next JobStatus) (bool, error)
	UpdatePaymentStatus(ctx context.Context, jobID string, status PaymentStatus) error
	// UpdateCostData writes the pricing snapshot once; later calls are no-ops.
	UpdateCostData(ctx context.Context, jobID string, cost *CostData) error
	UpdateCheckoutSession(ctx context.Context, jobID, sessionID string) error
	UpdateEmailIfEmpty(ctx context.Context, jobID, email string) error
	UpdateProcessingResult(ctx context.Context, jobID, filePath, token string, expiresAt time.Time) (bool, error)
	UpdateFailure(ctx context.Context, jobID string, reason string) (bool, error)

	// MarkPaymentCompleted applies payment_status pending->paid and status
	// awaiting_payment->pending in one conditional statement.
	MarkPaymentCompleted(ctx context.Context, jobID string) (bool, error)
	// MarkPaymentFailed applies payment_status pending->failed, status->failed.
	MarkPaymentFailed(ctx context.Context, jobID string) (bool, error)
	// MarkProcessing moves a paid, not-yet-dispatched job into processing.
	MarkProcessing(ctx context.Context, jobID string) (bool, error)

	// FindRecentPending locates a reusable job for duplicate prevention.
	FindRecentPending(ctx context.Context, attachmentID int64, resolution Resolution, since time.Time) (*Job, error)
	// WithSourceLock runs fn while holding an advisory lock scoped to the
	// (attachment, resolution) pair, serializing concurrent checkout creation.
	WithSourceLock(ctx context.Context, attachmentID int64, resolution Resolution, fn func(ctx context.Context) error) error

	ListStaleAwaitingPayment(ctx context.Context, cutoff time.Time) ([]Job, error)
	ListExpiredAbandoned(ctx context.Context, cutoff time.Time) ([]Job, error)

	RevenueSummary(ctx context.Context, from, to time.Time) (*RevenueSummary, error)
}

// MediaRepository resolves site-hosted image references.
type MediaRepository interface {
	GetAttachment(ctx context.Context, attachmentID int64) (*Attachment, error)
}

// AnalyticsRepository persists buy-button click counters.
type AnalyticsRepository interface {
	IncrementClick(ctx context.Context, day string, postID, attachmentID int64, country string) error
}

// RevenueSummary aggregates sales over a reporting window.
type RevenueSummary struct {
	CompletedJobs      int64
	CustomerTotalCents int64
	ProviderTotalCents int64
	ByResolution       []ResolutionRevenue
}

// ProfitCents is the margin between customer payments and provider spend.
func (r *RevenueSummary) ProfitCents() int64 {
	return r.CustomerTotalCents - r.ProviderTotalCents
}

// ResolutionRevenue is the per-factor slice of a revenue summary.
type ResolutionRevenue struct {
	Resolution         Resolution
	Jobs               int64
	CustomerTotalCents int64
	ProviderTotalCents int64
}
