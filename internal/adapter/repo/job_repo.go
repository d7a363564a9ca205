package repo

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sarai-Chinwag/sell-my-images/internal/domain"
)

const jobColumns = `
job_id, source_type, attachment_id, post_id, upload_path, image_url, image_width, image_height,
resolution, email, status, payment_status,
customer_price_cents, provider_cost_cents, credits, output_width, output_height,
checkout_session_id, upscaled_file_path, failure_reason, download_token, download_expires_at,
created_at, updated_at`

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO smi_jobs (
    job_id, source_type, attachment_id, post_id, upload_path, image_url, image_width, image_height,
    resolution, email, status, payment_status, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.SourceType,
		nullableID(job.AttachmentID),
		nullableID(job.PostID),
		job.UploadPath,
		job.ImageURL,
		job.ImageWidth,
		job.ImageHeight,
		job.Resolution,
		job.Email,
		job.Status,
		job.PaymentStatus,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM smi_jobs WHERE job_id = $1;`, jobID)
	return scanJob(row)
}

// GetByDownloadToken fetches the job owning a download token.
func (r *JobRepositoryPG) GetByDownloadToken(ctx context.Context, token string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM smi_jobs WHERE download_token = $1;`, token)
	return scanJob(row)
}

// Delete removes a job record permanently.
func (r *JobRepositoryPG) Delete(ctx context.Context, jobID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM smi_jobs WHERE job_id = $1;`, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatusIf transitions status only when the current value matches expected.
func (r *JobRepositoryPG) UpdateStatusIf(ctx context.Context, jobID string, expected, next domain.JobStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE smi_jobs SET status = $3, updated_at = now() WHERE job_id = $1 AND status = $2;
`, jobID, expected, next)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdatePaymentStatus sets the payment sub-state unconditionally. Used by the
// admin pre-paid path; webhook reconciliation goes through the Mark* guards.
func (r *JobRepositoryPG) UpdatePaymentStatus(ctx context.Context, jobID string, status domain.PaymentStatus) error {
	_, err := r.pool.Exec(ctx, `
UPDATE smi_jobs SET payment_status = $2, updated_at = now() WHERE job_id = $1;
`, jobID, status)
	return err
}

// UpdateCostData writes the pricing snapshot. The WHERE clause makes the
// snapshot write-once: a job that already carries a price keeps it.
func (r *JobRepositoryPG) UpdateCostData(ctx context.Context, jobID string, cost *domain.CostData) error {
	_, err := r.pool.Exec(ctx, `
UPDATE smi_jobs
SET customer_price_cents = $2,
    provider_cost_cents = $3,
    credits = $4,
    output_width = $5,
    output_height = $6,
    updated_at = now()
WHERE job_id = $1 AND customer_price_cents IS NULL;
`, jobID, cost.CustomerPriceCents, cost.ProviderCostCents, cost.Credits, cost.OutputWidth, cost.OutputHeight)
	return err
}

// UpdateCheckoutSession records the provider session id for the job.
func (r *JobRepositoryPG) UpdateCheckoutSession(ctx context.Context, jobID, sessionID string) error {
	_, err := r.pool.Exec(ctx, `
UPDATE smi_jobs SET checkout_session_id = $2, updated_at = now() WHERE job_id = $1;
`, jobID, sessionID)
	return err
}

// UpdateEmailIfEmpty backfills the customer email without overwriting one
// supplied at checkout time.
func (r *JobRepositoryPG) UpdateEmailIfEmpty(ctx context.Context, jobID, email string) error {
	_, err := r.pool.Exec(ctx, `
UPDATE smi_jobs SET email = $2, updated_at = now() WHERE job_id = $1 AND email = '';
`, jobID, email)
	return err
}

// UpdateProcessingResult completes a processing job with its file and token.
func (r *JobRepositoryPG) UpdateProcessingResult(ctx context.Context, jobID, filePath, token string, expiresAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE smi_jobs
SET status = 'completed',
    upscaled_file_path = $2,
    download_token = $3,
    download_expires_at = $4,
    updated_at = now()
WHERE job_id = $1 AND status = 'processing';
`, jobID, filePath, token, expiresAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateFailure fails a processing job and stores the provider's reason.
func (r *JobRepositoryPG) UpdateFailure(ctx context.Context, jobID, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE smi_jobs
SET status = 'failed', failure_reason = $2, updated_at = now()
WHERE job_id = $1 AND status = 'processing';
`, jobID, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkPaymentCompleted applies the paid transition exactly once per job.
// Re-delivered webhook events find the guard already consumed and match zero
// rows, which callers treat as a benign no-op.
func (r *JobRepositoryPG) MarkPaymentCompleted(ctx context.Context, jobID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE smi_jobs
SET status = 'pending', payment_status = 'paid', updated_at = now()
WHERE job_id = $1 AND status = 'awaiting_payment' AND payment_status = 'pending';
`, jobID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkPaymentFailed records a failed payment for a job still awaiting one.
func (r *JobRepositoryPG) MarkPaymentFailed(ctx context.Context, jobID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE smi_jobs
SET status = 'failed', payment_status = 'failed', updated_at = now()
WHERE job_id = $1 AND status = 'awaiting_payment' AND payment_status = 'pending';
`, jobID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkProcessing hands a paid job to the upscaling pipeline. The guard keeps
// two concurrent triggers from double-dispatching the same job.
func (r *JobRepositoryPG) MarkProcessing(ctx context.Context, jobID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE smi_jobs
SET status = 'processing', updated_at = now()
WHERE job_id = $1 AND payment_status = 'paid' AND status IN ('awaiting_payment', 'pending');
`, jobID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FindRecentPending returns the newest reusable job for the same source and
// resolution, created after since.
func (r *JobRepositoryPG) FindRecentPending(ctx context.Context, attachmentID int64, resolution domain.Resolution, since time.Time) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `
SELECT `+jobColumns+`
FROM smi_jobs
WHERE attachment_id = $1
  AND resolution = $2
  AND status IN ('awaiting_payment', 'abandoned')
  AND payment_status = 'pending'
  AND created_at > $3
ORDER BY created_at DESC
LIMIT 1;
`, attachmentID, resolution, since)
	return scanJob(row)
}

// WithSourceLock serializes checkout creation per (attachment, resolution)
// via a session-scoped advisory lock held on a dedicated pool connection.
func (r *JobRepositoryPG) WithSourceLock(ctx context.Context, attachmentID int64, resolution domain.Resolution, fn func(ctx context.Context) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire lock connection: %w", err)
	}
	defer conn.Release()

	key := sourceLockKey(attachmentID, resolution)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1);`, key); err != nil {
		return fmt.Errorf("acquire source lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1);`, key)
	}()

	return fn(ctx)
}

// ListStaleAwaitingPayment returns unpaid jobs older than cutoff.
func (r *JobRepositoryPG) ListStaleAwaitingPayment(ctx context.Context, cutoff time.Time) ([]domain.Job, error) {
	return r.listByStatusBefore(ctx, domain.JobStatusAwaitingPayment, cutoff)
}

// ListExpiredAbandoned returns abandoned jobs past the retention window.
func (r *JobRepositoryPG) ListExpiredAbandoned(ctx context.Context, cutoff time.Time) ([]domain.Job, error) {
	return r.listByStatusBefore(ctx, domain.JobStatusAbandoned, cutoff)
}

func (r *JobRepositoryPG) listByStatusBefore(ctx context.Context, status domain.JobStatus, cutoff time.Time) ([]domain.Job, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+jobColumns+`
FROM smi_jobs
WHERE status = $1 AND created_at < $2
ORDER BY created_at ASC;
`, status, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// RevenueSummary aggregates completed sales between from and to.
func (r *JobRepositoryPG) RevenueSummary(ctx context.Context, from, to time.Time) (*domain.RevenueSummary, error) {
	rows, err := r.pool.Query(ctx, `
SELECT resolution,
       COUNT(*),
       COALESCE(SUM(customer_price_cents), 0),
       COALESCE(SUM(provider_cost_cents), 0)
FROM smi_jobs
WHERE status = 'completed' AND created_at BETWEEN $1 AND $2
GROUP BY resolution
ORDER BY resolution;
`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := &domain.RevenueSummary{}
	for rows.Next() {
		var rr domain.ResolutionRevenue
		if err := rows.Scan(&rr.Resolution, &rr.Jobs, &rr.CustomerTotalCents, &rr.ProviderTotalCents); err != nil {
			return nil, err
		}
		summary.ByResolution = append(summary.ByResolution, rr)
		summary.CompletedJobs += rr.Jobs
		summary.CustomerTotalCents += rr.CustomerTotalCents
		summary.ProviderTotalCents += rr.ProviderTotalCents
	}
	return summary, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job               domain.Job
		attachmentID      *int64
		postID            *int64
		customerPrice     *int64
		providerCost      *int64
		credits           *int
		outputWidth       *int
		outputHeight      *int
		downloadToken     *string
		downloadExpiresAt *time.Time
	)
	if err := row.Scan(
		&job.ID,
		&job.SourceType,
		&attachmentID,
		&postID,
		&job.UploadPath,
		&job.ImageURL,
		&job.ImageWidth,
		&job.ImageHeight,
		&job.Resolution,
		&job.Email,
		&job.Status,
		&job.PaymentStatus,
		&customerPrice,
		&providerCost,
		&credits,
		&outputWidth,
		&outputHeight,
		&job.CheckoutSessionID,
		&job.UpscaledFilePath,
		&job.FailureReason,
		&downloadToken,
		&downloadExpiresAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if attachmentID != nil {
		job.AttachmentID = *attachmentID
	}
	if postID != nil {
		job.PostID = *postID
	}
	if customerPrice != nil {
		job.Cost = &domain.CostData{
			CustomerPriceCents: *customerPrice,
			ProviderCostCents:  derefInt64(providerCost),
			Credits:            derefInt(credits),
			OutputWidth:        derefInt(outputWidth),
			OutputHeight:       derefInt(outputHeight),
		}
	}
	if downloadToken != nil {
		job.DownloadToken = *downloadToken
	}
	if downloadExpiresAt != nil {
		job.DownloadExpiresAt = *downloadExpiresAt
	}
	return &job, nil
}

func sourceLockKey(attachmentID int64, resolution domain.Resolution) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "smi:%d:%s", attachmentID, resolution)
	return int64(h.Sum64())
}

func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
