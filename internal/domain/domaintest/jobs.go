// Package domaintest provides in-memory repository implementations for unit
// tests. Behavior mirrors the conditional-update semantics of the SQL layer
// so state-machine guards can be exercised without a database.
package domaintest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Sarai-Chinwag/sell-my-images/internal/domain"
)

// JobRepo is an in-memory domain.JobRepository.
type JobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job

	// CreateErr, when set, is returned by Create to simulate store failures.
	CreateErr error
	// Deleted records job ids removed via Delete, in order.
	Deleted []string
}

// NewJobRepo returns an empty in-memory repository.
func NewJobRepo() *JobRepo {
	return &JobRepo{jobs: make(map[string]*domain.Job)}
}

// Seed inserts a job directly, bypassing validation.
func (r *JobRepo) Seed(job *domain.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
}

// Get returns a copy of the stored job for assertions.
func (r *JobRepo) Get(jobID string) *domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

func (r *JobRepo) Create(ctx context.Context, job *domain.Job) error {
	if r.CreateErr != nil {
		return r.CreateErr
	}
	r.Seed(job)
	return nil
}

func (r *JobRepo) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	if j := r.Get(jobID); j != nil {
		return j, nil
	}
	return nil, domain.ErrNotFound
}

func (r *JobRepo) GetByDownloadToken(ctx context.Context, token string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.DownloadToken != "" && j.DownloadToken == token {
			cp := *j
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *JobRepo) Delete(ctx context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[jobID]; !ok {
		return domain.ErrNotFound
	}
	delete(r.jobs, jobID)
	r.Deleted = append(r.Deleted, jobID)
	return nil
}

func (r *JobRepo) UpdateStatusIf(ctx context.Context, jobID string, expected, next domain.JobStatus) (bool, error) {
	return r.mutateIf(jobID, func(j *domain.Job) bool {
		if j.Status != expected {
			return false
		}
		j.Status = next
		return true
	})
}

func (r *JobRepo) UpdatePaymentStatus(ctx context.Context, jobID string, status domain.PaymentStatus) error {
	return r.mutate(jobID, func(j *domain.Job) bool {
		j.PaymentStatus = status
		return true
	})
}

func (r *JobRepo) UpdateCostData(ctx context.Context, jobID string, cost *domain.CostData) error {
	return r.mutate(jobID, func(j *domain.Job) bool {
		if j.Cost != nil {
			return true // write-once: silently keep the frozen snapshot
		}
		cp := *cost
		j.Cost = &cp
		return true
	})
}

func (r *JobRepo) UpdateCheckoutSession(ctx context.Context, jobID, sessionID string) error {
	return r.mutate(jobID, func(j *domain.Job) bool {
		j.CheckoutSessionID = sessionID
		return true
	})
}

func (r *JobRepo) UpdateEmailIfEmpty(ctx context.Context, jobID, email string) error {
	return r.mutate(jobID, func(j *domain.Job) bool {
		if j.Email == "" {
			j.Email = email
		}
		return true
	})
}

func (r *JobRepo) UpdateProcessingResult(ctx context.Context, jobID, filePath, token string, expiresAt time.Time) (bool, error) {
	return r.mutateIf(jobID, func(j *domain.Job) bool {
		if j.Status != domain.JobStatusProcessing {
			return false
		}
		j.Status = domain.JobStatusCompleted
		j.UpscaledFilePath = filePath
		j.DownloadToken = token
		j.DownloadExpiresAt = expiresAt
		return true
	})
}

func (r *JobRepo) UpdateFailure(ctx context.Context, jobID, reason string) (bool, error) {
	return r.mutateIf(jobID, func(j *domain.Job) bool {
		if j.Status != domain.JobStatusProcessing {
			return false
		}
		j.Status = domain.JobStatusFailed
		j.FailureReason = reason
		return true
	})
}

func (r *JobRepo) MarkPaymentCompleted(ctx context.Context, jobID string) (bool, error) {
	return r.mutateIf(jobID, func(j *domain.Job) bool {
		if j.PaymentStatus != domain.PaymentStatusPending || j.Status != domain.JobStatusAwaitingPayment {
			return false
		}
		j.PaymentStatus = domain.PaymentStatusPaid
		j.Status = domain.JobStatusPending
		return true
	})
}

func (r *JobRepo) MarkPaymentFailed(ctx context.Context, jobID string) (bool, error) {
	return r.mutateIf(jobID, func(j *domain.Job) bool {
		if j.PaymentStatus != domain.PaymentStatusPending || j.Status != domain.JobStatusAwaitingPayment {
			return false
		}
		j.PaymentStatus = domain.PaymentStatusFailed
		j.Status = domain.JobStatusFailed
		return true
	})
}

func (r *JobRepo) MarkProcessing(ctx context.Context, jobID string) (bool, error) {
	return r.mutateIf(jobID, func(j *domain.Job) bool {
		if j.PaymentStatus != domain.PaymentStatusPaid {
			return false
		}
		if j.Status != domain.JobStatusAwaitingPayment && j.Status != domain.JobStatusPending {
			return false
		}
		j.Status = domain.JobStatusProcessing
		return true
	})
}

func (r *JobRepo) FindRecentPending(ctx context.Context, attachmentID int64, resolution domain.Resolution, since time.Time) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var candidates []*domain.Job
	for _, j := range r.jobs {
		if j.AttachmentID != attachmentID || j.Resolution != resolution {
			continue
		}
		if j.Status != domain.JobStatusAwaitingPayment && j.Status != domain.JobStatusAbandoned {
			continue
		}
		if j.PaymentStatus != domain.PaymentStatusPending {
			continue
		}
		if !j.CreatedAt.After(since) {
			continue
		}
		candidates = append(candidates, j)
	}
	if len(candidates) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(candidates, func(a, b int) bool {
		return candidates[a].CreatedAt.After(candidates[b].CreatedAt)
	})
	cp := *candidates[0]
	return &cp, nil
}

func (r *JobRepo) WithSourceLock(ctx context.Context, attachmentID int64, resolution domain.Resolution, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *JobRepo) ListStaleAwaitingPayment(ctx context.Context, cutoff time.Time) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Job
	for _, j := range r.jobs {
		if j.Status == domain.JobStatusAwaitingPayment && j.CreatedAt.Before(cutoff) {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (r *JobRepo) ListExpiredAbandoned(ctx context.Context, cutoff time.Time) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Job
	for _, j := range r.jobs {
		if j.Status == domain.JobStatusAbandoned && j.CreatedAt.Before(cutoff) {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (r *JobRepo) RevenueSummary(ctx context.Context, from, to time.Time) (*domain.RevenueSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	summary := &domain.RevenueSummary{}
	perRes := make(map[domain.Resolution]*domain.ResolutionRevenue)
	for _, j := range r.jobs {
		if j.Status != domain.JobStatusCompleted || j.Cost == nil {
			continue
		}
		if j.CreatedAt.Before(from) || j.CreatedAt.After(to) {
			continue
		}
		summary.CompletedJobs++
		summary.CustomerTotalCents += j.Cost.CustomerPriceCents
		summary.ProviderTotalCents += j.Cost.ProviderCostCents
		rr, ok := perRes[j.Resolution]
		if !ok {
			rr = &domain.ResolutionRevenue{Resolution: j.Resolution}
			perRes[j.Resolution] = rr
		}
		rr.Jobs++
		rr.CustomerTotalCents += j.Cost.CustomerPriceCents
		rr.ProviderTotalCents += j.Cost.ProviderCostCents
	}
	for _, rr := range perRes {
		summary.ByResolution = append(summary.ByResolution, *rr)
	}
	sort.Slice(summary.ByResolution, func(a, b int) bool {
		return summary.ByResolution[a].Resolution < summary.ByResolution[b].Resolution
	})
	return summary, nil
}

func (r *JobRepo) mutate(jobID string, fn func(*domain.Job) bool) error {
	_, err := r.mutateIf(jobID, fn)
	return err
}

func (r *JobRepo) mutateIf(jobID string, fn func(*domain.Job) bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return false, domain.ErrNotFound
	}
	applied := fn(j)
	if applied {
		j.UpdatedAt = time.Now().UTC()
	}
	return applied, nil
}

var _ domain.JobRepository = (*JobRepo)(nil)

// MediaRepo is a fixed-map domain.MediaRepository.
type MediaRepo struct {
	Attachments map[int64]*domain.Attachment
}

func (m *MediaRepo) GetAttachment(ctx context.Context, attachmentID int64) (*domain.Attachment, error) {
	if a, ok := m.Attachments[attachmentID]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

var _ domain.MediaRepository = (*MediaRepo)(nil)

// ClickRecorder is an in-memory domain.AnalyticsRepository.
type ClickRecorder struct {
	mu     sync.Mutex
	Clicks []Click
}

// Click is one recorded increment.
type Click struct {
	Day          string
	PostID       int64
	AttachmentID int64
	Country      string
}

func (c *ClickRecorder) IncrementClick(ctx context.Context, day string, postID, attachmentID int64, country string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Clicks = append(c.Clicks, Click{Day: day, PostID: postID, AttachmentID: attachmentID, Country: country})
	return nil
}

var _ domain.AnalyticsRepository = (*ClickRecorder)(nil)
