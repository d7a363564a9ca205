package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus enumerates the primary job lifecycle states.
type JobStatus string

const (
	JobStatusAwaitingPayment JobStatus = "awaiting_payment"
	JobStatusPending         JobStatus = "pending"
	JobStatusProcessing      JobStatus = "processing"
	JobStatusCompleted       JobStatus = "completed"
	JobStatusFailed          JobStatus = "failed"
	JobStatusAbandoned       JobStatus = "abandoned"
)

// Terminal reports whether no further transition may leave the status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusAbandoned:
		return true
	}
	return false
}

// PaymentStatus enumerates the payment reconciliation sub-states.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Resolution enumerates supported upscale factors.
type Resolution string

const (
	Resolution2x Resolution = "2x"
	Resolution4x Resolution = "4x"
	Resolution8x Resolution = "8x"
)

// ValidResolutions lists every factor customers may purchase.
var ValidResolutions = []Resolution{Resolution2x, Resolution4x, Resolution8x}

// ParseResolution validates a raw resolution string.
func ParseResolution(raw string) (Resolution, bool) {
	r := Resolution(strings.ToLower(strings.TrimSpace(raw)))
	for _, v := range ValidResolutions {
		if r == v {
			return r, true
		}
	}
	return "", false
}

// Factor returns the linear upscale multiple.
func (r Resolution) Factor() int {
	switch r {
	case Resolution2x:
		return 2
	case Resolution4x:
		return 4
	case Resolution8x:
		return 8
	}
	return 0
}

// SourceType distinguishes site-hosted attachments from direct uploads.
type SourceType string

const (
	SourceTypeSite   SourceType = "site"
	SourceTypeUpload SourceType = "upload"
)

// CostData is the pricing snapshot frozen at checkout-creation time. Prices
// are kept in integer cents so reconciliation against the payment provider's
// minor-unit amounts never drifts through float rounding.
type CostData struct {
	CustomerPriceCents int64
	ProviderCostCents  int64
	Credits            int
	OutputWidth        int
	OutputHeight       int
}

// CustomerPrice returns the snapshot price in major units (dollars).
func (c CostData) CustomerPrice() float64 {
	return float64(c.CustomerPriceCents) / 100
}

// Job is the central billable unit of upscaling work.
type Job struct {
	ID           string
	SourceType   SourceType
	AttachmentID int64
	PostID       int64
	UploadPath   string
	ImageURL     string
	ImageWidth   int
	ImageHeight  int
	Resolution   Resolution
	Email        string

	Status        JobStatus
	PaymentStatus PaymentStatus

	Cost              *CostData
	CheckoutSessionID string

	UpscaledFilePath  string
	FailureReason     string
	DownloadToken     string
	DownloadExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateJobParams carries validated-on-construction inputs for a new job.
type CreateJobParams struct {
	SourceType   SourceType
	AttachmentID int64
	PostID       int64
	UploadPath   string
	ImageURL     string
	ImageWidth   int
	ImageHeight  int
	Resolution   Resolution
	Email        string
}

// NewJob validates params and constructs a job in its initial state.
// Source reference kinds are mutually exclusive: a site job requires an
// attachment id, an upload job requires an upload path.
func NewJob(p CreateJobParams) (*Job, error) {
	if _, ok := ParseResolution(string(p.Resolution)); !ok {
		return nil, ValidationError("unsupported resolution")
	}
	switch p.SourceType {
	case SourceTypeSite:
		if p.AttachmentID <= 0 {
			return nil, ValidationError("attachment_id is required for site images")
		}
		if p.UploadPath != "" {
			return nil, ValidationError("upload_path must be empty for site images")
		}
	case SourceTypeUpload:
		if p.UploadPath == "" {
			return nil, ValidationError("upload_path is required for uploads")
		}
		if p.AttachmentID != 0 {
			return nil, ValidationError("attachment_id must be empty for uploads")
		}
	default:
		return nil, ValidationError("source_type must be site or upload")
	}
	if p.ImageURL == "" {
		return nil, ValidationError("image_url is required")
	}

	now := time.Now().UTC()
	return &Job{
		ID:            uuid.NewString(),
		SourceType:    p.SourceType,
		AttachmentID:  p.AttachmentID,
		PostID:        p.PostID,
		UploadPath:    p.UploadPath,
		ImageURL:      p.ImageURL,
		ImageWidth:    p.ImageWidth,
		ImageHeight:   p.ImageHeight,
		Resolution:    p.Resolution,
		Email:         strings.TrimSpace(p.Email),
		Status:        JobStatusAwaitingPayment,
		PaymentStatus: PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Downloadable reports whether the job can currently serve its file: it must
// be completed, have a stored file, and the token must not have expired.
func (j *Job) Downloadable(now time.Time) bool {
	if j.Status != JobStatusCompleted || j.UpscaledFilePath == "" || j.DownloadToken == "" {
		return false
	}
	if !j.DownloadExpiresAt.IsZero() && now.After(j.DownloadExpiresAt) {
		return false
	}
	return true
}
