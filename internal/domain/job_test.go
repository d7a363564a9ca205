package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewJob_SiteSource(t *testing.T) {
	job, err := NewJob(CreateJobParams{
		SourceType:   SourceTypeSite,
		AttachmentID: 42,
		PostID:       7,
		ImageURL:     "https://example.com/wp-content/uploads/photo.jpg",
		ImageWidth:   1000,
		ImageHeight:  800,
		Resolution:   Resolution4x,
		Email:        " buyer@example.com ",
	})
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected generated job id")
	}
	if job.Status != JobStatusAwaitingPayment {
		t.Fatalf("status = %q, want awaiting_payment", job.Status)
	}
	if job.PaymentStatus != PaymentStatusPending {
		t.Fatalf("payment_status = %q, want pending", job.PaymentStatus)
	}
	if job.Email != "buyer@example.com" {
		t.Fatalf("email not trimmed: %q", job.Email)
	}
}

func TestNewJob_Validation(t *testing.T) {
	cases := []struct {
		name   string
		params CreateJobParams
	}{
		{"missing resolution", CreateJobParams{SourceType: SourceTypeSite, AttachmentID: 1, ImageURL: "https://x/y.jpg"}},
		{"bad resolution", CreateJobParams{SourceType: SourceTypeSite, AttachmentID: 1, ImageURL: "https://x/y.jpg", Resolution: "16x"}},
		{"site without attachment", CreateJobParams{SourceType: SourceTypeSite, ImageURL: "https://x/y.jpg", Resolution: Resolution2x}},
		{"upload without path", CreateJobParams{SourceType: SourceTypeUpload, ImageURL: "https://x/y.jpg", Resolution: Resolution2x}},
		{"both source kinds", CreateJobParams{SourceType: SourceTypeSite, AttachmentID: 1, UploadPath: "/tmp/u.jpg", ImageURL: "https://x/y.jpg", Resolution: Resolution2x}},
		{"missing image url", CreateJobParams{SourceType: SourceTypeSite, AttachmentID: 1, Resolution: Resolution2x}},
		{"unknown source type", CreateJobParams{SourceType: "ftp", ImageURL: "https://x/y.jpg", Resolution: Resolution2x}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewJob(tc.params); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestParseResolution(t *testing.T) {
	if r, ok := ParseResolution(" 4X "); !ok || r != Resolution4x {
		t.Fatalf("ParseResolution(4X) = %q, %v", r, ok)
	}
	if _, ok := ParseResolution("3x"); ok {
		t.Fatal("3x should not parse")
	}
	if Resolution8x.Factor() != 8 {
		t.Fatalf("8x factor = %d", Resolution8x.Factor())
	}
}

func TestJobStatusTerminal(t *testing.T) {
	terminal := []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusAbandoned}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%q should be terminal", s)
		}
	}
	open := []JobStatus{JobStatusAwaitingPayment, JobStatusPending, JobStatusProcessing}
	for _, s := range open {
		if s.Terminal() {
			t.Fatalf("%q should not be terminal", s)
		}
	}
}

func TestJobDownloadable(t *testing.T) {
	now := time.Now()
	job := &Job{
		Status:            JobStatusCompleted,
		UpscaledFilePath:  "jobs/x/upscaled.jpg",
		DownloadToken:     "tok",
		DownloadExpiresAt: now.Add(time.Hour),
	}
	if !job.Downloadable(now) {
		t.Fatal("completed job with live token should be downloadable")
	}
	if job.Downloadable(now.Add(2 * time.Hour)) {
		t.Fatal("expired token should not be downloadable")
	}
	job.Status = JobStatusProcessing
	if job.Downloadable(now) {
		t.Fatal("non-completed job must never be downloadable")
	}
}
