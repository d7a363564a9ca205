package download

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Sarai-Chinwag/sell-my-images/internal/domain"
	"github.com/Sarai-Chinwag/sell-my-images/internal/domain/domaintest"
	"github.com/Sarai-Chinwag/sell-my-images/internal/storage"
)

type memStore struct {
	files map[string]string
}

type nopSeekCloser struct{ io.ReadSeeker }

func (nopSeekCloser) Close() error { return nil }

func (m *memStore) Open(ctx context.Context, key string) (io.ReadSeekCloser, int64, error) {
	data, ok := m.files[key]
	if !ok {
		return nil, 0, storage.ErrNotFound
	}
	return nopSeekCloser{strings.NewReader(data)}, int64(len(data)), nil
}

func seedCompletedJob(repo *domaintest.JobRepo, token string, expires time.Time) *domain.Job {
	job := &domain.Job{
		ID:                "job-1",
		Status:            domain.JobStatusCompleted,
		PaymentStatus:     domain.PaymentStatusPaid,
		UpscaledFilePath:  "upscaled/job-1.png",
		DownloadToken:     token,
		DownloadExpiresAt: expires,
		UpdatedAt:         time.Now().UTC(),
	}
	repo.Seed(job)
	return job
}

func TestNewTokenShape(t *testing.T) {
	a, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	if len(a) != 64 {
		t.Fatalf("token length = %d, want 64 hex chars", len(a))
	}
	b, _ := NewToken()
	if a == b {
		t.Fatal("two tokens must differ")
	}
}

func TestRedeem(t *testing.T) {
	repo := domaintest.NewJobRepo()
	seedCompletedJob(repo, "tok-valid", time.Now().Add(time.Hour))
	store := &memStore{files: map[string]string{"upscaled/job-1.png": "png-bytes"}}
	gate := NewGate(repo, store)

	file, err := gate.Redeem(context.Background(), "tok-valid")
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	defer file.Content.Close()
	if file.Name != "job-1.png" {
		t.Fatalf("name = %q", file.Name)
	}
	data, _ := io.ReadAll(file.Content)
	if string(data) != "png-bytes" {
		t.Fatalf("content = %q", data)
	}
}

func TestRedeemUnknownToken(t *testing.T) {
	gate := NewGate(domaintest.NewJobRepo(), &memStore{})
	if _, err := gate.Redeem(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRedeemExpiredToken(t *testing.T) {
	repo := domaintest.NewJobRepo()
	seedCompletedJob(repo, "tok-old", time.Now().Add(-time.Minute))
	gate := NewGate(repo, &memStore{files: map[string]string{"upscaled/job-1.png": "x"}})

	if _, err := gate.Redeem(context.Background(), "tok-old"); !errors.Is(err, domain.ErrGone) {
		t.Fatalf("err = %v, want ErrGone", err)
	}
}

func TestRedeemNonCompletedJob(t *testing.T) {
	repo := domaintest.NewJobRepo()
	job := seedCompletedJob(repo, "tok-x", time.Now().Add(time.Hour))
	job.Status = domain.JobStatusProcessing
	repo.Seed(job)
	gate := NewGate(repo, &memStore{files: map[string]string{"upscaled/job-1.png": "x"}})

	// The token row exists, but content must not be served for a
	// non-completed job.
	if _, err := gate.Redeem(context.Background(), "tok-x"); !errors.Is(err, domain.ErrGone) {
		t.Fatalf("err = %v, want ErrGone", err)
	}
}

func TestRedeemPurgedFile(t *testing.T) {
	repo := domaintest.NewJobRepo()
	seedCompletedJob(repo, "tok-purged", time.Now().Add(time.Hour))
	gate := NewGate(repo, &memStore{files: map[string]string{}})

	if _, err := gate.Redeem(context.Background(), "tok-purged"); !errors.Is(err, domain.ErrGone) {
		t.Fatalf("err = %v, want ErrGone", err)
	}
}
