package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/Sarai-Chinwag/sell-my-images/internal/domain"
	"github.com/Sarai-Chinwag/sell-my-images/internal/storage"
)

// FileStore is the slice of the storage layer the gate needs.
type FileStore interface {
	Open(ctx context.Context, key string) (io.ReadSeekCloser, int64, error)
}

// Gate resolves download tokens into file streams. It enforces the token
// contract: content is served only while the owning job is completed and the
// token has not expired.
type Gate struct {
	jobs  domain.JobRepository
	store FileStore
	now   func() time.Time
}

// NewGate wires a redemption gate over the job store and file storage.
func NewGate(jobs domain.JobRepository, store FileStore) *Gate {
	return &Gate{jobs: jobs, store: store, now: time.Now}
}

// File is one redeemed download, ready to stream.
type File struct {
	Content io.ReadSeekCloser
	Size    int64
	Name    string
	ModTime time.Time
}

// Redeem exchanges a token for its file stream. Unknown tokens fail with
// ErrNotFound; tokens whose job is no longer servable (not completed, file
// purged, or past expiry) fail with ErrGone. Callers own File.Content.
func (g *Gate) Redeem(ctx context.Context, token string) (*File, error) {
	if token == "" {
		return nil, domain.ErrNotFound
	}
	job, err := g.jobs.GetByDownloadToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("download: token lookup: %w", err)
	}

	if !job.Downloadable(g.now()) {
		return nil, domain.ErrGone
	}

	content, size, err := g.store.Open(ctx, job.UpscaledFilePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrGone
		}
		return nil, fmt.Errorf("download: open file: %w", err)
	}

	return &File{
		Content: content,
		Size:    size,
		Name:    path.Base(job.UpscaledFilePath),
		ModTime: job.UpdatedAt,
	}, nil
}
