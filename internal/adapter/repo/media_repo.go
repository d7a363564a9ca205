package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sarai-Chinwag/sell-my-images/internal/domain"
)

// MediaRepositoryPG resolves site attachments from the synced media table.
type MediaRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewMediaRepository constructs the repository.
func NewMediaRepository(pool *pgxpool.Pool) *MediaRepositoryPG {
	return &MediaRepositoryPG{pool: pool}
}

// GetAttachment fetches one attachment by id.
func (r *MediaRepositoryPG) GetAttachment(ctx context.Context, attachmentID int64) (*domain.Attachment, error) {
	row := r.pool.QueryRow(ctx, `
SELECT attachment_id, post_id, url, width, height, created_at
FROM attachments
WHERE attachment_id = $1;
`, attachmentID)
	var a domain.Attachment
	if err := row.Scan(&a.ID, &a.PostID, &a.URL, &a.Width, &a.Height, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

var _ domain.MediaRepository = (*MediaRepositoryPG)(nil)
