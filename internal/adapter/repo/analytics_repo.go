package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sarai-Chinwag/sell-my-images/internal/domain"
)

// AnalyticsRepositoryPG implements AnalyticsRepository using PostgreSQL.
type AnalyticsRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewAnalyticsRepository constructs the repository.
func NewAnalyticsRepository(pool *pgxpool.Pool) *AnalyticsRepositoryPG {
	return &AnalyticsRepositoryPG{pool: pool}
}

// IncrementClick upserts the buy-button counter for the provided day.
func (r *AnalyticsRepositoryPG) IncrementClick(ctx context.Context, day string, postID, attachmentID int64, country string) error {
	query := `
INSERT INTO click_daily (day, post_id, attachment_id, country, clicks)
VALUES ($1, $2, $3, $4, 1)
ON CONFLICT (day, post_id, attachment_id, country) DO UPDATE SET
    clicks = click_daily.clicks + 1;
`
	_, err := r.pool.Exec(ctx, query, day, postID, attachmentID, country)
	return err
}

var _ domain.AnalyticsRepository = (*AnalyticsRepositoryPG)(nil)
