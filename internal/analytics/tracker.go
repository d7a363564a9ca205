// Package analytics records buy-button clicks. Tracking is best-effort:
// recording failures are logged, never surfaced to the caller, because a
// broken counter must not block a purchase flow.
package analytics

import (
	"context"
	"time"

	"github.com/Sarai-Chinwag/sell-my-images/internal/domain"
	"github.com/Sarai-Chinwag/sell-my-images/internal/infra"
	"github.com/Sarai-Chinwag/sell-my-images/internal/infra/geoip"
)

// unknownCountry buckets clicks whose origin cannot be resolved.
const unknownCountry = "ZZ"

// Tracker aggregates clicks into daily per-country counters.
type Tracker struct {
	clicks  domain.AnalyticsRepository
	geo     geoip.CountryResolver
	logger  *infra.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewTracker wires a click tracker. geo may be nil; clicks then land in the
// unknown-country bucket.
func NewTracker(clicks domain.AnalyticsRepository, geo geoip.CountryResolver, logger *infra.Logger) *Tracker {
	return &Tracker{
		clicks:  clicks,
		geo:     geo,
		logger:  logger,
		now:     time.Now,
		timeout: 5 * time.Second,
	}
}

// TrackClick records one buy-button click. Runs synchronously but never
// returns an error; callers fire and forget.
func (t *Tracker) TrackClick(ctx context.Context, postID, attachmentID int64, clientIP string) {
	if postID <= 0 || attachmentID <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
	defer cancel()

	day := t.now().UTC().Format("2006-01-02")
	country := t.resolveCountry(clientIP)

	if err := t.clicks.IncrementClick(ctx, day, postID, attachmentID, country); err != nil {
		t.logger.Warn().Err(err).
			Int64("post_id", postID).
			Int64("attachment_id", attachmentID).
			Msg("analytics: click not recorded")
	}
}

func (t *Tracker) resolveCountry(clientIP string) string {
	if t.geo == nil || clientIP == "" {
		return unknownCountry
	}
	code, err := t.geo.CountryCode(clientIP)
	if err != nil || code == "" {
		return unknownCountry
	}
	return code
}
