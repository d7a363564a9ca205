// Package notify is the completion-notification seam. The production mail
// integration is not wired yet; the log notifier records what would be sent
// so operators can follow up manually.
package notify

import (
	"context"

	"github.com/Sarai-Chinwag/sell-my-images/internal/domain"
	"github.com/Sarai-Chinwag/sell-my-images/internal/infra"
)

// Notifier receives job completion events carrying the customer-facing
// download link.
type Notifier interface {
	JobCompleted(ctx context.Context, job *domain.Job, downloadURL string)
	JobFailed(ctx context.Context, job *domain.Job, reason string)
}

// LogNotifier writes notification events to the structured log.
type LogNotifier struct {
	logger *infra.Logger
}

// NewLogNotifier returns a Notifier backed by the service log.
func NewLogNotifier(logger *infra.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) JobCompleted(ctx context.Context, job *domain.Job, downloadURL string) {
	n.logger.Info().
		Str("job_id", job.ID).
		Str("email", job.Email).
		Str("download_url", downloadURL).
		Msg("notify: job completed")
}

func (n *LogNotifier) JobFailed(ctx context.Context, job *domain.Job, reason string) {
	n.logger.Warn().
		Str("job_id", job.ID).
		Str("email", job.Email).
		Str("reason", reason).
		Msg("notify: job failed")
}

var _ Notifier = (*LogNotifier)(nil)
