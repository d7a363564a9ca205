// Command reaper runs one abandoned-job sweep and exits. Intended for cron
// or a scheduled job runner; the API server also sweeps in-process.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/Sarai-Chinwag/sell-my-images/internal/adapter/repo"
	"github.com/Sarai-Chinwag/sell-my-images/internal/infra"
	"github.com/Sarai-Chinwag/sell-my-images/internal/jobs"
	"github.com/Sarai-Chinwag/sell-my-images/internal/pricing"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "reaper").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	manager := jobs.NewManager(jobs.Options{
		Jobs:         repo.NewJobRepository(pool),
		Media:        repo.NewMediaRepository(pool),
		Calc:         pricing.NewCalculator(cfg.MarkupPercent, cfg.CreditPriceCents, cfg.MaxOutputMegapixel),
		Logger:       &logger,
		AbandonedTTL: cfg.AbandonedTTL,
		Retention:    cfg.RetentionWindow,
	})

	result, err := manager.SweepAbandoned(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweep failed")
	}
	logger.Info().
		Int("abandoned", result.Abandoned).
		Int("deleted", result.Deleted).
		Msg("sweep complete")
	fmt.Printf("abandoned=%d deleted=%d\n", result.Abandoned, result.Deleted)
}
