package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Sarai-Chinwag/sell-my-images/internal/adapter/repo"
	"github.com/Sarai-Chinwag/sell-my-images/internal/analytics"
	"github.com/Sarai-Chinwag/sell-my-images/internal/download"
	"github.com/Sarai-Chinwag/sell-my-images/internal/http/handlers"
	"github.com/Sarai-Chinwag/sell-my-images/internal/http/httpapi"
	"github.com/Sarai-Chinwag/sell-my-images/internal/infra"
	"github.com/Sarai-Chinwag/sell-my-images/internal/infra/geoip"
	"github.com/Sarai-Chinwag/sell-my-images/internal/infra/settings"
	"github.com/Sarai-Chinwag/sell-my-images/internal/jobs"
	"github.com/Sarai-Chinwag/sell-my-images/internal/notify"
	"github.com/Sarai-Chinwag/sell-my-images/internal/payments"
	"github.com/Sarai-Chinwag/sell-my-images/internal/pricing"
	"github.com/Sarai-Chinwag/sell-my-images/internal/providers/stripe"
	"github.com/Sarai-Chinwag/sell-my-images/internal/providers/upsampler"
	"github.com/Sarai-Chinwag/sell-my-images/internal/storage"
	"github.com/Sarai-Chinwag/sell-my-images/internal/upscale"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	if err := infra.RunMigrations(cfg); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Database-stored settings fill in for unset environment variables.
	settingsStore := settings.NewStore(pool)
	if cfg.StripeSecretKey == "" {
		if key, err := settingsStore.StripeSecretKey(ctx); err == nil && key != "" {
			cfg.StripeSecretKey = key
		}
	}
	if cfg.StripeWebhookSecret == "" {
		if secret, err := settingsStore.StripeWebhookSecret(ctx); err == nil && secret != "" {
			cfg.StripeWebhookSecret = secret
		}
	}
	if markup, err := settingsStore.MarkupPercent(ctx); err == nil && markup > 0 {
		cfg.MarkupPercent = markup
	}

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init storage")
	}

	geoResolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}

	jobRepo := repo.NewJobRepository(pool)
	mediaRepo := repo.NewMediaRepository(pool)
	analyticsRepo := repo.NewAnalyticsRepository(pool)

	stripeClient := stripe.NewClient(stripe.Options{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		BaseURL:       cfg.StripeBaseURL,
		Logger:        &logger,
	})
	upClient := upsampler.NewClient(upsampler.Options{
		APIKey:  cfg.UpsamplerAPIKey,
		BaseURL: cfg.UpsamplerBaseURL,
		Logger:  &logger,
	})

	upscaleSvc := upscale.NewService(upscale.Options{
		Jobs:           jobRepo,
		Provider:       upClient,
		Store:          store,
		Notifier:       notify.NewLogNotifier(&logger),
		Logger:         &logger,
		PublicBaseURL:  cfg.PublicBaseURL,
		CallbackURL:    cfg.PublicBaseURL + "/v1/webhooks/upsampler",
		DownloadExpiry: cfg.DownloadExpiry,
	})
	paymentSvc := payments.NewService(jobRepo, stripeClient, upscaleSvc, cfg.PublicBaseURL, &logger)
	manager := jobs.NewManager(jobs.Options{
		Jobs:         jobRepo,
		Media:        mediaRepo,
		Calc:         pricing.NewCalculator(cfg.MarkupPercent, cfg.CreditPriceCents, cfg.MaxOutputMegapixel),
		Logger:       &logger,
		AbandonedTTL: cfg.AbandonedTTL,
		Retention:    cfg.RetentionWindow,
	})

	app := &handlers.App{
		Jobs:          manager,
		Payments:      paymentSvc,
		Upscale:       upscaleSvc,
		Downloads:     download.NewGate(jobRepo, store),
		Tracker:       analytics.NewTracker(analyticsRepo, geoResolver, &logger),
		Logger:        &logger,
		AdminAPIKey:   cfg.AdminAPIKey,
		PublicBaseURL: cfg.PublicBaseURL,
	}

	router := httpapi.NewRouter(app, cfg)
	server := infra.NewHTTPServer(cfg, router)

	// In-process reaper so a single deployment still sweeps abandoned jobs.
	// Larger installs run cmd/reaper on its own schedule instead.
	reaperCtx, stopReaper := context.WithCancel(ctx)
	go runReaper(reaperCtx, manager, cfg.ReaperInterval, logger)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	stopReaper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if closer, ok := geoResolver.(interface{ Close() error }); ok && closer != nil {
		_ = closer.Close()
	}
	logger.Info().Msg("server stopped")
}

func runReaper(ctx context.Context, manager *jobs.Manager, interval time.Duration, logger infra.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := manager.SweepAbandoned(ctx); err != nil {
				logger.Error().Err(err).Msg("reaper sweep failed")
			}
		}
	}
}
