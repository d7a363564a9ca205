package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	// PublicBaseURL is the externally reachable origin used to build
	// checkout success/cancel URLs, webhook callback URLs and download links.
	PublicBaseURL string
	StoragePath   string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeBaseURL       string

	UpsamplerAPIKey  string
	UpsamplerBaseURL string

	MarkupPercent      float64
	CreditPriceCents   int64
	MaxOutputMegapixel float64

	AbandonedTTL    time.Duration
	RetentionWindow time.Duration
	ReaperInterval  time.Duration
	DownloadExpiry  time.Duration

	AdminAPIKey string
	GeoIPDBPath string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		StoragePath:   getEnv("STORAGE_PATH", "./storage"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeBaseURL:       getEnv("STRIPE_BASE_URL", "https://api.stripe.com"),

		UpsamplerAPIKey:  os.Getenv("UPSAMPLER_API_KEY"),
		UpsamplerBaseURL: getEnv("UPSAMPLER_BASE_URL", "https://upsampler.com/api/v1"),

		MarkupPercent:      getEnvFloat("MARKUP_PERCENT", 550),
		CreditPriceCents:   int64(getEnvInt("CREDIT_PRICE_CENTS", 10)),
		MaxOutputMegapixel: getEnvFloat("MAX_OUTPUT_MEGAPIXELS", 256),

		AbandonedTTL:    time.Hour * time.Duration(getEnvInt("ABANDONED_TTL_HOURS", 24)),
		RetentionWindow: 24 * time.Hour * time.Duration(getEnvInt("RETENTION_DAYS", 30)),
		ReaperInterval:  time.Minute * time.Duration(getEnvInt("REAPER_INTERVAL_MINUTES", 60)),
		DownloadExpiry:  time.Hour * time.Duration(getEnvInt("DOWNLOAD_EXPIRY_HOURS", 48)),

		AdminAPIKey: os.Getenv("ADMIN_API_KEY"),
		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		AllowedOrigins:   splitList(getEnv("ALLOWED_ORIGINS", "")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
