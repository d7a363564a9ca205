// Command stripekey stores the Stripe credentials in the settings table so
// deployments can rotate keys without restarting with new environment.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/Sarai-Chinwag/sell-my-images/internal/infra/settings"
)

func main() {
	_ = godotenv.Load()

	var (
		keyFlag     string
		webhookFlag string
	)
	flag.StringVar(&keyFlag, "key", "", "Stripe secret key (falls back to STRIPE_SECRET_KEY)")
	flag.StringVar(&webhookFlag, "webhook-secret", "", "Stripe webhook signing secret (falls back to STRIPE_WEBHOOK_SECRET)")
	flag.Parse()

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY"))
	}
	webhookSecret := strings.TrimSpace(webhookFlag)
	if webhookSecret == "" {
		webhookSecret = strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET"))
	}
	if key == "" && webhookSecret == "" {
		fmt.Fprintln(os.Stderr, "nothing to store: provide -key and/or -webhook-secret")
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := settings.NewStore(pool)
	if key != "" {
		if err := store.Set(ctx, settings.KeyStripeSecretKey, key); err != nil {
			fmt.Fprintf(os.Stderr, "failed to store secret key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("stripe secret key stored")
	}
	if webhookSecret != "" {
		if err := store.Set(ctx, settings.KeyStripeWebhookSecret, webhookSecret); err != nil {
			fmt.Fprintf(os.Stderr, "failed to store webhook secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("stripe webhook secret stored")
	}
}
