// Package settings persists operator-editable configuration in the database,
// used as a fallback when the corresponding environment variables are unset.
package settings

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Sarai-Chinwag/sell-my-images/internal/infra"
)

const (
	KeyStripeSecretKey     = "stripe_secret_key"
	KeyStripeWebhookSecret = "stripe_webhook_secret"
	KeyMarkupPercent       = "smi_markup_percent"
)

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db Querier
}

func NewStore(db Querier) *Store {
	return &Store{db: db}
}

// Get returns the stored value, or "" when the key is absent.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	row := s.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1;`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(value), nil
}

// Set upserts a setting.
func (s *Store) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return errors.New("settings: key is required")
	}
	if value == "" {
		return errors.New("settings: value is required")
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO settings (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now();
`, key, value)
	return err
}

func (s *Store) StripeSecretKey(ctx context.Context) (string, error) {
	return s.Get(ctx, KeyStripeSecretKey)
}

func (s *Store) StripeWebhookSecret(ctx context.Context) (string, error) {
	return s.Get(ctx, KeyStripeWebhookSecret)
}

// MarkupPercent returns the stored markup, or 0 when unset or unparseable.
func (s *Store) MarkupPercent(ctx context.Context) (float64, error) {
	raw, err := s.Get(ctx, KeyMarkupPercent)
	if err != nil || raw == "" {
		return 0, err
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, nil
	}
	return f, nil
}
