// Package stripe is a minimal client for the Stripe Checkout API covering
// what the checkout flow needs: hosted session creation and webhook event
// verification. Field names follow Stripe's wire format; callers outside
// this package and the payments orchestrator never see them.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sarai-Chinwag/sell-my-images/internal/infra"
)

// ErrMissingSecretKey indicates the client was configured without credentials.
var ErrMissingSecretKey = errors.New("stripe: secret key is required")

// Options configures the Stripe client.
type Options struct {
	SecretKey      string
	WebhookSecret  string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the Stripe API.
type Client struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
	logger        *infra.Logger
}

// SessionRequest captures the inputs for a hosted checkout session.
type SessionRequest struct {
	AmountCents        int64
	Currency           string
	ProductName        string
	ProductDescription string
	CustomerEmail      string
	SuccessURL         string
	CancelURL          string
	Metadata           map[string]string
}

// Session is Stripe's checkout session response, in Stripe's vocabulary:
// id, url and amount_total (minor units).
type Session struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	AmountTotal int64  `json:"amount_total"`
	Status      string `json:"status"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		secretKey:     strings.TrimSpace(opts.SecretKey),
		webhookSecret: strings.TrimSpace(opts.WebhookSecret),
		baseURL:       baseURL,
		httpClient:    httpClient,
		logger:        logger,
	}
}

// Configured reports whether the client can create sessions.
func (c *Client) Configured() error {
	if c.secretKey == "" {
		return ErrMissingSecretKey
	}
	return nil
}

// CreateCheckoutSession creates a hosted checkout session.
func (c *Client) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if err := c.Configured(); err != nil {
		return nil, err
	}
	if req.AmountCents <= 0 {
		return nil, errors.New("stripe: amount must be positive")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.AmountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.ProductName)
	if req.ProductDescription != "" {
		form.Set("line_items[0][price_data][product_data][description]", req.ProductDescription)
	}
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}
	for key, value := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	endpoint := c.baseURL + "/v1/checkout/sessions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("stripe: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stripe: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("stripe: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var detail apiError
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Error.Message != "" {
			return nil, fmt.Errorf("stripe: session rejected (%s): %s", detail.Error.Type, detail.Error.Message)
		}
		return nil, fmt.Errorf("stripe: session rejected with status %d", resp.StatusCode)
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("stripe: decode response: %w", err)
	}
	if session.ID == "" || session.URL == "" {
		return nil, errors.New("stripe: response missing session id or url")
	}
	c.logger.Debug().Str("session_id", session.ID).Msg("stripe: checkout session created")
	return &session, nil
}
