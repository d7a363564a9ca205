// Package upsampler is the client for the external upscaling provider. Jobs
// are submitted fire-and-forget keyed by our job id; the provider reports the
// outcome later by POSTing a callback to the URL given at submission.
package upsampler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sarai-Chinwag/sell-my-images/internal/domain"
	"github.com/Sarai-Chinwag/sell-my-images/internal/infra"
)

// ErrMissingAPIKey indicates the client was configured without credentials.
var ErrMissingAPIKey = errors.New("upsampler: api key is required")

// Options configures the upscaling provider client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client submits upscale jobs to the provider API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// SubmitRequest carries one upscale dispatch.
type SubmitRequest struct {
	JobID       string
	ImageURL    string
	Resolution  domain.Resolution
	CallbackURL string
}

type submitPayload struct {
	ExternalID  string `json:"external_id"`
	ImageURL    string `json:"image_url"`
	Factor      int    `json:"factor"`
	WebhookURL  string `json:"webhook_url"`
	OutputStyle string `json:"output_style"`
}

type submitResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Callback is the payload the provider POSTs when a job finishes.
type Callback struct {
	JobID    string `json:"external_id"`
	Success  bool   `json:"success"`
	FileURL  string `json:"file_url"`
	Error    string `json:"error"`
	Provider string `json:"provider_job_id"`
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
		baseURL = "https://upsampler.com/api/v1"
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
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Configured reports whether the client can perform remote calls.
func (c *Client) Configured() error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Submit dispatches one upscale. A nil error means the provider accepted the
// job; the result arrives later via the callback URL.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) error {
	if err := c.Configured(); err != nil {
		return err
	}
	if req.JobID == "" || req.ImageURL == "" {
		return errors.New("upsampler: job id and image url are required")
	}
	factor := req.Resolution.Factor()
	if factor == 0 {
		return fmt.Errorf("upsampler: unsupported resolution %q", req.Resolution)
	}

	body, err := json.Marshal(submitPayload{
		ExternalID:  req.JobID,
		ImageURL:    req.ImageURL,
		Factor:      factor,
		WebhookURL:  req.CallbackURL,
		OutputStyle: "photo",
	})
	if err != nil {
		return fmt.Errorf("upsampler: encode request: %w", err)
	}

	endpoint := c.baseURL + "/upscale"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("upsampler: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("upsampler: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("upsampler: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail submitResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			return fmt.Errorf("upsampler: submit rejected: %s", detail.Message)
		}
		return fmt.Errorf("upsampler: submit rejected with status %d", resp.StatusCode)
	}

	c.logger.Debug().Str("job_id", req.JobID).Int("factor", factor).Msg("upsampler: job submitted")
	return nil
}

// Fetch downloads a finished file from the provider's result URL.
func (c *Client) Fetch(ctx context.Context, fileURL string) (io.ReadCloser, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("upsampler: build fetch request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upsampler: fetch file: %w", err)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("upsampler: fetch returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// ParseCallback decodes a provider callback payload.
func ParseCallback(payload []byte) (*Callback, error) {
	var cb Callback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, fmt.Errorf("upsampler: decode callback: %w", err)
	}
	if cb.JobID == "" {
		return nil, errors.New("upsampler: callback missing external_id")
	}
	return &cb, nil
}
