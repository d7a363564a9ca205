package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sarai-Chinwag/sell-my-images/internal/analytics"
	"github.com/Sarai-Chinwag/sell-my-images/internal/domain"
	"github.com/Sarai-Chinwag/sell-my-images/internal/domain/domaintest"
	"github.com/Sarai-Chinwag/sell-my-images/internal/download"
	"github.com/Sarai-Chinwag/sell-my-images/internal/http/handlers"
	"github.com/Sarai-Chinwag/sell-my-images/internal/http/httpapi"
	"github.com/Sarai-Chinwag/sell-my-images/internal/infra"
	"github.com/Sarai-Chinwag/sell-my-images/internal/jobs"
	"github.com/Sarai-Chinwag/sell-my-images/internal/notify"
	"github.com/Sarai-Chinwag/sell-my-images/internal/payments"
	"github.com/Sarai-Chinwag/sell-my-images/internal/pricing"
	"github.com/Sarai-Chinwag/sell-my-images/internal/providers/stripe"
	"github.com/Sarai-Chinwag/sell-my-images/internal/providers/upsampler"
	"github.com/Sarai-Chinwag/sell-my-images/internal/storage"
	"github.com/Sarai-Chinwag/sell-my-images/internal/upscale"
)

const webhookSecret = "whsec_test"

type testEnv struct {
	repo    *domaintest.JobRepo
	clicks  *domaintest.ClickRecorder
	router  http.Handler
	fileURL string

	// stripeFail toggles the fake payment API into rejecting sessions.
	stripeFail bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{}

	logger := infra.Logger(zerolog.New(io.Discard))
	repo := domaintest.NewJobRepo()
	clicks := &domaintest.ClickRecorder{}
	media := &domaintest.MediaRepo{Attachments: map[int64]*domain.Attachment{
		42: {ID: 42, PostID: 7, URL: "https://site.test/photo.jpg", Width: 1000, Height: 800},
	}}

	hits := 0
	stripeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if env.stripeFail {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
			return
		}
		_ = r.ParseForm()
		amount := r.PostForm.Get("line_items[0][price_data][unit_amount]")
		fmt.Fprintf(w, `{"id":"cs_test_%d","url":"https://checkout.test/cs_test_%d","amount_total":%s,"status":"open"}`, hits, hits, amount)
	}))
	t.Cleanup(stripeSrv.Close)

	upSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"id":"up_1","status":"queued"}`))
			return
		}
		_, _ = w.Write([]byte("upscaled-bytes"))
	}))
	t.Cleanup(upSrv.Close)

	stripeClient := stripe.NewClient(stripe.Options{
		SecretKey:     "sk_test_abc",
		WebhookSecret: webhookSecret,
		BaseURL:       stripeSrv.URL,
		Logger:        &logger,
	})
	upClient := upsampler.NewClient(upsampler.Options{
		APIKey:  "up_key",
		BaseURL: upSrv.URL,
		Logger:  &logger,
	})

	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	upSvc := upscale.NewService(upscale.Options{
		Jobs:           repo,
		Provider:       upClient,
		Store:          store,
		Notifier:       notify.NewLogNotifier(&logger),
		Logger:         &logger,
		PublicBaseURL:  "https://site.test",
		CallbackURL:    "https://site.test/v1/webhooks/upsampler",
		DownloadExpiry: 48 * time.Hour,
	})
	paySvc := payments.NewService(repo, stripeClient, upSvc, "https://site.test", &logger)
	mgr := jobs.NewManager(jobs.Options{
		Jobs:   repo,
		Media:  media,
		Calc:   pricing.NewCalculator(550, 10, 256),
		Logger: &logger,
	})

	app := &handlers.App{
		Jobs:          mgr,
		Payments:      paySvc,
		Upscale:       upSvc,
		Downloads:     download.NewGate(repo, store),
		Tracker:       analytics.NewTracker(clicks, nil, &logger),
		Logger:        &logger,
		AdminAPIKey:   "admin-key",
		PublicBaseURL: "https://site.test",
	}
	cfg := &infra.Config{RateLimitPerMin: 1000}

	env.repo = repo
	env.clicks = clicks
	env.router = httpapi.NewRouter(app, cfg)
	// fileURL for callbacks points at the fake provider CDN.
	env.fileURL = upSrv.URL + "/results/out.png"
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPrices(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/prices?attachment_id=42", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	resp := decode[struct {
		Options []pricing.Option `json:"options"`
	}](t, rec)
	if len(resp.Options) != 3 {
		t.Fatalf("options = %d, want 3", len(resp.Options))
	}

	if rec := env.do(t, http.MethodGet, "/v1/prices", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing attachment_id: status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/v1/prices?attachment_id=999", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown attachment: status = %d", rec.Code)
	}
}

type checkoutResp struct {
	JobID       string  `json:"job_id"`
	SessionID   string  `json:"session_id"`
	CheckoutURL string  `json:"checkout_url"`
	Amount      float64 `json:"amount"`
	Reused      bool    `json:"reused"`
}

func TestCheckoutCreatesJobAndSession(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/checkout", map[string]any{
		"attachment_id": 42, "resolution": "4x", "email": "buyer@example.com",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	resp := decode[checkoutResp](t, rec)

	if resp.JobID == "" || resp.SessionID == "" || resp.CheckoutURL == "" {
		t.Fatalf("incomplete response: %+v", resp)
	}
	// 260 minor units normalized to 2.60 major units.
	if resp.Amount != 2.60 {
		t.Fatalf("amount = %v, want 2.60", resp.Amount)
	}
	if resp.Reused {
		t.Fatal("first checkout must not report reused")
	}

	job := env.repo.Get(resp.JobID)
	if job == nil || job.Status != domain.JobStatusAwaitingPayment {
		t.Fatalf("stored job = %+v", job)
	}
	if job.CheckoutSessionID != resp.SessionID {
		t.Fatalf("session id not persisted: %q", job.CheckoutSessionID)
	}
}

func TestCheckoutReusesRecentJob(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"attachment_id": 42, "resolution": "4x"}

	first := decode[checkoutResp](t, env.do(t, http.MethodPost, "/v1/checkout", body, nil))
	second := decode[checkoutResp](t, env.do(t, http.MethodPost, "/v1/checkout", body, nil))

	if !second.Reused {
		t.Fatal("second checkout must report reused=true")
	}
	if second.JobID != first.JobID {
		t.Fatalf("job ids differ: %s vs %s", first.JobID, second.JobID)
	}
	if second.SessionID == first.SessionID {
		t.Fatal("reuse must still mint a fresh session")
	}
}

func TestCheckoutRollsBackOnProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.stripeFail = true

	rec := env.do(t, http.MethodPost, "/v1/checkout", map[string]any{"attachment_id": 42, "resolution": "4x"}, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if len(env.repo.Deleted) != 1 {
		t.Fatalf("deleted jobs = %v, want the rolled-back row", env.repo.Deleted)
	}
}

func TestCheckoutKeepsReusedJobOnProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	first := decode[checkoutResp](t, env.do(t, http.MethodPost, "/v1/checkout", map[string]any{"attachment_id": 42, "resolution": "4x"}, nil))

	env.stripeFail = true
	rec := env.do(t, http.MethodPost, "/v1/checkout", map[string]any{"attachment_id": 42, "resolution": "4x"}, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.repo.Get(first.JobID) == nil {
		t.Fatal("reused job must never be rolled back")
	}
}

func TestCheckoutValidation(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodPost, "/v1/checkout", map[string]any{"attachment_id": 42, "resolution": "16x"}, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad resolution: status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/v1/checkout", map[string]any{"resolution": "2x"}, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing attachment: status = %d", rec.Code)
	}
}

func signedWebhook(t *testing.T, env *testEnv, payload string) *httptest.ResponseRecorder {
	t.Helper()
	sig := stripe.SignPayload([]byte(payload), webhookSecret, time.Now())
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", bytes.NewReader([]byte(payload)))
	req.Header.Set("Stripe-Signature", sig)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func completedPayload(jobID string, amount int64) string {
	return fmt.Sprintf(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_1",
			"amount_total": %d,
			"metadata": {"job_id": %s, "source": "sell-my-images"},
			"customer_details": {"email": "buyer@example.com"}
		}}
	}`, amount, strconv.Quote(jobID))
}

func TestStripeWebhookReconcilesPayment(t *testing.T) {
	env := newTestEnv(t)
	resp := decode[checkoutResp](t, env.do(t, http.MethodPost, "/v1/checkout", map[string]any{"attachment_id": 42, "resolution": "4x"}, nil))

	rec := signedWebhook(t, env, completedPayload(resp.JobID, 260))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	job := env.repo.Get(resp.JobID)
	if job.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("payment_status = %s, want paid", job.PaymentStatus)
	}
	// Payment triggers dispatch, so the job lands in processing.
	if job.Status != domain.JobStatusProcessing {
		t.Fatalf("status = %s, want processing", job.Status)
	}
	if job.Email != "buyer@example.com" {
		t.Fatalf("email backfill: %q", job.Email)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStripeWebhookIgnoresForeignEvents(t *testing.T) {
	env := newTestEnv(t)
	resp := decode[checkoutResp](t, env.do(t, http.MethodPost, "/v1/checkout", map[string]any{"attachment_id": 42, "resolution": "4x"}, nil))

	payload := fmt.Sprintf(`{
		"id": "evt_9", "type": "checkout.session.completed",
		"data": {"object": {"id": "cs_x", "metadata": {"job_id": %s, "source": "another-integration"}}}
	}`, strconv.Quote(resp.JobID))
	rec := signedWebhook(t, env, payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, foreign events still ack", rec.Code)
	}
	if job := env.repo.Get(resp.JobID); job.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("foreign event mutated state: %s", job.PaymentStatus)
	}
}

func TestUpsamplerWebhookCompletesJob(t *testing.T) {
	env := newTestEnv(t)
	resp := decode[checkoutResp](t, env.do(t, http.MethodPost, "/v1/checkout", map[string]any{"attachment_id": 42, "resolution": "4x"}, nil))
	signedWebhook(t, env, completedPayload(resp.JobID, 260))

	rec := env.do(t, http.MethodPost, "/v1/webhooks/upsampler", map[string]any{
		"external_id": resp.JobID, "success": true, "file_url": env.fileURL,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	job := env.repo.Get(resp.JobID)
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", job.Status)
	}
	if job.DownloadToken == "" {
		t.Fatal("completion must mint a download token")
	}
}

func TestUpsamplerWebhookRejectsMalformedPayload(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/upsampler", bytes.NewReader([]byte(`{"success":true}`)))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestJobStatusCollapsesInternalStates(t *testing.T) {
	env := newTestEnv(t)
	resp := decode[checkoutResp](t, env.do(t, http.MethodPost, "/v1/checkout", map[string]any{"attachment_id": 42, "resolution": "4x"}, nil))

	status := decode[map[string]any](t, env.do(t, http.MethodGet, "/v1/jobs/"+resp.JobID, nil, nil))
	if status["status"] != "processing" {
		t.Fatalf("awaiting_payment must read as processing, got %v", status["status"])
	}
	if _, ok := status["download_url"]; ok {
		t.Fatal("no download_url before completion")
	}

	signedWebhook(t, env, completedPayload(resp.JobID, 260))
	env.do(t, http.MethodPost, "/v1/webhooks/upsampler", map[string]any{
		"external_id": resp.JobID, "success": true, "file_url": env.fileURL,
	}, nil)

	status = decode[map[string]any](t, env.do(t, http.MethodGet, "/v1/jobs/"+resp.JobID, nil, nil))
	if status["status"] != "completed" {
		t.Fatalf("status = %v, want completed", status["status"])
	}
	if url, _ := status["download_url"].(string); url == "" {
		t.Fatal("completed status must carry download_url")
	}

	if rec := env.do(t, http.MethodGet, "/v1/jobs/unknown-id", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job: status = %d", rec.Code)
	}
}

func TestDownloadStream(t *testing.T) {
	env := newTestEnv(t)
	resp := decode[checkoutResp](t, env.do(t, http.MethodPost, "/v1/checkout", map[string]any{"attachment_id": 42, "resolution": "4x"}, nil))
	signedWebhook(t, env, completedPayload(resp.JobID, 260))
	env.do(t, http.MethodPost, "/v1/webhooks/upsampler", map[string]any{
		"external_id": resp.JobID, "success": true, "file_url": env.fileURL,
	}, nil)
	token := env.repo.Get(resp.JobID).DownloadToken

	rec := env.do(t, http.MethodGet, "/v1/download/"+token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if rec.Body.String() != "upscaled-bytes" {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); cd == "" {
		t.Fatal("download must set attachment disposition")
	}

	if rec := env.do(t, http.MethodGet, "/v1/download/unknown-token", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown token: status = %d", rec.Code)
	}
}

func TestDownloadExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	env.repo.Seed(&domain.Job{
		ID:                "old-job",
		Status:            domain.JobStatusCompleted,
		UpscaledFilePath:  "upscaled/old-job.png",
		DownloadToken:     "expired-token",
		DownloadExpiresAt: time.Now().Add(-time.Hour),
	})
	if rec := env.do(t, http.MethodGet, "/v1/download/expired-token", nil, nil); rec.Code != http.StatusGone {
		t.Fatalf("expired token: status = %d, want 410", rec.Code)
	}
}

func TestTrackClick(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/track-click", map[string]any{"post_id": 7, "attachment_id": 42}, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(env.clicks.Clicks) != 1 {
		t.Fatalf("clicks = %d, want 1", len(env.clicks.Clicks))
	}
}

func TestAdminUpscaleAuth(t *testing.T) {
	env := newTestEnv(t)
	resp := decode[checkoutResp](t, env.do(t, http.MethodPost, "/v1/checkout", map[string]any{"attachment_id": 42, "resolution": "4x"}, nil))
	body := map[string]any{"job_id": resp.JobID}

	if rec := env.do(t, http.MethodPost, "/v1/admin/upscale", body, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/v1/admin/upscale", body, map[string]string{"X-Admin-Key": "wrong"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d", rec.Code)
	}
	if got := env.repo.Get(resp.JobID).PaymentStatus; got != domain.PaymentStatusPending {
		t.Fatalf("rejected requests must not touch the job, payment = %s", got)
	}
}

func TestAdminUpscaleCompsUnpaidJob(t *testing.T) {
	env := newTestEnv(t)
	resp := decode[checkoutResp](t, env.do(t, http.MethodPost, "/v1/checkout", map[string]any{"attachment_id": 42, "resolution": "4x"}, nil))
	body := map[string]any{"job_id": resp.JobID}

	if rec := env.do(t, http.MethodPost, "/v1/admin/upscale", body, map[string]string{"X-Admin-Key": "admin-key"}); rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	job := env.repo.Get(resp.JobID)
	if job.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("payment status = %s, want paid", job.PaymentStatus)
	}
	if job.Status != domain.JobStatusProcessing {
		t.Fatalf("status = %s, want processing", job.Status)
	}
}

func TestAdminUpscaleCreatesPrepaidJob(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"attachment_id": 42, "resolution": "4x"}

	rec := env.do(t, http.MethodPost, "/v1/admin/upscale", body, map[string]string{"X-Admin-Key": "admin-key"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.JobID == "" {
		t.Fatalf("response = %s", rec.Body)
	}

	job := env.repo.Get(resp.JobID)
	if job == nil {
		t.Fatal("prepaid job must be created")
	}
	if job.PaymentStatus != domain.PaymentStatusPaid || job.Status != domain.JobStatusProcessing {
		t.Fatalf("job state = %s/%s, want processing/paid", job.Status, job.PaymentStatus)
	}

	if rec := env.do(t, http.MethodPost, "/v1/admin/upscale", map[string]any{"attachment_id": 42}, map[string]string{"X-Admin-Key": "admin-key"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing resolution: status = %d, want 400", rec.Code)
	}
}
