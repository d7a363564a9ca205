package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateCheckoutSession(t *testing.T) {
	var gotForm map[string][]string
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_123","url":"https://checkout.stripe.com/c/pay/cs_test_123","amount_total":320,"status":"open"}`))
	}))
	defer srv.Close()

	client := NewClient(Options{SecretKey: "sk_test_abc", BaseURL: srv.URL})
	session, err := client.CreateCheckoutSession(context.Background(), SessionRequest{
		AmountCents:        320,
		ProductName:        "Image upscale 4x",
		ProductDescription: "4000x3200 upscale of attachment 42",
		CustomerEmail:      "buyer@example.com",
		SuccessURL:         "https://site.test/?smi_payment=success&job_id=job-1",
		CancelURL:          "https://site.test/?smi_payment=cancelled",
		Metadata: map[string]string{
			"job_id":     "job-1",
			"resolution": "4x",
			"source":     "sell-my-images",
		},
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}

	if gotAuth != "Bearer sk_test_abc" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if got := gotForm["line_items[0][price_data][unit_amount]"]; len(got) != 1 || got[0] != "320" {
		t.Fatalf("unit_amount = %v, want [320]", got)
	}
	if got := gotForm["line_items[0][price_data][currency]"]; len(got) != 1 || got[0] != "usd" {
		t.Fatalf("currency = %v, want usd", got)
	}
	if got := gotForm["metadata[source]"]; len(got) != 1 || got[0] != "sell-my-images" {
		t.Fatalf("metadata[source] = %v", got)
	}
	if got := gotForm["metadata[job_id]"]; len(got) != 1 || got[0] != "job-1" {
		t.Fatalf("metadata[job_id] = %v", got)
	}

	if session.ID != "cs_test_123" {
		t.Fatalf("session id = %q", session.ID)
	}
	if session.AmountTotal != 320 {
		t.Fatalf("amount_total = %d", session.AmountTotal)
	}
}

func TestCreateCheckoutSessionAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	}))
	defer srv.Close()

	client := NewClient(Options{SecretKey: "sk_test_abc", BaseURL: srv.URL})
	_, err := client.CreateCheckoutSession(context.Background(), SessionRequest{AmountCents: 100, ProductName: "x", SuccessURL: "https://s", CancelURL: "https://c"})
	if err == nil {
		t.Fatal("expected error from declined session")
	}
}

func TestCreateCheckoutSessionRequiresKey(t *testing.T) {
	client := NewClient(Options{})
	if err := client.Configured(); !errors.Is(err, ErrMissingSecretKey) {
		t.Fatalf("Configured = %v, want ErrMissingSecretKey", err)
	}
	if _, err := client.CreateCheckoutSession(context.Background(), SessionRequest{AmountCents: 100}); !errors.Is(err, ErrMissingSecretKey) {
		t.Fatalf("CreateCheckoutSession = %v, want ErrMissingSecretKey", err)
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	secret := "whsec_test"
	now := time.Now()

	header := SignPayload(payload, secret, now)
	if err := verifySignature(payload, header, secret, now); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	if err := verifySignature([]byte(`tampered`), header, secret, now); !errors.Is(err, ErrInvalidSignature) {
		t.Fatal("tampered payload must be rejected")
	}

	stale := SignPayload(payload, secret, now.Add(-10*time.Minute))
	if err := verifySignature(payload, stale, secret, now); !errors.Is(err, ErrInvalidSignature) {
		t.Fatal("stale signature must be rejected")
	}

	if err := verifySignature(payload, "garbage", secret, now); !errors.Is(err, ErrInvalidSignature) {
		t.Fatal("malformed header must be rejected")
	}
}

func TestVerifySignatureSkippedWithoutSecret(t *testing.T) {
	client := NewClient(Options{SecretKey: "sk"})
	if err := client.VerifySignature([]byte("{}"), ""); err != nil {
		t.Fatalf("unconfigured webhook secret should skip verification: %v", err)
	}
}

func TestParseEvent(t *testing.T) {
	payload := []byte(`{
		"id": "evt_42",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_live_abc",
			"amount_total": 320,
			"payment_intent": "pi_1",
			"metadata": {"job_id": "job-9", "source": "sell-my-images", "resolution": "4x"},
			"customer_details": {"email": "stripe@example.com"}
		}}
	}`)
	ev, obj, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if ev.Type != EventCheckoutCompleted {
		t.Fatalf("type = %q", ev.Type)
	}
	if obj.JobID() != "job-9" || obj.Source() != "sell-my-images" {
		t.Fatalf("metadata round-trip failed: %+v", obj.Metadata)
	}
	if obj.AmountTotal != 320 {
		t.Fatalf("amount_total = %d", obj.AmountTotal)
	}
	if obj.CustomerDetails.Email != "stripe@example.com" {
		t.Fatalf("customer email = %q", obj.CustomerDetails.Email)
	}
}
