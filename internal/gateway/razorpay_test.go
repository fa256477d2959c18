package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func newTestClient(baseURL string) *razorpayClient {
	return &razorpayClient{
		keyID:     "rzp_test_key",
		keySecret: "test_secret",
		baseURL:   baseURL,
		http:      &http.Client{Timeout: 5 * time.Second},
		breaker:   gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "test"}),
	}
}

func signWith(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	client := newTestClient("")

	orderID := "order_abc"
	paymentID := "pay_123"
	valid := signWith("test_secret", orderID, paymentID)

	if !client.VerifySignature(orderID, paymentID, valid) {
		t.Error("valid signature rejected")
	}
	if client.VerifySignature(orderID, paymentID, signWith("wrong_secret", orderID, paymentID)) {
		t.Error("signature from the wrong secret accepted")
	}
	if client.VerifySignature(orderID, "pay_456", valid) {
		t.Error("signature over a different payment id accepted")
	}
	if client.VerifySignature(orderID, paymentID, "") {
		t.Error("empty signature accepted")
	}
}

func TestCreateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_test_key" || pass != "test_secret" {
			t.Error("missing or wrong basic auth")
		}
		w.Write([]byte(`{"id":"order_abc","amount":15000,"currency":"INR"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	orderID, raw, err := client.CreateOrder(context.Background(), 15000, "INR", "booking_3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if orderID != "order_abc" {
		t.Errorf("orderID = %q, want order_abc", orderID)
	}
	if len(raw) == 0 {
		t.Error("raw response body not returned")
	}
}

func TestCreateOrderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, _, err := client.CreateOrder(context.Background(), 15000, "INR", "booking_3")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("got %v, want ErrUnavailable", err)
	}
}

func TestCreateOrderRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"description":"amount too small"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, _, err := client.CreateOrder(context.Background(), 0, "INR", "booking_3")
	if err == nil {
		t.Fatal("expected an error for a rejected order")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Error("a 4xx rejection is a definite outcome, not unavailability")
	}
}

func TestRefundStatuses(t *testing.T) {
	tests := []struct {
		body string
		want RefundStatus
	}{
		{`{"id":"rfnd_1","status":"processed"}`, RefundProcessed},
		{`{"id":"rfnd_1","status":"pending"}`, RefundPending},
		{`{"id":"rfnd_1","status":"failed"}`, RefundFailed},
		{`{"id":"rfnd_1","status":"something_new"}`, RefundFailed},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/payments/pay_123/refund" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.Write([]byte(tt.body))
		}))

		client := newTestClient(server.URL)
		status, _, err := client.Refund(context.Background(), "pay_123", 15000)
		if err != nil {
			t.Errorf("body %s: unexpected error: %v", tt.body, err)
		}
		if status != tt.want {
			t.Errorf("body %s: status = %s, want %s", tt.body, status, tt.want)
		}
		server.Close()
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	client.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "test",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})

	for i := 0; i < 3; i++ {
		_, _, err := client.CreateOrder(context.Background(), 15000, "INR", "booking_3")
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("call %d: got %v, want ErrUnavailable", i, err)
		}
	}
	if client.breaker.State() != gobreaker.StateOpen {
		t.Errorf("breaker state = %s, want open", client.breaker.State())
	}
}
