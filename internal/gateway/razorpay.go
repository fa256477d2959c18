package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sony/gobreaker"
)

// ErrUnavailable marks a transport-level failure talking to the gateway.
// The outcome of the underlying operation is unknown; callers must not
// interpret it as payment success or failure.
var ErrUnavailable = errors.New("payment gateway unavailable")

type RefundStatus string

const (
	RefundProcessed RefundStatus = "processed"
	RefundPending   RefundStatus = "pending"
	RefundFailed    RefundStatus = "failed"
)

// Client is the payment gateway capability used by the payment service.
// It is constructed once and injected so tests can substitute a fake.
type Client interface {
	// CreateOrder registers an order for the given amount (in paise) and
	// returns the gateway order id plus the raw response body.
	CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (string, []byte, error)
	// VerifySignature checks the callback signature over (orderID, paymentID).
	// An invalid signature is a normal false result, not an error.
	VerifySignature(orderID, paymentID, signature string) bool
	// Refund refunds the full captured amount of a payment and returns the
	// gateway-reported refund status plus the raw response body.
	Refund(ctx context.Context, paymentID string, amountPaise int64) (RefundStatus, []byte, error)
}

type razorpayClient struct {
	keyID     string
	keySecret string
	baseURL   string
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker
}

// NewRazorpayClient builds a Client from RAZORPAY_KEY_ID / RAZORPAY_KEY_SECRET.
// Gateway calls are bounded by a request timeout and wrapped in a circuit
// breaker so a struggling provider does not pile up blocked requests.
func NewRazorpayClient() (Client, error) {
	keyID := os.Getenv("RAZORPAY_KEY_ID")
	keySecret := os.Getenv("RAZORPAY_KEY_SECRET")
	if keyID == "" || keySecret == "" {
		return nil, errors.New("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET must be set")
	}

	baseURL := os.Getenv("RAZORPAY_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.razorpay.com/v1"
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "razorpay",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &razorpayClient{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   baseURL,
		http:      &http.Client{Timeout: 10 * time.Second},
		breaker:   breaker,
	}, nil
}

func (c *razorpayClient) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (string, []byte, error) {
	payload := map[string]interface{}{
		"amount":          amountPaise,
		"currency":        currency,
		"receipt":         receipt,
		"payment_capture": 1, // auto-capture
	}

	body, err := c.post(ctx, c.baseURL+"/orders", payload)
	if err != nil {
		return "", nil, err
	}

	var order struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &order); err != nil || order.ID == "" {
		return "", body, fmt.Errorf("%w: unexpected order response", ErrUnavailable)
	}

	return order.ID, body, nil
}

// VerifySignature recomputes HMAC-SHA256 over "orderID|paymentID" with the
// merchant secret and compares in constant time. Purely local, no transport.
func (c *razorpayClient) VerifySignature(orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *razorpayClient) Refund(ctx context.Context, paymentID string, amountPaise int64) (RefundStatus, []byte, error) {
	payload := map[string]interface{}{
		"amount": amountPaise,
	}

	body, err := c.post(ctx, c.baseURL+"/payments/"+paymentID+"/refund", payload)
	if err != nil {
		return RefundFailed, nil, err
	}

	var refund struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &refund); err != nil || refund.Status == "" {
		return RefundFailed, body, fmt.Errorf("%w: unexpected refund response", ErrUnavailable)
	}

	switch RefundStatus(refund.Status) {
	case RefundProcessed, RefundPending, RefundFailed:
		return RefundStatus(refund.Status), body, nil
	default:
		return RefundFailed, body, nil
	}
}

func (c *razorpayClient) post(ctx context.Context, url string, payload map[string]interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.keyID, c.keySecret)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("gateway rejected request: status %d: %s", resp.StatusCode, body)
		}

		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}

	return result.([]byte), nil
}
