package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() CheckoutRequest {
	return CheckoutRequest{
		AmountCents: 1000,
		Currency:    "ZAR",
		Description: "Order ord-1",
		SuccessURL:  "https://shop.example/checkout/success?orderId=ord-1",
		CancelURL:   "https://shop.example/checkout/cancel?orderId=ord-1",
		FailureURL:  "https://shop.example/checkout/failure?orderId=ord-1",
		Metadata:    map[string]string{MetadataOrderID: "ord-1", MetadataUserID: "user-1"},
	}
}

func newTestGateway(url string) *HTTPGateway {
	return NewHTTPGateway(HTTPGatewayConfig{
		BaseURL:          url,
		SecretKey:        "sk_test_123",
		Timeout:          time.Second,
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	}, nil)
}

// ============================================
// CreateCheckout Tests
// ============================================

func TestHTTPGateway_CreateCheckout_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/checkouts", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		assert.Equal(t, "ord-1", r.Header.Get("Idempotency-Key"))

		var payload checkoutPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, int64(1000), payload.Amount)
		assert.Equal(t, "ZAR", payload.Currency)
		assert.Equal(t, "Order ord-1", payload.Description)
		assert.Equal(t, "ord-1", payload.Metadata["orderId"])
		assert.Equal(t, "user-1", payload.Metadata["userId"])
		assert.Contains(t, payload.FailureURL, "/checkout/failure")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ch_123","redirectUrl":"https://pay.example/ch_123","status":"created"}`))
	}))
	defer srv.Close()

	session, err := newTestGateway(srv.URL).CreateCheckout(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, "ch_123", session.ID)
	assert.Equal(t, "https://pay.example/ch_123", session.RedirectURL)
}

func TestHTTPGateway_CreateCheckout_MissingMetadata(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()
	gateway := newTestGateway(srv.URL)

	tests := []struct {
		name     string
		metadata map[string]string
	}{
		{"nil metadata", nil},
		{"missing userId", map[string]string{MetadataOrderID: "ord-1"}},
		{"missing orderId", map[string]string{MetadataUserID: "user-1"}},
		{"blank orderId", map[string]string{MetadataOrderID: "", MetadataUserID: "user-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			req.Metadata = tt.metadata
			_, err := gateway.CreateCheckout(context.Background(), req)
			assert.ErrorIs(t, err, ErrMissingMetadata)
		})
	}
	assert.Zero(t, calls.Load(), "gateway must not be called without correlation metadata")
}

func TestHTTPGateway_CreateCheckout_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorType":"invalid_request","description":"amount too small"}`))
	}))
	defer srv.Close()

	_, err := newTestGateway(srv.URL).CreateCheckout(context.Background(), validRequest())

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
	assert.Equal(t, "amount too small", gwErr.Message)
	assert.True(t, gwErr.Rejected())
}

func TestHTTPGateway_CreateCheckout_MissingRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"ch_123"}`))
	}))
	defer srv.Close()

	_, err := newTestGateway(srv.URL).CreateCheckout(context.Background(), validRequest())

	var gwErr *GatewayError
	assert.True(t, errors.As(err, &gwErr))
}

func TestHTTPGateway_CreateCheckout_NoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestGateway(srv.URL).CreateCheckout(context.Background(), validRequest())

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPGateway_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	gateway := newTestGateway(srv.URL)

	for i := 0; i < 2; i++ {
		_, err := gateway.CreateCheckout(context.Background(), validRequest())
		require.Error(t, err)
	}

	_, err := gateway.CreateCheckout(context.Background(), validRequest())

	assert.ErrorIs(t, err, ErrGatewayDown)
	assert.Equal(t, int32(2), calls.Load(), "open breaker must short-circuit")
}

func TestHTTPGateway_RejectionsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()
	gateway := newTestGateway(srv.URL)

	for i := 0; i < 4; i++ {
		_, err := gateway.CreateCheckout(context.Background(), validRequest())
		assert.NotErrorIs(t, err, ErrGatewayDown)
	}
	assert.Equal(t, int32(4), calls.Load())
}

func TestHTTPGateway_CreateCheckout_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestGateway(url).CreateCheckout(context.Background(), validRequest())

	assert.ErrorIs(t, err, ErrGatewayDown)
}
