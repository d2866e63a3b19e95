package payment

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

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// HTTPGatewayConfig configures the hosted-checkout client.
type HTTPGatewayConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
	// consecutive 5xx/transport failures before the breaker opens
	FailureThreshold uint32
	// how long the breaker stays open before letting one probe through
	OpenTimeout time.Duration
}

// HTTPGateway creates hosted checkouts via POST {BaseURL}/api/checkouts. It never retries;
// a repeated call would create a second checkout for the same order.
type HTTPGateway struct {
	baseURL   string
	secretKey string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*CheckoutSession]
	logger    *zap.Logger
}

var _ Gateway = (*HTTPGateway)(nil)

type checkoutPayload struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description,omitempty"`
	SuccessURL  string            `json:"successUrl,omitempty"`
	CancelURL   string            `json:"cancelUrl,omitempty"`
	FailureURL  string            `json:"failureUrl,omitempty"`
	Metadata    map[string]string `json:"metadata"`
}

type errorPayload struct {
	Message     string `json:"message"`
	Description string `json:"description"`
	ErrorType   string `json:"errorType"`
}

func NewHTTPGateway(cfg HTTPGatewayConfig, logger *zap.Logger) *HTTPGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "gateway"))

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[*CheckoutSession](gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// a refused request says nothing about the gateway's health
			var gwErr *GatewayError
			return errors.As(err, &gwErr) && gwErr.Rejected()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &HTTPGateway{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		client:    &http.Client{Timeout: cfg.Timeout},
		breaker:   breaker,
		logger:    logger,
	}
}

func (g *HTTPGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	session, err := g.breaker.Execute(func() (*CheckoutSession, error) {
		return g.post(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrGatewayDown, err)
		}
		return nil, err
	}
	return session, nil
}

func (g *HTTPGateway) post(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	body, err := json.Marshal(checkoutPayload{
		Amount:      req.AmountCents,
		Currency:    req.Currency,
		Description: req.Description,
		SuccessURL:  req.SuccessURL,
		CancelURL:   req.CancelURL,
		FailureURL:  req.FailureURL,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("encode checkout request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/checkouts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build checkout request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)
	// the order id makes a replayed request return the same checkout
	httpReq.Header.Set("Idempotency-Key", req.Metadata[MetadataOrderID])

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.logger.Error("checkout request failed",
			zap.String("order_id", req.Metadata[MetadataOrderID]),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGatewayDown, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read checkout response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gwErr := &GatewayError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
		g.logger.Warn("gateway rejected checkout",
			zap.String("order_id", req.Metadata[MetadataOrderID]),
			zap.Int("status", resp.StatusCode),
			zap.String("message", gwErr.Message))
		return nil, gwErr
	}

	var session CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode checkout response: %w", err)
	}
	if session.RedirectURL == "" {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Message: "response carried no redirectUrl"}
	}

	g.logger.Info("checkout created",
		zap.String("order_id", req.Metadata[MetadataOrderID]),
		zap.String("gateway_checkout_id", session.ID),
		zap.Duration("elapsed", time.Since(start)))
	return &session, nil
}

func errorMessage(raw []byte) string {
	var p errorPayload
	if err := json.Unmarshal(raw, &p); err == nil {
		switch {
		case p.Description != "":
			return p.Description
		case p.Message != "":
			return p.Message
		case p.ErrorType != "":
			return p.ErrorType
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
