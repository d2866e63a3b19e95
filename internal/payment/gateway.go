package payment

import (
	"context"
	"errors"
	"fmt"
)

const (
	MetadataOrderID = "orderId"
	MetadataUserID  = "userId"
)

var (
	ErrMissingMetadata = errors.New("checkout metadata must carry orderId and userId")
	ErrGatewayDown     = errors.New("payment gateway unavailable")
)

// CheckoutRequest is what the storefront asks the gateway to collect.
type CheckoutRequest struct {
	AmountCents int64
	Currency    string
	Description string
	SuccessURL  string
	CancelURL   string
	FailureURL  string
	// Metadata is echoed back on every webhook for this checkout.
	Metadata map[string]string
}

func (r CheckoutRequest) Validate() error {
	if r.Metadata[MetadataOrderID] == "" || r.Metadata[MetadataUserID] == "" {
		return ErrMissingMetadata
	}
	if r.AmountCents <= 0 {
		return fmt.Errorf("checkout amount must be positive, got %d", r.AmountCents)
	}
	return nil
}

// CheckoutSession is the gateway's answer: where to send the buyer and how the gateway
// names this checkout.
type CheckoutSession struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirectUrl"`
}

type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// GatewayError is a non-success answer from the gateway.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("payment gateway returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("payment gateway returned status %d: %s", e.StatusCode, e.Message)
}

// Rejected reports a 4xx answer, meaning the request itself was refused.
func (e *GatewayError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
