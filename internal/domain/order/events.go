package order

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderPaid       = "order.paid"
	EventOrderFailed     = "order.failed"
	EventPurchaseGranted = "purchase.granted"
	// a payment confirmation arrived for an order that had already failed
	EventPaymentConflict = "order.payment_conflict"
)

// Envelope is the wire form of every fulfillment event published to the event topic.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OrderID    string          `json:"order_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func NewEnvelope(eventType, orderID string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:         uuid.New().String(),
		Type:       eventType,
		OrderID:    orderID,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}, nil
}

type OrderPaid struct {
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	Currency      string    `json:"currency"`
	AmountCents   int64     `json:"amount_cents"`
	Lines         []Line    `json:"lines"`
	PaidAt        time.Time `json:"paid_at"`
}

type OrderFailed struct {
	OrderID  string    `json:"order_id"`
	UserID   string    `json:"user_id"`
	Status   string    `json:"gateway_status"`
	FailedAt time.Time `json:"failed_at"`
}

type PurchaseGranted struct {
	UserID  string `json:"user_id"`
	ItemID  string `json:"item_id"`
	OrderID string `json:"order_id"`
}

// PaymentConflict needs manual reconciliation: the gateway took the money but the order
// can no longer become paid.
type PaymentConflict struct {
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	Currency      string    `json:"currency"`
	AmountCents   int64     `json:"amount_cents"`
	CurrentStatus Status    `json:"current_status"`
	GatewayStatus string    `json:"gateway_status"`
	DetectedAt    time.Time `json:"detected_at"`
}
