package order

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrEmptyOrder        = errors.New("order must have at least one line")
	ErrInvalidLine       = errors.New("order line must have an item, a positive quantity and a non-negative price")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusFailed},
	StatusPaid:    {}, // terminal state
	StatusFailed:  {}, // terminal state
}

// CanTransitionTo checks if an order in status s can move to target
func (s Status) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, candidate := range allowed {
		if candidate == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible
func (s Status) IsTerminal() bool {
	allowed, exists := validTransitions[s]
	return exists && len(allowed) == 0
}

func (s Status) Valid() bool {
	_, exists := validTransitions[s]
	return exists
}

// transitionError returns an appropriate error for an invalid transition
func transitionError(orderID string, from, to Status) error {
	return fmt.Errorf("%w: order %s is %s, cannot become %s", ErrInvalidTransition, orderID, from, to)
}

// Line is the price/title snapshot of one cart line, frozen when the order is created.
type Line struct {
	ItemID         string `json:"item_id"`
	Title          string `json:"title"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
}

func (l Line) SubtotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

func (l Line) validate() error {
	if l.ItemID == "" || l.Quantity < 1 || l.UnitPriceCents < 0 {
		return fmt.Errorf("%w: item=%q quantity=%d price=%d", ErrInvalidLine, l.ItemID, l.Quantity, l.UnitPriceCents)
	}
	return nil
}

// Total sums unit price × quantity over lines.
func Total(lines []Line) int64 {
	var total int64
	for _, line := range lines {
		total += line.SubtotalCents()
	}
	return total
}

type Order struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	CustomerEmail     string     `json:"customer_email,omitempty"`
	Currency          string     `json:"currency"`
	AmountCents       int64      `json:"amount_cents"`
	Status            Status     `json:"status"`
	GatewayCheckoutID string     `json:"gateway_checkout_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	Lines             []Line     `json:"lines,omitempty"`
}

// Grant is durable proof that a user owns an item. A user owns an item at most once.
type Grant struct {
	UserID    string    `json:"user_id"`
	ItemID    string    `json:"item_id"`
	OrderID   string    `json:"order_id"`
	GrantedAt time.Time `json:"granted_at"`
}
