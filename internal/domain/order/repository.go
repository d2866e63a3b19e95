package order

import (
	"context"
	"time"
)

// Repository is the persistence the ledger needs: read by key, insert, update by key.
// GetOrder returns ErrOrderNotFound when the id is unknown.
type Repository interface {
	InsertOrder(ctx context.Context, o *Order) error
	InsertOrderLines(ctx context.Context, orderID string, lines []Line) error
	DeleteOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	GetOrderLines(ctx context.Context, orderID string) ([]Line, error)
	// UpdateStatusIfPending moves a pending order to status and reports whether a row changed.
	// paidAt is written only when status is StatusPaid.
	UpdateStatusIfPending(ctx context.Context, orderID string, status Status, at time.Time) (bool, error)
	SetGatewayCheckoutID(ctx context.Context, orderID, checkoutID string) error
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// GrantRepository inserts ownership grants with insert-or-ignore semantics on (user, item).
type GrantRepository interface {
	InsertGrantIfAbsent(ctx context.Context, g Grant) (bool, error)
}
