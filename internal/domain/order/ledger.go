package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const compensationTimeout = 5 * time.Second

// NewOrder is the input to CreatePending.
type NewOrder struct {
	UserID        string
	CustomerEmail string
	Currency      string
	Lines         []Line
}

// Ledger owns order creation and status transitions. Every transition is a conditional
// update in the store, so concurrent webhook deliveries cannot move a terminal order.
type Ledger struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewLedger(repo Repository, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		repo:   repo,
		logger: logger.With(zap.String("component", "ledger")),
		now:    time.Now,
	}
}

// CreatePending persists a pending order with its line snapshot. If the lines cannot be
// written the order row is deleted again, so an order never exists without its lines.
func (l *Ledger) CreatePending(ctx context.Context, in NewOrder) (*Order, error) {
	if in.UserID == "" {
		return nil, errors.New("order requires a user")
	}
	if len(in.Lines) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, line := range in.Lines {
		if err := line.validate(); err != nil {
			return nil, err
		}
	}

	lines := make([]Line, len(in.Lines))
	copy(lines, in.Lines)

	o := &Order{
		ID:            uuid.New().String(),
		UserID:        in.UserID,
		CustomerEmail: in.CustomerEmail,
		Currency:      strings.ToUpper(in.Currency),
		AmountCents:   Total(lines),
		Status:        StatusPending,
		CreatedAt:     l.now().UTC(),
	}

	if err := l.repo.InsertOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	if err := l.repo.InsertOrderLines(ctx, o.ID, lines); err != nil {
		l.compensate(ctx, o.ID)
		return nil, fmt.Errorf("insert order lines: %w", err)
	}

	o.Lines = lines
	l.logger.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.Int64("amount_cents", o.AmountCents),
		zap.Int("lines", len(lines)))
	return o, nil
}

// compensate deletes a half-written order. It runs detached from ctx so a caller's
// cancelled deadline does not leave the orphan behind.
func (l *Ledger) compensate(ctx context.Context, orderID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	if err := l.repo.DeleteOrder(cctx, orderID); err != nil {
		l.logger.Error("failed to roll back order without lines",
			zap.String("order_id", orderID), zap.Error(err))
		return
	}
	l.logger.Warn("rolled back order after line insert failure", zap.String("order_id", orderID))
}

// MarkPaid moves a pending order to paid. It is a no-op when the order is already paid
// and fails with ErrInvalidTransition when the order already failed. The returned bool
// reports whether this call performed the transition.
func (l *Ledger) MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (bool, error) {
	return l.transition(ctx, orderID, StatusPaid, paidAt)
}

// MarkFailed moves a pending order to failed; idempotent when already failed.
func (l *Ledger) MarkFailed(ctx context.Context, orderID string) (bool, error) {
	return l.transition(ctx, orderID, StatusFailed, l.now())
}

func (l *Ledger) transition(ctx context.Context, orderID string, to Status, at time.Time) (bool, error) {
	changed, err := l.repo.UpdateStatusIfPending(ctx, orderID, to, at.UTC())
	if err != nil {
		return false, fmt.Errorf("update order %s to %s: %w", orderID, to, err)
	}
	if changed {
		l.logger.Info("order status changed",
			zap.String("order_id", orderID),
			zap.String("status", string(to)))
		return true, nil
	}

	current, err := l.repo.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if current.Status == to {
		return false, nil
	}
	return false, transitionError(orderID, current.Status, to)
}

// AttachGatewayReference records the gateway checkout id. Failure is logged, never returned.
func (l *Ledger) AttachGatewayReference(ctx context.Context, orderID, checkoutID string) {
	if checkoutID == "" {
		return
	}
	if err := l.repo.SetGatewayCheckoutID(ctx, orderID, checkoutID); err != nil {
		l.logger.Warn("failed to attach gateway checkout id",
			zap.String("order_id", orderID),
			zap.String("gateway_checkout_id", checkoutID),
			zap.Error(err))
	}
}

// Get loads an order together with its line snapshot.
func (l *Ledger) Get(ctx context.Context, orderID string) (*Order, error) {
	o, err := l.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	lines, err := l.repo.GetOrderLines(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load lines for order %s: %w", orderID, err)
	}
	o.Lines = lines
	return o, nil
}

// ExpireStale fails every order still pending at cutoff and returns how many moved.
func (l *Ledger) ExpireStale(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := l.repo.ListPendingBefore(ctx, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("list stale pending orders: %w", err)
	}

	expired := 0
	for _, id := range ids {
		changed, err := l.MarkFailed(ctx, id)
		if err != nil {
			// a webhook may have settled it between the list and the update
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			return expired, err
		}
		if changed {
			expired++
		}
	}
	return expired, nil
}
