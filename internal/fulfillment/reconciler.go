package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/domain/order"
	"go.uber.org/zap"
)

var ErrMalformedPayload = errors.New("malformed webhook payload")

// Outcome is what a delivery did. Every outcome is acknowledged to the gateway.
type Outcome string

const (
	OutcomePaid      Outcome = "paid"
	OutcomeFailed    Outcome = "failed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeNotOurs   Outcome = "not_ours"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeConflict  Outcome = "conflict"
)

var (
	paidStatuses   = map[string]bool{"succeeded": true, "successful": true, "paid": true, "completed": true}
	failedStatuses = map[string]bool{"failed": true, "cancelled": true, "canceled": true}
)

// Ledger is the slice of the order ledger the reconciler drives.
type Ledger interface {
	Get(ctx context.Context, orderID string) (*order.Order, error)
	MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, orderID string) (bool, error)
}

type CartClearer interface {
	ClearCart(ctx context.Context, userID string) error
}

// Publisher emits fulfillment events after state changes.
type Publisher interface {
	Publish(ctx context.Context, events ...order.Envelope) error
}

// DeliveryLog remembers webhook deliveries that were fully reconciled. It is advisory:
// the store's conditional updates and unique keys stay the source of truth.
type DeliveryLog interface {
	Seen(ctx context.Context, deliveryID string) (bool, error)
	MarkProcessed(ctx context.Context, deliveryID string) error
}

type Option func(*Reconciler)

func WithPublisher(p Publisher) Option {
	return func(r *Reconciler) { r.publisher = p }
}

func WithDeliveryLog(l DeliveryLog) Option {
	return func(r *Reconciler) { r.deliveries = l }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// Reconciler applies authenticated gateway events to orders, grants and carts.
type Reconciler struct {
	ledger     Ledger
	grants     order.GrantRepository
	carts      CartClearer
	publisher  Publisher
	deliveries DeliveryLog
	logger     *zap.Logger
	now        func() time.Time
}

func NewReconciler(ledger Ledger, grants order.GrantRepository, carts CartClearer, opts ...Option) *Reconciler {
	r := &Reconciler{
		ledger: ledger,
		grants: grants,
		carts:  carts,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "reconciler"))
	return r
}

// Handle reconciles one authenticated delivery, skipping ids already recorded as done.
func (r *Reconciler) Handle(ctx context.Context, deliveryID string, body []byte) (Outcome, error) {
	if r.deliveries != nil && deliveryID != "" {
		seen, err := r.deliveries.Seen(ctx, deliveryID)
		if err != nil {
			r.logger.Warn("delivery log lookup failed", zap.String("delivery_id", deliveryID), zap.Error(err))
		} else if seen {
			r.logger.Info("delivery already processed", zap.String("delivery_id", deliveryID))
			return OutcomeDuplicate, nil
		}
	}

	outcome, err := r.Reconcile(ctx, body)
	if err != nil {
		return outcome, err
	}

	if r.deliveries != nil && deliveryID != "" {
		if err := r.deliveries.MarkProcessed(ctx, deliveryID); err != nil {
			r.logger.Warn("failed to record processed delivery", zap.String("delivery_id", deliveryID), zap.Error(err))
		}
	}
	r.logger.Info("delivery reconciled",
		zap.String("delivery_id", deliveryID),
		zap.String("outcome", string(outcome)))
	return outcome, nil
}

// Reconcile maps one event onto the ledger. Safe to call any number of times with the
// same body, concurrently.
func (r *Reconciler) Reconcile(ctx context.Context, body []byte) (Outcome, error) {
	ev, err := ParseEvent(body)
	if err != nil {
		return "", err
	}

	if !ev.Ours() {
		r.logger.Info("event carries no order correlation; acknowledging",
			zap.String("type", ev.Type), zap.String("status", ev.Status))
		return OutcomeNotOurs, nil
	}

	log := r.logger.With(
		zap.String("order_id", ev.OrderID),
		zap.String("user_id", ev.UserID),
		zap.String("status", ev.Status))

	switch {
	case paidStatuses[ev.Status]:
		return r.applyPaid(ctx, ev, log)
	case failedStatuses[ev.Status]:
		return r.applyFailed(ctx, ev, log)
	default:
		log.Info("status needs no action")
		return OutcomeIgnored, nil
	}
}

// loadOwned returns the order named by ev, or an outcome when it must be left alone.
func (r *Reconciler) loadOwned(ctx context.Context, ev Event, log *zap.Logger) (*order.Order, Outcome, error) {
	o, err := r.ledger.Get(ctx, ev.OrderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			log.Warn("event references unknown order")
			return nil, OutcomeNotOurs, nil
		}
		return nil, "", fmt.Errorf("load order %s: %w", ev.OrderID, err)
	}
	if o.UserID != ev.UserID {
		log.Warn("event user does not own order", zap.String("owner_id", o.UserID))
		return nil, OutcomeIgnored, nil
	}
	return o, "", nil
}

func (r *Reconciler) applyPaid(ctx context.Context, ev Event, log *zap.Logger) (Outcome, error) {
	o, skip, err := r.loadOwned(ctx, ev, log)
	if o == nil {
		return skip, err
	}

	paidAt := r.now().UTC()
	changed, err := r.ledger.MarkPaid(ctx, o.ID, paidAt)
	if err != nil {
		if errors.Is(err, order.ErrInvalidTransition) {
			log.Error("payment confirmed for an order that already failed")
			r.reportConflict(ctx, log, o, ev)
			return OutcomeConflict, nil
		}
		return "", err
	}

	// grants run on every paid delivery so a retry repairs a partially granted order
	var granted []order.Grant
	for _, line := range o.Lines {
		g := order.Grant{UserID: o.UserID, ItemID: line.ItemID, OrderID: o.ID, GrantedAt: paidAt}
		inserted, err := r.grants.InsertGrantIfAbsent(ctx, g)
		if err != nil {
			return "", fmt.Errorf("grant %s to %s: %w", line.ItemID, o.UserID, err)
		}
		if inserted {
			granted = append(granted, g)
		}
	}

	// a replay must not wipe a cart the user has started since
	if changed || len(granted) > 0 {
		if err := r.carts.ClearCart(ctx, o.UserID); err != nil {
			log.Warn("failed to clear cart after payment", zap.Error(err))
		}
	}

	if changed {
		o.Status = order.StatusPaid
		o.PaidAt = &paidAt
	}
	r.publish(ctx, log, o, changed, granted)

	if !changed && len(granted) == 0 {
		return OutcomeDuplicate, nil
	}
	log.Info("order fulfilled", zap.Bool("status_changed", changed), zap.Int("grants", len(granted)))
	return OutcomePaid, nil
}

func (r *Reconciler) applyFailed(ctx context.Context, ev Event, log *zap.Logger) (Outcome, error) {
	o, skip, err := r.loadOwned(ctx, ev, log)
	if o == nil {
		return skip, err
	}

	changed, err := r.ledger.MarkFailed(ctx, o.ID)
	if err != nil {
		if errors.Is(err, order.ErrInvalidTransition) {
			log.Warn("failure reported for an order that is already paid")
			return OutcomeConflict, nil
		}
		return "", err
	}
	if !changed {
		return OutcomeDuplicate, nil
	}

	failed, err := order.NewEnvelope(order.EventOrderFailed, o.ID, order.OrderFailed{
		OrderID:  o.ID,
		UserID:   o.UserID,
		Status:   ev.Status,
		FailedAt: r.now().UTC(),
	})
	if err == nil {
		r.send(ctx, log, failed)
	}
	log.Info("order marked failed")
	return OutcomeFailed, nil
}

func (r *Reconciler) publish(ctx context.Context, log *zap.Logger, o *order.Order, changed bool, granted []order.Grant) {
	if r.publisher == nil {
		return
	}
	var events []order.Envelope
	if changed {
		paid := order.OrderPaid{
			OrderID:       o.ID,
			UserID:        o.UserID,
			CustomerEmail: o.CustomerEmail,
			Currency:      o.Currency,
			AmountCents:   o.AmountCents,
			Lines:         o.Lines,
		}
		if o.PaidAt != nil {
			paid.PaidAt = *o.PaidAt
		}
		if env, err := order.NewEnvelope(order.EventOrderPaid, o.ID, paid); err == nil {
			events = append(events, env)
		}
	}
	for _, g := range granted {
		env, err := order.NewEnvelope(order.EventPurchaseGranted, o.ID, order.PurchaseGranted{
			UserID:  g.UserID,
			ItemID:  g.ItemID,
			OrderID: g.OrderID,
		})
		if err == nil {
			events = append(events, env)
		}
	}
	r.send(ctx, log, events...)
}

func (r *Reconciler) reportConflict(ctx context.Context, log *zap.Logger, o *order.Order, ev Event) {
	env, err := order.NewEnvelope(order.EventPaymentConflict, o.ID, order.PaymentConflict{
		OrderID:       o.ID,
		UserID:        o.UserID,
		CustomerEmail: o.CustomerEmail,
		Currency:      o.Currency,
		AmountCents:   o.AmountCents,
		CurrentStatus: order.StatusFailed,
		GatewayStatus: ev.Status,
		DetectedAt:    r.now().UTC(),
	})
	if err == nil {
		r.send(ctx, log, env)
	}
}

// send publishes best-effort; the state change has already happened.
func (r *Reconciler) send(ctx context.Context, log *zap.Logger, events ...order.Envelope) {
	if r.publisher == nil || len(events) == 0 {
		return
	}
	if err := r.publisher.Publish(ctx, events...); err != nil {
		log.Warn("failed to publish fulfillment events", zap.Int("events", len(events)), zap.Error(err))
	}
}
