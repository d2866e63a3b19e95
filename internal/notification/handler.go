package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/domain/order"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/email"
	"go.uber.org/zap"
)

type ReceiptSender interface {
	SendPurchaseReceipt(to string, r email.Receipt) error
}

// Handler processes fulfillment events for sending notifications
type Handler struct {
	sender ReceiptSender
	logger *zap.Logger
}

func NewHandler(sender ReceiptSender, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sender: sender,
		logger: logger.With(zap.String("component", "notifier")),
	}
}

// HandleEvent processes one envelope from the event topic
func (h *Handler) HandleEvent(ctx context.Context, e order.Envelope) error {
	// Only order.paid produces mail
	if e.Type != order.EventOrderPaid {
		return nil
	}

	var paid order.OrderPaid
	if err := json.Unmarshal(e.Data, &paid); err != nil {
		return fmt.Errorf("failed to unmarshal %s event %s: %w", e.Type, e.ID, err)
	}
	return h.handleOrderPaid(paid)
}

func (h *Handler) handleOrderPaid(e order.OrderPaid) error {
	log := h.logger.With(zap.String("order_id", e.OrderID), zap.String("user_id", e.UserID))

	if e.CustomerEmail == "" {
		log.Info("no customer email on order, skipping receipt")
		return nil
	}

	items := make([]email.ReceiptItem, len(e.Lines))
	for i, line := range e.Lines {
		items[i] = email.ReceiptItem{
			ItemID:         line.ItemID,
			Title:          line.Title,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
		}
	}

	receipt := email.Receipt{
		OrderID:    e.OrderID,
		Currency:   e.Currency,
		TotalCents: e.AmountCents,
		Items:      items,
	}
	if err := h.sender.SendPurchaseReceipt(e.CustomerEmail, receipt); err != nil {
		return fmt.Errorf("send receipt for order %s: %w", e.OrderID, err)
	}

	log.Info("purchase receipt sent")
	return nil
}
