package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/api/middleware"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/checkout"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/domain/cart"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/domain/order"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/fulfillment"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/payment"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/payment/webhook"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type CheckoutInitiator interface {
	Initiate(ctx context.Context, c checkout.Customer) (*checkout.Result, error)
}

type WebhookAuthenticator interface {
	Verify(h http.Header, body []byte) (*webhook.Delivery, error)
}

type WebhookHandler interface {
	Handle(ctx context.Context, deliveryID string, body []byte) (fulfillment.Outcome, error)
}

type OrderReader interface {
	Get(ctx context.Context, orderID string) (*order.Order, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	checkout   CheckoutInitiator
	webhooks   WebhookAuthenticator
	reconciler WebhookHandler
	orders     OrderReader
	health     Pinger
	logger     *zap.Logger
}

func NewHandlers(co CheckoutInitiator, authn WebhookAuthenticator, rec WebhookHandler, orders OrderReader, health Pinger, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		checkout:   co,
		webhooks:   authn,
		reconciler: rec,
		orders:     orders,
		health:     health,
		logger:     logger.With(zap.String("component", "api")),
	}
}

// Checkout Handlers

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	result, err := h.checkout.Initiate(r.Context(), checkout.Customer{
		UserID: identity.UserID,
		Email:  identity.Email,
	})
	if err != nil {
		h.checkoutError(w, identity.UserID, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *Handlers) checkoutError(w http.ResponseWriter, userID string, err error) {
	switch {
	case errors.Is(err, cart.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "Cart is empty", "")
	case errors.Is(err, cart.ErrInvalidPrice):
		respondError(w, http.StatusBadRequest, "Invalid price detected", "")
	case errors.Is(err, checkout.ErrPaymentInitiation):
		h.logger.Error("payment initiation failed", zap.String("user_id", userID), zap.Error(err))
		details := ""
		var gwErr *payment.GatewayError
		if errors.As(err, &gwErr) {
			details = gwErr.Message
		}
		respondError(w, http.StatusInternalServerError, "Failed to initiate payment", details)
	default:
		h.logger.Error("checkout failed", zap.String("user_id", userID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to create order", "")
	}
}

// Order Handlers

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			respondError(w, http.StatusNotFound, "Order not found", "")
			return
		}
		h.logger.Error("failed to load order", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to load order", "")
		return
	}
	// other users' orders are indistinguishable from missing ones
	if o.UserID != userID {
		respondError(w, http.StatusNotFound, "Order not found", "")
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Webhook Handlers

// PaymentWebhook authenticates and reconciles a gateway delivery. Only the status code
// matters to the gateway; any 2xx stops its retries.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respondText(w, http.StatusBadRequest, "unreadable body")
		return
	}

	delivery, err := h.webhooks.Verify(r.Header, body)
	if err != nil {
		h.logger.Warn("webhook rejected",
			zap.String("delivery_id", r.Header.Get(webhook.HeaderID)),
			zap.Error(err))
		respondText(w, http.StatusForbidden, "forbidden")
		return
	}

	outcome, err := h.reconciler.Handle(r.Context(), delivery.ID, body)
	if err != nil {
		if errors.Is(err, fulfillment.ErrMalformedPayload) {
			respondText(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		h.logger.Error("webhook reconciliation failed",
			zap.String("delivery_id", delivery.ID), zap.Error(err))
		respondText(w, http.StatusInternalServerError, "temporary failure")
		return
	}

	respondText(w, http.StatusOK, "ok: "+string(outcome))
}

// Health

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func respondError(w http.ResponseWriter, status int, message, details string) {
	respondJSON(w, status, errorBody{Error: message, Details: details})
}

func respondText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text)
}
