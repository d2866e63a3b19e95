package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/domain/order"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/payment"
	"go.uber.org/zap"
)

var ErrPaymentInitiation = errors.New("failed to initiate payment")

const failOrderTimeout = 5 * time.Second

// CartReader yields the priced snapshot of a user's cart.
type CartReader interface {
	Read(ctx context.Context, userID string) ([]order.Line, error)
}

// Ledger is what checkout needs from the order ledger.
type Ledger interface {
	CreatePending(ctx context.Context, in order.NewOrder) (*order.Order, error)
	MarkFailed(ctx context.Context, orderID string) (bool, error)
	AttachGatewayReference(ctx context.Context, orderID, checkoutID string)
}

type Config struct {
	Currency string
	// SiteURL is the storefront origin the gateway redirects back to.
	SiteURL        string
	GatewayTimeout time.Duration
}

// Customer is the verified buyer.
type Customer struct {
	UserID string
	Email  string
}

type Result struct {
	OrderID           string `json:"orderId"`
	RedirectURL       string `json:"redirectUrl"`
	GatewayCheckoutID string `json:"-"`
}

// Service turns a cart into a pending order and a hosted gateway checkout.
type Service struct {
	carts   CartReader
	ledger  Ledger
	gateway payment.Gateway
	cfg     Config
	logger  *zap.Logger
}

func NewService(carts CartReader, ledger Ledger, gateway payment.Gateway, cfg Config, logger *zap.Logger) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "ZAR"
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 15 * time.Second
	}
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		carts:   carts,
		ledger:  ledger,
		gateway: gateway,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "checkout")),
	}
}

// Initiate runs one checkout. Each call creates a fresh order; a failed gateway call
// leaves that order failed, never pending.
func (s *Service) Initiate(ctx context.Context, c Customer) (*Result, error) {
	lines, err := s.carts.Read(ctx, c.UserID)
	if err != nil {
		return nil, err
	}

	o, err := s.ledger.CreatePending(ctx, order.NewOrder{
		UserID:        c.UserID,
		CustomerEmail: c.Email,
		Currency:      s.cfg.Currency,
		Lines:         lines,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	session, err := s.gateway.CreateCheckout(gctx, payment.CheckoutRequest{
		AmountCents: o.AmountCents,
		Currency:    o.Currency,
		Description: describe(o),
		SuccessURL:  s.redirect("success", o.ID),
		CancelURL:   s.redirect("cancel", o.ID),
		FailureURL:  s.redirect("failure", o.ID),
		Metadata: map[string]string{
			payment.MetadataOrderID: o.ID,
			payment.MetadataUserID:  o.UserID,
		},
	})
	if err != nil {
		s.failOrder(ctx, o.ID, err)
		return nil, fmt.Errorf("%w: %w", ErrPaymentInitiation, err)
	}

	s.ledger.AttachGatewayReference(ctx, o.ID, session.ID)

	s.logger.Info("checkout initiated",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.String("gateway_checkout_id", session.ID),
		zap.Int64("amount_cents", o.AmountCents))

	return &Result{
		OrderID:           o.ID,
		RedirectURL:       session.RedirectURL,
		GatewayCheckoutID: session.ID,
	}, nil
}

// failOrder must complete even when the request context is already done.
func (s *Service) failOrder(ctx context.Context, orderID string, cause error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failOrderTimeout)
	defer cancel()

	if _, err := s.ledger.MarkFailed(fctx, orderID); err != nil {
		s.logger.Error("failed to mark order failed after gateway error",
			zap.String("order_id", orderID),
			zap.NamedError("gateway_error", cause),
			zap.Error(err))
		return
	}
	s.logger.Warn("gateway initiation failed; order marked failed",
		zap.String("order_id", orderID),
		zap.Error(cause))
}

func (s *Service) redirect(outcome, orderID string) string {
	return s.cfg.SiteURL + "/checkout/" + outcome + "?orderId=" + url.QueryEscape(orderID)
}

func describe(o *order.Order) string {
	if len(o.Lines) == 1 {
		return o.Lines[0].Title
	}
	return fmt.Sprintf("%d items", len(o.Lines))
}
