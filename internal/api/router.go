package api

import (
	"net/http"
	"time"

	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/api/middleware"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/auth"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Handlers       *Handlers
	Verifier       auth.Verifier
	Logger         *zap.Logger
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	h := cfg.Handlers

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.RequestTimeout))

	r.Get("/healthz", h.Health)

	// The gateway authenticates with a signature, not a bearer token.
	r.Post("/webhooks/payments", h.PaymentWebhook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(cfg.Verifier, cfg.Logger))
		r.Post("/checkout", h.Checkout)
		r.Get("/orders/{orderID}", h.GetOrder)
	})

	return r
}
