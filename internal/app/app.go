// Package app assembles the storefront components from configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/api"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/auth"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/checkout"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/config"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/domain/cart"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/domain/order"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/fulfillment"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/infrastructure/delivery"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/infrastructure/kafka"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/infrastructure/store"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/payment"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/payment/webhook"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds the wired HTTP surface and everything that must be closed with it.
type App struct {
	Router http.Handler
	Ledger *order.Ledger

	closers []func() error
}

// Build connects to the store and wires every component. On error nothing is left open.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	db, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)

	if cfg.AutoMigrate {
		if err := store.RunMigrations(db); err != nil {
			return nil, err
		}
	}

	pg := store.NewPostgresStore(db, cfg.StoreTimeout)
	a.Ledger = order.NewLedger(pg, logger)

	verifier := NewVerifier(cfg, logger)

	gateway := payment.NewHTTPGateway(payment.HTTPGatewayConfig{
		BaseURL:   cfg.GatewayBaseURL,
		SecretKey: cfg.GatewaySecretKey,
		Timeout:   cfg.GatewayTimeout,
	}, logger)

	checkoutSvc := checkout.NewService(
		cart.NewSnapshotReader(pg, cfg.MinUnitPriceCents, logger),
		a.Ledger,
		gateway,
		checkout.Config{
			Currency:       cfg.Currency,
			SiteURL:        cfg.SiteURL,
			GatewayTimeout: cfg.GatewayTimeout,
		},
		logger,
	)

	authn, err := webhook.NewAuthenticator(cfg.WebhookSecret, cfg.WebhookReplayWindow)
	if err != nil {
		return nil, fmt.Errorf("webhook secret: %w", err)
	}

	opts := []fulfillment.Option{fulfillment.WithLogger(logger)}
	deliveries, err := a.deliveryLog(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if deliveries != nil {
		opts = append(opts, fulfillment.WithDeliveryLog(deliveries))
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		a.closers = append(a.closers, producer.Close)
		opts = append(opts, fulfillment.WithPublisher(producer))
	}
	reconciler := fulfillment.NewReconciler(a.Ledger, pg, pg, opts...)

	logger.Info("storefront wired",
		zap.String("delivery_log", cfg.DeliveryLog),
		zap.Bool("events_enabled", len(cfg.KafkaBrokers) > 0),
		zap.Bool("remote_identity", cfg.IdentityURL != ""))

	a.Router = api.NewRouter(api.RouterConfig{
		Handlers:       api.NewHandlers(checkoutSvc, authn, reconciler, a.Ledger, pg, logger),
		Verifier:       verifier,
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
	})
	ok = true
	return a, nil
}

// NewVerifier picks the identity service when one is configured, else local JWT validation.
func NewVerifier(cfg *config.Config, logger *zap.Logger) auth.Verifier {
	if cfg.IdentityURL != "" {
		return auth.NewRemoteVerifier(cfg.IdentityURL, cfg.IdentityAPIKey, cfg.IdentityTimeout, logger)
	}
	return auth.NewJWTVerifier(cfg.JWTSecret, 0)
}

func (a *App) deliveryLog(ctx context.Context, cfg *config.Config) (fulfillment.DeliveryLog, error) {
	switch cfg.DeliveryLog {
	case config.DeliveryLogRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, client.Close)
		return delivery.NewRedisLog(client, cfg.DeliveryRetention), nil

	case config.DeliveryLogDynamoDB:
		client, err := NewDynamoClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return delivery.NewDynamoLog(client, cfg.DynamoDBTable, cfg.DeliveryRetention), nil

	default:
		return nil, nil
	}
}

// NewDynamoClient loads AWS credentials from the environment. DYNAMODB_ENDPOINT points at DynamoDB Local.
func NewDynamoClient(ctx context.Context, cfg *config.Config) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	}), nil
}

// Connect opens the store without wiring the HTTP surface, for one-off commands.
func Connect(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return store.ConnectPostgres(ctx, cfg.DatabaseURL)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
