package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/app"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/config"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/infrastructure/lambdaproxy"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/logging"
	"go.uber.org/zap"
)

// Cold start builds the app once; warm invocations reuse the store pool.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Lambda API] Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("[Lambda API] Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	// Migrations belong to the deploy step, not to every cold start.
	cfg.AutoMigrate = false

	storefront, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer storefront.Close()

	logger.Info("lambda initialized", zap.String("delivery_log", cfg.DeliveryLog))
	lambda.Start(lambdaproxy.Handler(storefront.Router))
}
