package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/auth"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/config"
	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/infrastructure/delivery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewVerifier(t *testing.T) {
	cfg := &config.Config{JWTSecret: "test-secret-key-at-least-32-bytes!"}
	assert.IsType(t, &auth.JWTVerifier{}, NewVerifier(cfg, zap.NewNop()))

	cfg.IdentityURL = "https://auth.example.com/auth/v1"
	cfg.IdentityTimeout = time.Second
	assert.IsType(t, &auth.RemoteVerifier{}, NewVerifier(cfg, zap.NewNop()))
}

func TestDeliveryLog_Selection(t *testing.T) {
	mr := miniredis.RunT(t)

	t.Run("none", func(t *testing.T) {
		a := &App{}
		log, err := a.deliveryLog(context.Background(), &config.Config{DeliveryLog: config.DeliveryLogNone})
		require.NoError(t, err)
		assert.Nil(t, log)
		assert.Empty(t, a.closers)
	})

	t.Run("redis", func(t *testing.T) {
		a := &App{}
		log, err := a.deliveryLog(context.Background(), &config.Config{
			DeliveryLog: config.DeliveryLogRedis,
			RedisURL:    "redis://" + mr.Addr() + "/0",
		})
		require.NoError(t, err)
		require.IsType(t, &delivery.RedisLog{}, log)

		require.NoError(t, log.MarkProcessed(context.Background(), "msg_1"))
		assert.True(t, mr.Exists("webhook:delivery:msg_1"))

		require.Len(t, a.closers, 1)
		assert.NoError(t, a.Close())
	})

	t.Run("bad redis url", func(t *testing.T) {
		a := &App{}
		_, err := a.deliveryLog(context.Background(), &config.Config{
			DeliveryLog: config.DeliveryLogRedis,
			RedisURL:    "http://not-redis",
		})
		assert.Error(t, err)
	})

	t.Run("dynamodb", func(t *testing.T) {
		t.Setenv("AWS_ACCESS_KEY_ID", "test")
		t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
		a := &App{}
		log, err := a.deliveryLog(context.Background(), &config.Config{
			DeliveryLog:      config.DeliveryLogDynamoDB,
			DynamoDBTable:    "webhook-deliveries",
			DynamoDBEndpoint: "http://localhost:8000",
			AWSRegion:        "af-south-1",
		})
		require.NoError(t, err)
		assert.IsType(t, &delivery.DynamoLog{}, log)
	})
}

func TestClose_ReverseOrder(t *testing.T) {
	var order []int
	a := &App{closers: []func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return nil },
	}}

	require.NoError(t, a.Close())
	assert.Equal(t, []int{2, 1}, order)
	assert.NoError(t, a.Close())
}
