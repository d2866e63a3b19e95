package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/digitalSolutionsSA/bliximstraat-sub000/internal/domain/order"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type EnvelopeHandler func(ctx context.Context, e order.Envelope) error

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader messageReader
	logger *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(reader, logger)
}

func newConsumer(r messageReader, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{reader: r, logger: logger.With(zap.String("component", "kafka-consumer"))}
}

// Consume decodes each message into an envelope and hands it to handler until
// ctx is cancelled. Undecodable messages and handler errors are logged and skipped.
func (c *Consumer) Consume(ctx context.Context, handler EnvelopeHandler) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Warn("error reading message", zap.Error(err))
			continue
		}

		var e order.Envelope
		if err := json.Unmarshal(msg.Value, &e); err != nil {
			c.logger.Warn("skipping undecodable message",
				zap.Int64("offset", msg.Offset), zap.Error(err))
			continue
		}

		if err := handler(ctx, e); err != nil {
			c.logger.Error("error handling event",
				zap.String("event_id", e.ID), zap.String("type", e.Type), zap.Error(err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
