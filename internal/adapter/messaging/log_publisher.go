package messaging

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rl1809/shop-seckill/internal/core/domain"
)

// LogPublisher stands in for Kafka when no brokers are configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, events ...domain.OrderEvent) error {
	for _, e := range events {
		p.logger.Info().
			Int64("order_id", e.OrderID).
			Int64("voucher_id", e.VoucherID).
			Int64("user_id", e.UserID).
			Time("created_at", e.CreatedAt).
			Msg("order event")
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }
