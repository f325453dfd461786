package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rl1809/shop-seckill/internal/core/domain"
	"github.com/rl1809/shop-seckill/internal/port"
)

const publishTimeout = 5 * time.Second

// RunEventWorker publishes order events until queue is closed. Publishing is
// best effort: the order row is already the source of truth.
func RunEventWorker(id int, queue <-chan domain.OrderEvent, publisher port.OrderEventPublisher) {
	for event := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)

		if err := publisher.Publish(ctx, event); err != nil {
			log.Error().Err(err).
				Int("worker", id).
				Int64("order_id", event.OrderID).
				Msg("failed to publish order event")
		} else {
			log.Debug().Int("worker", id).Int64("order_id", event.OrderID).Msg("published order event")
		}

		cancel()
	}
}
