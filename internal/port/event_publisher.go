package port

import (
	"context"

	"github.com/rl1809/shop-seckill/internal/core/domain"
)

type OrderEventPublisher interface {
	Publish(ctx context.Context, events ...domain.OrderEvent) error
	Close() error
}
