package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/shop-seckill/internal/core/domain"
	"github.com/rl1809/shop-seckill/internal/port"
)

// VoucherCatalog resolves voucher metadata, returning domain.ErrNotFound for
// unknown vouchers.
type VoucherCatalog interface {
	Get(ctx context.Context, voucherID int64) (*domain.SeckillVoucher, error)
}

// OrderService places flash-sale orders.
//
// The per (voucher, user) lock serialises attempts by the same user so the
// duplicate check is reliable; the compare-and-set on stock is what stops
// different users from overselling.
type OrderService struct {
	vouchers   VoucherCatalog
	ledger     port.StockLedger
	orders     port.OrderRepository
	locker     port.Locker
	orderQueue chan domain.OrderEvent
	now        func() time.Time

	mu     sync.RWMutex
	closed bool
}

func NewOrderService(vouchers VoucherCatalog, ledger port.StockLedger, orders port.OrderRepository, locker port.Locker, queueSize int) *OrderService {
	return &OrderService{
		vouchers:   vouchers,
		ledger:     ledger,
		orders:     orders,
		locker:     locker,
		orderQueue: make(chan domain.OrderEvent, queueSize),
		now:        time.Now,
	}
}

// Seckill buys one unit of voucherID for userID and returns the order id.
func (s *OrderService) Seckill(ctx context.Context, voucherID, userID int64) (int64, error) {
	if voucherID <= 0 || userID <= 0 {
		return 0, fmt.Errorf("voucher %d user %d: %w", voucherID, userID, domain.ErrInvalidArgument)
	}

	voucher, err := s.vouchers.Get(ctx, voucherID)
	if err != nil {
		return 0, fmt.Errorf("load voucher %d: %w", voucherID, err)
	}
	if err := voucher.CheckWindow(s.now()); err != nil {
		return 0, err
	}

	observed, found, err := s.ledger.GetStock(ctx, voucherID)
	if err != nil {
		return 0, infraError("read stock", err)
	}
	if !found {
		return 0, fmt.Errorf("stock of voucher %d: %w", voucherID, domain.ErrNotFound)
	}
	if observed <= 0 {
		return 0, domain.ErrOutOfStock
	}

	if err := s.checkDuplicate(ctx, voucherID, userID); err != nil {
		return 0, err
	}

	resource := strconv.FormatInt(voucherID, 10) + ":" + strconv.FormatInt(userID, 10)
	owner := strconv.FormatInt(userID, 10) + ":" + uuid.NewString()

	locked, err := s.locker.Acquire(ctx, resource, owner)
	if err != nil {
		return 0, infraError("acquire order lock", err)
	}
	if !locked {
		return 0, domain.ErrContention
	}
	defer s.release(ctx, resource, owner)

	// A request from the same user may have finished between the first check
	// and our acquire.
	if err := s.checkDuplicate(ctx, voucherID, userID); err != nil {
		return 0, err
	}

	ok, err := s.ledger.CompareAndSetStock(ctx, voucherID, observed, observed-1)
	if err != nil {
		return 0, infraError("decrement stock", err)
	}
	if !ok {
		return 0, domain.ErrOversold
	}

	now := s.now()
	order := domain.VoucherOrder{
		UserID:    userID,
		VoucherID: voucherID,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	order.ID, err = s.orders.CreateOrder(ctx, order)
	if err != nil {
		s.compensate(ctx, voucherID, userID)
		if errors.Is(err, domain.ErrDuplicate) {
			return 0, err
		}
		return 0, infraError("create order", err)
	}

	log.Info().
		Int64("order_id", order.ID).
		Int64("voucher_id", voucherID).
		Int64("user_id", userID).
		Int("stock", observed-1).
		Msg("order placed")

	s.enqueue(domain.NewOrderEvent(order))
	return order.ID, nil
}

func (s *OrderService) checkDuplicate(ctx context.Context, voucherID, userID int64) error {
	existing, err := s.orders.FindOrder(ctx, voucherID, userID)
	if err != nil {
		return infraError("find order", err)
	}
	if existing != nil {
		return domain.ErrDuplicate
	}
	return nil
}

func (s *OrderService) release(ctx context.Context, resource, owner string) {
	released, err := s.locker.Release(context.WithoutCancel(ctx), resource, owner)
	if err != nil {
		log.Error().Err(err).Str("resource", resource).Msg("release order lock")
		return
	}
	if !released {
		log.Warn().Str("resource", resource).Msg("order lock expired before release")
	}
}

// compensate returns the unit taken by a decrement whose order never landed.
func (s *OrderService) compensate(ctx context.Context, voucherID, userID int64) {
	if err := s.ledger.RestoreStock(context.WithoutCancel(ctx), voucherID, 1); err != nil {
		log.Error().Err(err).
			Int64("voucher_id", voucherID).
			Int64("user_id", userID).
			Msg("CRITICAL stock rollback failed")
		return
	}
	log.Warn().Int64("voucher_id", voucherID).Int64("user_id", userID).Msg("rolled back stock")
}

func (s *OrderService) enqueue(event domain.OrderEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		log.Warn().Int64("order_id", event.OrderID).Msg("order queue closed, event dropped")
		return
	}

	select {
	case s.orderQueue <- event:
	default:
		log.Warn().Int64("order_id", event.OrderID).Msg("order event queue full, event dropped")
	}
}

func (s *OrderService) GetOrderQueue() <-chan domain.OrderEvent {
	return s.orderQueue
}

// Close stops event delivery. Orders placed afterwards are still recorded but
// their events are dropped.
func (s *OrderService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.orderQueue)
}
