package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
)

// VoucherOrder is created once per (VoucherID, UserID) and never updated.
type VoucherOrder struct {
	ID        int64
	UserID    int64
	VoucherID int64
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderEvent is published after an order has been persisted.
type OrderEvent struct {
	OrderID   int64     `json:"order_id"`
	VoucherID int64     `json:"voucher_id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func NewOrderEvent(order VoucherOrder) OrderEvent {
	return OrderEvent{
		OrderID:   order.ID,
		VoucherID: order.VoucherID,
		UserID:    order.UserID,
		CreatedAt: order.CreatedAt,
	}
}
