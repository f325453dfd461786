package port

import (
	"context"

	"github.com/rl1809/shop-seckill/internal/core/domain"
)

// Lookups return (nil, nil) when the row does not exist.

type ShopRepository interface {
	GetShop(ctx context.Context, id int64) (*domain.Shop, error)

	// CreateShop inserts a shop and returns its generated id
	CreateShop(ctx context.Context, shop domain.Shop) (int64, error)

	// UpdateShop overwrites a shop, returns domain.ErrNotFound if it is missing
	UpdateShop(ctx context.Context, shop domain.Shop) error

	// ListShopTypes returns all shop types ordered by sort
	ListShopTypes(ctx context.Context) ([]domain.ShopType, error)
}

type VoucherRepository interface {
	GetSeckillVoucher(ctx context.Context, voucherID int64) (*domain.SeckillVoucher, error)

	// CreateSeckillVoucher inserts a voucher together with its initial stock.
	// An existing voucher id returns domain.ErrAlreadyExists.
	CreateSeckillVoucher(ctx context.Context, voucher domain.SeckillVoucher, stock int) error
}

// StockLedger owns the authoritative remaining count of each voucher.
type StockLedger interface {
	// GetStock returns the current count, found is false for unknown vouchers
	GetStock(ctx context.Context, voucherID int64) (stock int, found bool, err error)

	// CompareAndSetStock writes next only if the stored count still equals
	// expected, returns false when another writer got there first
	CompareAndSetStock(ctx context.Context, voucherID int64, expected, next int) (bool, error)

	// RestoreStock gives back quantity units after a failed order write
	RestoreStock(ctx context.Context, voucherID int64, quantity int) error
}

type OrderRepository interface {
	FindOrder(ctx context.Context, voucherID, userID int64) (*domain.VoucherOrder, error)

	// CreateOrder inserts the order and returns its id. A second order for
	// the same (voucher, user) returns domain.ErrDuplicate.
	CreateOrder(ctx context.Context, order domain.VoucherOrder) (int64, error)
}
