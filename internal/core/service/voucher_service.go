package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/shop-seckill/internal/core/domain"
	"github.com/rl1809/shop-seckill/internal/port"
)

type VoucherService struct {
	repo     port.VoucherRepository
	vouchers *CacheAside[domain.SeckillVoucher]
}

func NewVoucherService(repo port.VoucherRepository, cache port.CacheRepository, locker port.Locker, policy CachePolicy) *VoucherService {
	return &VoucherService{
		repo: repo,
		vouchers: NewCacheAside[domain.SeckillVoucher]("voucher", cache, locker, repo.GetSeckillVoucher,
			domain.SeckillVoucher.Fields, domain.SeckillVoucherFromFields, policy),
	}
}

// Get returns cached voucher metadata or domain.ErrNotFound.
func (s *VoucherService) Get(ctx context.Context, voucherID int64) (*domain.SeckillVoucher, error) {
	return s.vouchers.Get(ctx, voucherID)
}

func (s *VoucherService) AddSeckillVoucher(ctx context.Context, v domain.SeckillVoucher, stock int) error {
	switch {
	case v.VoucherID <= 0:
		return fmt.Errorf("voucher id %d: %w", v.VoucherID, domain.ErrInvalidArgument)
	case stock < 0:
		return fmt.Errorf("stock %d: %w", stock, domain.ErrInvalidArgument)
	case !v.BeginTime.IsZero() && !v.EndTime.IsZero() && !v.EndTime.After(v.BeginTime):
		return fmt.Errorf("sale window ends before it begins: %w", domain.ErrInvalidArgument)
	}

	if err := s.repo.CreateSeckillVoucher(ctx, v, stock); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return err
		}
		return infraError("create voucher", err)
	}
	return s.vouchers.Invalidate(ctx, v.VoucherID)
}
