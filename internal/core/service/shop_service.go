package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/shop-seckill/internal/core/domain"
	"github.com/rl1809/shop-seckill/internal/port"
)

type ShopService struct {
	repo  port.ShopRepository
	shops *CacheAside[domain.Shop]
}

func NewShopService(repo port.ShopRepository, cache port.CacheRepository, locker port.Locker, policy CachePolicy) *ShopService {
	return &ShopService{
		repo:  repo,
		shops: NewCacheAside[domain.Shop]("shop", cache, locker, repo.GetShop, domain.Shop.Fields, domain.ShopFromFields, policy),
	}
}

func (s *ShopService) Get(ctx context.Context, id int64) (*domain.Shop, error) {
	if id <= 0 {
		return nil, fmt.Errorf("shop id %d: %w", id, domain.ErrInvalidArgument)
	}
	return s.shops.Get(ctx, id)
}

// Create stores a new shop. Any null marker left for the new id by earlier
// lookups is dropped.
func (s *ShopService) Create(ctx context.Context, shop domain.Shop) (int64, error) {
	if shop.Name == "" {
		return 0, fmt.Errorf("shop name: %w", domain.ErrInvalidArgument)
	}

	id, err := s.repo.CreateShop(ctx, shop)
	if err != nil {
		return 0, infraError("create shop", err)
	}
	if err := s.shops.Invalidate(ctx, id); err != nil {
		return 0, err
	}
	return id, nil
}

// Update writes the store first and then deletes the cache entry, so the
// next read reloads the new version.
func (s *ShopService) Update(ctx context.Context, shop domain.Shop) error {
	if shop.ID <= 0 {
		return fmt.Errorf("shop id %d: %w", shop.ID, domain.ErrInvalidArgument)
	}

	if err := s.repo.UpdateShop(ctx, shop); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return infraError("update shop", err)
	}
	return s.shops.Invalidate(ctx, shop.ID)
}
