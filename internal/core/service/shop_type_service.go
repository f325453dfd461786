package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rl1809/shop-seckill/internal/core/domain"
	"github.com/rl1809/shop-seckill/internal/port"
)

const shopTypeCacheKey = cacheKeyPrefix + "shop-type"

// ShopTypeService serves the shop type list from a Redis list of JSON
// documents.
type ShopTypeService struct {
	repo  port.ShopRepository
	cache port.CacheRepository
	ttl   time.Duration
}

func NewShopTypeService(repo port.ShopRepository, cache port.CacheRepository, ttl time.Duration) *ShopTypeService {
	return &ShopTypeService{repo: repo, cache: cache, ttl: ttl}
}

func (s *ShopTypeService) List(ctx context.Context) ([]domain.ShopType, error) {
	cached, err := s.cache.GetRange(ctx, shopTypeCacheKey)
	if err != nil {
		return nil, infraError("read shop types", err)
	}
	if len(cached) > 0 {
		types, err := decodeShopTypes(cached)
		if err == nil {
			return types, nil
		}
		log.Warn().Err(err).Msg("discarding undecodable shop type cache")
		if err := s.cache.Delete(ctx, shopTypeCacheKey); err != nil {
			return nil, infraError("drop shop types", err)
		}
	}

	types, err := s.repo.ListShopTypes(ctx)
	if err != nil {
		return nil, infraError("load shop types", err)
	}
	if len(types) == 0 {
		return []domain.ShopType{}, nil
	}

	docs := make([]string, 0, len(types))
	for _, t := range types {
		b, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("encode shop type %d: %w", t.ID, err)
		}
		docs = append(docs, string(b))
	}
	if err := s.cache.PutList(ctx, shopTypeCacheKey, docs, s.ttl); err != nil {
		return nil, infraError("write shop types", err)
	}
	return types, nil
}

func decodeShopTypes(docs []string) ([]domain.ShopType, error) {
	types := make([]domain.ShopType, 0, len(docs))
	for _, d := range docs {
		var t domain.ShopType
		if err := json.Unmarshal([]byte(d), &t); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}
