package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rl1809/shop-seckill/internal/core/domain"
)

var errRedisDown = fmt.Errorf("read session: %w: %w", domain.ErrInfrastructure, errors.New("dial tcp: connection refused"))

type fakeShops struct {
	mu      sync.Mutex
	shops   map[int64]domain.Shop
	updated []domain.Shop
}

func (f *fakeShops) Get(ctx context.Context, id int64) (*domain.Shop, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.shops[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (f *fakeShops) Create(ctx context.Context, shop domain.Shop) (int64, error) {
	if shop.Name == "" {
		return 0, domain.ErrInvalidArgument
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	shop.ID = int64(len(f.shops) + 1)
	f.shops[shop.ID] = shop
	return shop.ID, nil
}

func (f *fakeShops) Update(ctx context.Context, shop domain.Shop) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.shops[shop.ID]; !ok {
		return domain.ErrNotFound
	}
	f.shops[shop.ID] = shop
	f.updated = append(f.updated, shop)
	return nil
}

type fakeShopTypes []domain.ShopType

func (f fakeShopTypes) List(context.Context) ([]domain.ShopType, error) {
	return f, nil
}

type fakeVouchers struct {
	added map[int64]int
}

func (f *fakeVouchers) AddSeckillVoucher(ctx context.Context, v domain.SeckillVoucher, stock int) error {
	if _, ok := f.added[v.VoucherID]; ok {
		return domain.ErrAlreadyExists
	}
	f.added[v.VoucherID] = stock
	return nil
}

type fakeOrders struct {
	mu     sync.Mutex
	err    error
	nextID int64
	users  []int64
}

func (f *fakeOrders) Seckill(ctx context.Context, voucherID, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.users = append(f.users, userID)
	if f.err != nil {
		return 0, f.err
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeOrders) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// fakeSessions knows the tokens in its map. The token "down" simulates an
// unreachable session store.
type fakeSessions map[string]domain.User

func (f fakeSessions) Authenticate(ctx context.Context, token string) (domain.User, error) {
	if token == "down" {
		return domain.User{}, errRedisDown
	}
	u, ok := f[token]
	if !ok {
		return domain.User{}, domain.ErrUnauthorized
	}
	return u, nil
}

type fixture struct {
	shops    *fakeShops
	vouchers *fakeVouchers
	orders   *fakeOrders
	sessions fakeSessions
}

func newFixture() *fixture {
	return &fixture{
		shops: &fakeShops{shops: map[int64]domain.Shop{
			1: {ID: 1, Name: "tea house", Area: "west lake"},
		}},
		vouchers: &fakeVouchers{added: make(map[int64]int)},
		orders:   &fakeOrders{},
		sessions: fakeSessions{"token-42": {ID: 42, NickName: "user_42"}},
	}
}
