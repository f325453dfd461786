package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/shop-seckill/internal/adapter/storage"
	"github.com/rl1809/shop-seckill/internal/core/domain"
	"github.com/rl1809/shop-seckill/internal/port"
)

var errStoreDown = errors.New("connection refused")

// memStore is an in-memory stand-in for the MySQL adapter.
type memStore struct {
	mu         sync.Mutex
	shops      map[int64]domain.Shop
	shopTypes  []domain.ShopType
	vouchers   map[int64]domain.SeckillVoucher
	stock      map[int64]int
	orders     map[[2]int64]domain.VoucherOrder
	nextID     int64
	loadDelay  time.Duration
	createErr  error
	ledgerErr  error
	shopLoads  atomic.Int32
	typeLoads  atomic.Int32
	casCalls   atomic.Int32
	restoreCnt atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{
		shops:    make(map[int64]domain.Shop),
		vouchers: make(map[int64]domain.SeckillVoucher),
		stock:    make(map[int64]int),
		orders:   make(map[[2]int64]domain.VoucherOrder),
	}
}

func (m *memStore) GetShop(ctx context.Context, id int64) (*domain.Shop, error) {
	m.shopLoads.Add(1)
	if m.loadDelay > 0 {
		time.Sleep(m.loadDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shops[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStore) CreateShop(ctx context.Context, shop domain.Shop) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	shop.ID = m.nextID
	m.shops[shop.ID] = shop
	return shop.ID, nil
}

func (m *memStore) UpdateShop(ctx context.Context, shop domain.Shop) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.shops[shop.ID]; !ok {
		return domain.ErrNotFound
	}
	m.shops[shop.ID] = shop
	return nil
}

func (m *memStore) ListShopTypes(ctx context.Context) ([]domain.ShopType, error) {
	m.typeLoads.Add(1)
	if m.loadDelay > 0 {
		time.Sleep(m.loadDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ShopType(nil), m.shopTypes...), nil
}

func (m *memStore) GetSeckillVoucher(ctx context.Context, voucherID int64) (*domain.SeckillVoucher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.vouchers[voucherID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (m *memStore) CreateSeckillVoucher(ctx context.Context, v domain.SeckillVoucher, stock int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.vouchers[v.VoucherID]; ok {
		return domain.ErrAlreadyExists
	}
	m.vouchers[v.VoucherID] = v
	m.stock[v.VoucherID] = stock
	return nil
}

func (m *memStore) GetStock(ctx context.Context, voucherID int64) (int, bool, error) {
	if m.ledgerErr != nil {
		return 0, false, m.ledgerErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.stock[voucherID]
	return n, ok, nil
}

func (m *memStore) CompareAndSetStock(ctx context.Context, voucherID int64, expected, next int) (bool, error) {
	m.casCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()

	if next < 0 || m.stock[voucherID] != expected {
		return false, nil
	}
	m.stock[voucherID] = next
	return true, nil
}

func (m *memStore) RestoreStock(ctx context.Context, voucherID int64, quantity int) error {
	m.restoreCnt.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stock[voucherID] += quantity
	return nil
}

func (m *memStore) FindOrder(ctx context.Context, voucherID, userID int64) (*domain.VoucherOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[[2]int64{voucherID, userID}]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *memStore) CreateOrder(ctx context.Context, order domain.VoucherOrder) (int64, error) {
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := [2]int64{order.VoucherID, order.UserID}
	if _, ok := m.orders[key]; ok {
		return 0, domain.ErrDuplicate
	}
	m.nextID++
	order.ID = m.nextID
	m.orders[key] = order
	return order.ID, nil
}

func (m *memStore) stockOf(voucherID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[voucherID]
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// countingLocker wraps a locker and records every call.
type countingLocker struct {
	inner    port.Locker
	acquired atomic.Int32
	released atomic.Int32
}

func (l *countingLocker) Acquire(ctx context.Context, resource, owner string) (bool, error) {
	ok, err := l.inner.Acquire(ctx, resource, owner)
	if ok {
		l.acquired.Add(1)
	}
	return ok, err
}

func (l *countingLocker) Release(ctx context.Context, resource, owner string) (bool, error) {
	l.released.Add(1)
	return l.inner.Release(ctx, resource, owner)
}

// failingCache simulates an unreachable Redis.
type failingCache struct{}

func (failingCache) GetHash(context.Context, string) (map[string]string, error) {
	return nil, errStoreDown
}
func (failingCache) PutHash(context.Context, string, map[string]string, time.Duration) error {
	return errStoreDown
}
func (failingCache) PutList(context.Context, string, []string, time.Duration) error {
	return errStoreDown
}
func (failingCache) GetRange(context.Context, string) ([]string, error) { return nil, errStoreDown }
func (failingCache) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, errStoreDown
}
func (failingCache) Delete(context.Context, ...string) error { return errStoreDown }

type testRedis struct {
	mr     *miniredis.Miniredis
	client *redis.Client
	cache  *storage.RedisAdapter
	lock   *storage.RedisLock
}

func newTestRedis(t *testing.T, lockTTL time.Duration) *testRedis {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), PoolSize: 64})
	t.Cleanup(func() { client.Close() })

	return &testRedis{
		mr:     mr,
		client: client,
		cache:  storage.NewRedisAdapter(client),
		lock:   storage.NewRedisLock(client, lockTTL),
	}
}

func fastPolicy() CachePolicy {
	return CachePolicy{
		TTL:         30 * time.Minute,
		NullTTL:     2 * time.Minute,
		MaxAttempts: 100,
		BaseDelay:   2 * time.Millisecond,
		MaxDelay:    20 * time.Millisecond,
	}
}
