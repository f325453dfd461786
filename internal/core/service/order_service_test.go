package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/shop-seckill/internal/core/domain"
)

const (
	testVoucherID int64 = 1
	testUserID    int64 = 42
)

type orderFixture struct {
	svc    *OrderService
	store  *memStore
	locker *countingLocker
	redis  *testRedis
}

func newOrderFixture(t *testing.T, stock int) *orderFixture {
	t.Helper()

	rd := newTestRedis(t, 5*time.Second)
	store := newMemStore()
	store.vouchers[testVoucherID] = domain.SeckillVoucher{VoucherID: testVoucherID, Title: "100 off 200"}
	store.stock[testVoucherID] = stock

	vouchers := NewVoucherService(store, rd.cache, rd.lock, fastPolicy())
	locker := &countingLocker{inner: rd.lock}

	return &orderFixture{
		svc:    NewOrderService(vouchers, store, store, locker, 1024),
		store:  store,
		locker: locker,
		redis:  rd,
	}
}

func (f *orderFixture) assertNoLocksLeft(t *testing.T) {
	t.Helper()
	for _, key := range f.redis.mr.Keys() {
		if strings.HasPrefix(key, "lock:") {
			t.Errorf("lock %s still held", key)
		}
	}
	assert.Equal(t, f.locker.acquired.Load(), f.locker.released.Load())
}

func TestSeckill_Success(t *testing.T) {
	f := newOrderFixture(t, 10)

	orderID, err := f.svc.Seckill(context.Background(), testVoucherID, testUserID)
	require.NoError(t, err)
	assert.Greater(t, orderID, int64(0))

	assert.Equal(t, 9, f.store.stockOf(testVoucherID))
	assert.Equal(t, 1, f.store.orderCount())
	f.assertNoLocksLeft(t)

	select {
	case event := <-f.svc.GetOrderQueue():
		assert.Equal(t, orderID, event.OrderID)
		assert.Equal(t, testVoucherID, event.VoucherID)
		assert.Equal(t, testUserID, event.UserID)
	default:
		t.Fatal("expected an order event")
	}
}

func TestSeckill_InvalidArguments(t *testing.T) {
	f := newOrderFixture(t, 10)
	ctx := context.Background()

	_, err := f.svc.Seckill(ctx, 0, testUserID)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.svc.Seckill(ctx, testVoucherID, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSeckill_UnknownVoucher(t *testing.T) {
	f := newOrderFixture(t, 10)

	_, err := f.svc.Seckill(context.Background(), 99, testUserID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, int32(0), f.locker.acquired.Load())
}

func TestSeckill_OutOfStock(t *testing.T) {
	f := newOrderFixture(t, 0)

	_, err := f.svc.Seckill(context.Background(), testVoucherID, testUserID)
	assert.ErrorIs(t, err, domain.ErrOutOfStock)
	assert.Equal(t, int32(0), f.store.casCalls.Load())
	assert.Equal(t, 0, f.store.orderCount())
}

func TestSeckill_SaleWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		voucher domain.SeckillVoucher
		wantErr error
	}{
		{
			name:    "not started",
			voucher: domain.SeckillVoucher{VoucherID: 2, BeginTime: now.Add(time.Hour)},
			wantErr: domain.ErrSaleNotStarted,
		},
		{
			name:    "ended",
			voucher: domain.SeckillVoucher{VoucherID: 3, BeginTime: now.Add(-2 * time.Hour), EndTime: now.Add(-time.Hour)},
			wantErr: domain.ErrSaleEnded,
		},
		{
			name:    "open",
			voucher: domain.SeckillVoucher{VoucherID: 4, BeginTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrderFixture(t, 10)
			f.svc.now = func() time.Time { return now }
			f.store.vouchers[tt.voucher.VoucherID] = tt.voucher
			f.store.stock[tt.voucher.VoucherID] = 5

			_, err := f.svc.Seckill(context.Background(), tt.voucher.VoucherID, testUserID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 5, f.store.stockOf(tt.voucher.VoucherID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 4, f.store.stockOf(tt.voucher.VoucherID))
		})
	}
}

func TestSeckill_DuplicateSequential(t *testing.T) {
	f := newOrderFixture(t, 10)
	ctx := context.Background()

	_, err := f.svc.Seckill(ctx, testVoucherID, testUserID)
	require.NoError(t, err)

	_, err = f.svc.Seckill(ctx, testVoucherID, testUserID)
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	assert.Equal(t, 9, f.store.stockOf(testVoucherID))
	assert.Equal(t, 1, f.store.orderCount())
	f.assertNoLocksLeft(t)
}

func TestSeckill_ConcurrentSameUser(t *testing.T) {
	f := newOrderFixture(t, 10)

	const attempts = 50
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		start     = make(chan struct{})
		errs      = make(chan error, attempts)
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := f.svc.Seckill(context.Background(), testVoucherID, testUserID); err != nil {
				errs <- err
				return
			}
			successes.Add(1)
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	assert.Equal(t, int32(1), successes.Load())
	for err := range errs {
		if !errors.Is(err, domain.ErrDuplicate) && !errors.Is(err, domain.ErrContention) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, f.store.orderCount())
	assert.Equal(t, 9, f.store.stockOf(testVoucherID))
	f.assertNoLocksLeft(t)
}

func TestSeckill_NoOversell(t *testing.T) {
	const (
		stock = 10
		users = 100
	)
	f := newOrderFixture(t, stock)

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		start     = make(chan struct{})
	)

	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			<-start
			_, err := f.svc.Seckill(context.Background(), testVoucherID, userID)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domain.ErrOversold), errors.Is(err, domain.ErrOutOfStock):
			default:
				t.Errorf("user %d: unexpected error: %v", userID, err)
			}
		}(int64(1000 + i))
	}
	close(start)
	wg.Wait()

	got := int(successes.Load())
	assert.LessOrEqual(t, got, stock)
	assert.GreaterOrEqual(t, f.store.stockOf(testVoucherID), 0)
	assert.Equal(t, stock-got, f.store.stockOf(testVoucherID))
	assert.Equal(t, got, f.store.orderCount())
	f.assertNoLocksLeft(t)
}

// Clients that resubmit after a lost compare-and-set drain the stock exactly.
func TestSeckill_ResubmitDrainsStockExactly(t *testing.T) {
	const (
		stock = 10
		users = 100
	)
	f := newOrderFixture(t, stock)

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		soldOut   atomic.Int32
		start     = make(chan struct{})
	)

	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			<-start
			for try := 0; try < 1000; try++ {
				_, err := f.svc.Seckill(context.Background(), testVoucherID, userID)
				switch {
				case err == nil:
					successes.Add(1)
					return
				case errors.Is(err, domain.ErrOutOfStock):
					soldOut.Add(1)
					return
				case errors.Is(err, domain.ErrOversold):
					continue
				default:
					t.Errorf("user %d: unexpected error: %v", userID, err)
					return
				}
			}
			t.Errorf("user %d: gave up resubmitting", userID)
		}(int64(1000 + i))
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(stock), successes.Load())
	assert.Equal(t, int32(users-stock), soldOut.Load())
	assert.Equal(t, 0, f.store.stockOf(testVoucherID))
	assert.Equal(t, stock, f.store.orderCount())
}

func TestSeckill_LastUnit(t *testing.T) {
	f := newOrderFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.Seckill(ctx, testVoucherID, 7)
	require.NoError(t, err)

	_, err = f.svc.Seckill(ctx, testVoucherID, 8)
	assert.ErrorIs(t, err, domain.ErrOutOfStock)

	assert.Equal(t, 0, f.store.stockOf(testVoucherID))
	assert.Equal(t, 1, f.store.orderCount())
}

func TestSeckill_TwoBuyersLastUnit(t *testing.T) {
	f := newOrderFixture(t, 1)

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		ids   = make([]int64, 2)
		errs  = make([]error, 2)
	)

	for i, userID := range []int64{7, 8} {
		wg.Add(1)
		go func(i int, userID int64) {
			defer wg.Done()
			<-start
			ids[i], errs[i] = f.svc.Seckill(context.Background(), testVoucherID, userID)
		}(i, userID)
	}
	close(start)
	wg.Wait()

	var winners int
	for i, err := range errs {
		if err == nil {
			winners++
			assert.Greater(t, ids[i], int64(0))
			continue
		}
		assert.True(t, errors.Is(err, domain.ErrOutOfStock) || errors.Is(err, domain.ErrOversold),
			"unexpected error: %v", err)
	}

	assert.Equal(t, 1, winners)
	assert.Equal(t, 0, f.store.stockOf(testVoucherID))
	assert.Equal(t, 1, f.store.orderCount())
	f.assertNoLocksLeft(t)
}

func TestSeckill_LockHeldElsewhere(t *testing.T) {
	f := newOrderFixture(t, 10)
	require.NoError(t, f.redis.mr.Set("lock:1:42", "42:another-request"))

	_, err := f.svc.Seckill(context.Background(), testVoucherID, testUserID)
	assert.ErrorIs(t, err, domain.ErrContention)

	assert.Equal(t, int32(0), f.store.casCalls.Load())
	assert.Equal(t, int32(0), f.locker.released.Load())
	assert.Equal(t, 10, f.store.stockOf(testVoucherID))

	// The foreign holder's lock is untouched.
	got, err := f.redis.mr.Get("lock:1:42")
	require.NoError(t, err)
	assert.Equal(t, "42:another-request", got)
}

func TestSeckill_PersistFailureRestoresStock(t *testing.T) {
	f := newOrderFixture(t, 10)
	f.store.createErr = errors.New("Deadlock found when trying to get lock")

	_, err := f.svc.Seckill(context.Background(), testVoucherID, testUserID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInfrastructure)

	assert.Equal(t, 10, f.store.stockOf(testVoucherID))
	assert.Equal(t, int32(1), f.store.restoreCnt.Load())
	assert.Equal(t, 0, f.store.orderCount())
	assert.Len(t, f.svc.GetOrderQueue(), 0)
	f.assertNoLocksLeft(t)
}

func TestSeckill_UniqueIndexBackstop(t *testing.T) {
	f := newOrderFixture(t, 10)
	f.store.createErr = domain.ErrDuplicate

	_, err := f.svc.Seckill(context.Background(), testVoucherID, testUserID)
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	assert.NotErrorIs(t, err, domain.ErrInfrastructure)
	assert.Equal(t, 10, f.store.stockOf(testVoucherID))
	f.assertNoLocksLeft(t)
}

func TestSeckill_LedgerUnavailable(t *testing.T) {
	f := newOrderFixture(t, 10)
	f.store.ledgerErr = errStoreDown

	_, err := f.svc.Seckill(context.Background(), testVoucherID, testUserID)
	assert.ErrorIs(t, err, domain.ErrInfrastructure)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, int32(0), f.locker.acquired.Load())
}

func TestSeckill_DuplicateFoundUnderLock(t *testing.T) {
	f := newOrderFixture(t, 10)
	f.store.orders[[2]int64{testVoucherID, testUserID}] = domain.VoucherOrder{ID: 500, VoucherID: testVoucherID, UserID: testUserID}

	orders := &staleFirstRead{memStore: f.store}
	svc := NewOrderService(f.svc.vouchers, f.store, orders, f.locker, 16)

	_, err := svc.Seckill(context.Background(), testVoucherID, testUserID)
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	assert.Equal(t, int32(2), orders.finds.Load())
	assert.Equal(t, int32(0), f.store.casCalls.Load())
	assert.Equal(t, 10, f.store.stockOf(testVoucherID))
	f.assertNoLocksLeft(t)
}

func TestSeckill_FullQueueDropsEvent(t *testing.T) {
	f := newOrderFixture(t, 10)
	f.svc = NewOrderService(f.svc.vouchers, f.store, f.store, f.locker, 1)
	ctx := context.Background()

	_, err := f.svc.Seckill(ctx, testVoucherID, 1)
	require.NoError(t, err)
	_, err = f.svc.Seckill(ctx, testVoucherID, 2)
	require.NoError(t, err)

	assert.Len(t, f.svc.GetOrderQueue(), 1)
	assert.Equal(t, 2, f.store.orderCount())
}

func TestSeckill_AfterClose(t *testing.T) {
	f := newOrderFixture(t, 10)
	f.svc.Close()
	f.svc.Close()

	var (
		orderID int64
		err     error
	)
	require.NotPanics(t, func() {
		orderID, err = f.svc.Seckill(context.Background(), testVoucherID, testUserID)
	})
	require.NoError(t, err)
	assert.Greater(t, orderID, int64(0))
	assert.Equal(t, 9, f.store.stockOf(testVoucherID))
	assert.Equal(t, 1, f.store.orderCount())

	_, open := <-f.svc.GetOrderQueue()
	assert.False(t, open)
}

// staleFirstRead misses the order on the first lookup, as if it were
// committed by a concurrent request right after.
type staleFirstRead struct {
	*memStore
	finds atomic.Int32
}

func (s *staleFirstRead) FindOrder(ctx context.Context, voucherID, userID int64) (*domain.VoucherOrder, error) {
	if s.finds.Add(1) == 1 {
		return nil, nil
	}
	return s.memStore.FindOrder(ctx, voucherID, userID)
}
