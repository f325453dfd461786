package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/shop-seckill/internal/core/domain"
)

func TestVoucherService_AddSeckillVoucher(t *testing.T) {
	rd := newTestRedis(t, time.Second)
	store := newMemStore()
	svc := NewVoucherService(store, rd.cache, rd.lock, fastPolicy())
	ctx := context.Background()

	begin := time.Date(2026, 6, 18, 0, 0, 0, 0, time.UTC)
	v := domain.SeckillVoucher{VoucherID: 10, Title: "50 off", BeginTime: begin, EndTime: begin.Add(24 * time.Hour)}

	// A lookup before the voucher exists leaves a null marker behind.
	_, err := svc.Get(ctx, 10)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, svc.AddSeckillVoucher(ctx, v, 100))
	assert.Equal(t, 100, store.stockOf(10))

	got, err := svc.Get(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "50 off", got.Title)
	assert.True(t, begin.Equal(got.BeginTime))
	assert.True(t, v.EndTime.Equal(got.EndTime))

	err = svc.AddSeckillVoucher(ctx, v, 5)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.NotErrorIs(t, err, domain.ErrDuplicate)
	assert.Equal(t, 100, store.stockOf(10))
}

func TestVoucherService_Validation(t *testing.T) {
	rd := newTestRedis(t, time.Second)
	svc := NewVoucherService(newMemStore(), rd.cache, rd.lock, fastPolicy())
	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		name    string
		voucher domain.SeckillVoucher
		stock   int
	}{
		{name: "missing id", voucher: domain.SeckillVoucher{}, stock: 1},
		{name: "negative stock", voucher: domain.SeckillVoucher{VoucherID: 1}, stock: -1},
		{name: "inverted window", voucher: domain.SeckillVoucher{VoucherID: 1, BeginTime: now, EndTime: now.Add(-time.Hour)}, stock: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.AddSeckillVoucher(ctx, tt.voucher, tt.stock)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}
