package domain

import (
	"fmt"
	"strconv"
	"time"
)

// SeckillVoucher is the cacheable metadata of a flash-sale voucher. The
// remaining stock lives in the stock ledger only.
type SeckillVoucher struct {
	VoucherID int64     `json:"voucher_id"`
	Title     string    `json:"title"`
	BeginTime time.Time `json:"begin_time"`
	EndTime   time.Time `json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CheckWindow reports whether now falls inside the sale window. Zero bounds
// are open.
func (v SeckillVoucher) CheckWindow(now time.Time) error {
	if !v.BeginTime.IsZero() && now.Before(v.BeginTime) {
		return ErrSaleNotStarted
	}
	if !v.EndTime.IsZero() && now.After(v.EndTime) {
		return ErrSaleEnded
	}
	return nil
}

func (v SeckillVoucher) Fields() map[string]string {
	return map[string]string{
		"voucher_id": strconv.FormatInt(v.VoucherID, 10),
		"title":      v.Title,
		"begin_time": formatTime(v.BeginTime),
		"end_time":   formatTime(v.EndTime),
		"created_at": formatTime(v.CreatedAt),
		"updated_at": formatTime(v.UpdatedAt),
	}
}

func SeckillVoucherFromFields(f map[string]string) (SeckillVoucher, error) {
	var (
		v   SeckillVoucher
		err error
	)
	if v.VoucherID, err = strconv.ParseInt(f["voucher_id"], 10, 64); err != nil {
		return SeckillVoucher{}, fmt.Errorf("voucher_id: %w", err)
	}
	v.Title = f["title"]
	if v.BeginTime, err = parseTime(f["begin_time"]); err != nil {
		return SeckillVoucher{}, fmt.Errorf("begin_time: %w", err)
	}
	if v.EndTime, err = parseTime(f["end_time"]); err != nil {
		return SeckillVoucher{}, fmt.Errorf("end_time: %w", err)
	}
	if v.CreatedAt, err = parseTime(f["created_at"]); err != nil {
		return SeckillVoucher{}, fmt.Errorf("created_at: %w", err)
	}
	if v.UpdatedAt, err = parseTime(f["updated_at"]); err != nil {
		return SeckillVoucher{}, fmt.Errorf("updated_at: %w", err)
	}
	return v, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
