package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/shop-seckill/internal/core/domain"
)

const mysqlErrDuplicateEntry = 1062

// MySQLAdapter is the durable store for shops, vouchers, stock and orders.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) GetShop(ctx context.Context, id int64) (*domain.Shop, error) {
	var s domain.Shop
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, type_id, images, area, address, x, y, avg_price,
		       sold, comments, score, open_hours, created_at, updated_at
		FROM tb_shop WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &s.TypeID, &s.Images, &s.Area, &s.Address, &s.X, &s.Y, &s.AvgPrice,
		&s.Sold, &s.Comments, &s.Score, &s.OpenHours, &s.CreatedAt, &s.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query shop: %w", err)
	}

	return &s, nil
}

func (m *MySQLAdapter) CreateShop(ctx context.Context, s domain.Shop) (int64, error) {
	now := time.Now()
	result, err := m.db.ExecContext(ctx, `
		INSERT INTO tb_shop (name, type_id, images, area, address, x, y, avg_price,
		                     sold, comments, score, open_hours, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Name, s.TypeID, s.Images, s.Area, s.Address, s.X, s.Y, s.AvgPrice,
		s.Sold, s.Comments, s.Score, s.OpenHours, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert shop: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("shop id: %w", err)
	}
	return id, nil
}

func (m *MySQLAdapter) UpdateShop(ctx context.Context, s domain.Shop) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE tb_shop
		SET name = ?, type_id = ?, images = ?, area = ?, address = ?, x = ?, y = ?,
		    avg_price = ?, sold = ?, comments = ?, score = ?, open_hours = ?, updated_at = ?
		WHERE id = ?`,
		s.Name, s.TypeID, s.Images, s.Area, s.Address, s.X, s.Y,
		s.AvgPrice, s.Sold, s.Comments, s.Score, s.OpenHours, time.Now(), s.ID,
	)
	if err != nil {
		return fmt.Errorf("update shop: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}

	// MySQL reports 0 affected rows for no-op updates as well.
	existing, err := m.GetShop(ctx, s.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.ErrNotFound
	}
	return nil
}

func (m *MySQLAdapter) ListShopTypes(ctx context.Context) ([]domain.ShopType, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id, name, icon, sort FROM tb_shop_type ORDER BY sort ASC`)
	if err != nil {
		return nil, fmt.Errorf("query shop types: %w", err)
	}
	defer rows.Close()

	var types []domain.ShopType
	for rows.Next() {
		var st domain.ShopType
		if err := rows.Scan(&st.ID, &st.Name, &st.Icon, &st.Sort); err != nil {
			return nil, fmt.Errorf("scan shop type: %w", err)
		}
		types = append(types, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("shop type rows: %w", err)
	}
	return types, nil
}

func (m *MySQLAdapter) GetSeckillVoucher(ctx context.Context, voucherID int64) (*domain.SeckillVoucher, error) {
	var (
		v          domain.SeckillVoucher
		begin, end sql.NullTime
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT voucher_id, title, begin_time, end_time, created_at, updated_at
		FROM tb_seckill_voucher WHERE voucher_id = ?`, voucherID,
	).Scan(&v.VoucherID, &v.Title, &begin, &end, &v.CreatedAt, &v.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query voucher: %w", err)
	}

	v.BeginTime = begin.Time
	v.EndTime = end.Time
	return &v, nil
}

func (m *MySQLAdapter) CreateSeckillVoucher(ctx context.Context, v domain.SeckillVoucher, stock int) error {
	now := time.Now()
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO tb_seckill_voucher (voucher_id, title, stock, begin_time, end_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.VoucherID, v.Title, stock, nullTime(v.BeginTime), nullTime(v.EndTime), now, now,
	)
	if isDuplicateEntry(err) {
		return fmt.Errorf("voucher %d: %w", v.VoucherID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert voucher: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetStock(ctx context.Context, voucherID int64) (int, bool, error) {
	var stock int
	err := m.db.QueryRowContext(ctx, `SELECT stock FROM tb_seckill_voucher WHERE voucher_id = ?`, voucherID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query stock: %w", err)
	}
	return stock, true, nil
}

func (m *MySQLAdapter) CompareAndSetStock(ctx context.Context, voucherID int64, expected, next int) (bool, error) {
	if next < 0 {
		return false, nil
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE tb_seckill_voucher
		SET stock = ?, updated_at = ?
		WHERE voucher_id = ? AND stock = ?`,
		next, time.Now(), voucherID, expected,
	)
	if err != nil {
		return false, fmt.Errorf("update stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

func (m *MySQLAdapter) RestoreStock(ctx context.Context, voucherID int64, quantity int) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE tb_seckill_voucher
		SET stock = stock + ?, updated_at = ?
		WHERE voucher_id = ?`,
		quantity, time.Now(), voucherID,
	)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) FindOrder(ctx context.Context, voucherID, userID int64) (*domain.VoucherOrder, error) {
	var o domain.VoucherOrder
	err := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, voucher_id, status, created_at, updated_at
		FROM tb_voucher_order WHERE voucher_id = ? AND user_id = ?`, voucherID, userID,
	).Scan(&o.ID, &o.UserID, &o.VoucherID, &o.Status, &o.CreatedAt, &o.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return &o, nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, o domain.VoucherOrder) (int64, error) {
	result, err := m.db.ExecContext(ctx, `
		INSERT INTO tb_voucher_order (user_id, voucher_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		o.UserID, o.VoucherID, o.Status, o.CreatedAt, o.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return 0, domain.ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("order id: %w", err)
	}
	return id, nil
}

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
