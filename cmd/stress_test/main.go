package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"

	"github.com/rl1809/shop-seckill/internal/adapter/storage"
	"github.com/rl1809/shop-seckill/internal/config"
	"github.com/rl1809/shop-seckill/internal/core/domain"
	"github.com/rl1809/shop-seckill/internal/core/service"
)

func main() {
	app := cli.NewApp()
	app.Name = "stress_test"
	app.Usage = "fire concurrent seckill requests and verify stock accounting"
	app.Flags = append(config.Flags(),
		cli.Int64Flag{Name: "voucher", Value: 900001, Usage: "voucher `ID` to (re)create"},
		cli.IntFlag{Name: "stock", Value: 20, Usage: "initial stock"},
		cli.IntFlag{Name: "users", Value: 50, Usage: "distinct concurrent buyers"},
		cli.IntFlag{Name: "repeat", Value: 3, Usage: "requests per buyer, fired concurrently"},
		cli.BoolFlag{Name: "resubmit", Usage: "retry after a lost compare-and-set"},
	)
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("stress test failed")
	}
}

type tally struct {
	success, outOfStock, oversold, duplicate, contention, other atomic.Int32
}

func (t *tally) record(err error) {
	switch {
	case err == nil:
		t.success.Add(1)
	case errors.Is(err, domain.ErrOutOfStock):
		t.outOfStock.Add(1)
	case errors.Is(err, domain.ErrOversold):
		t.oversold.Add(1)
	case errors.Is(err, domain.ErrDuplicate):
		t.duplicate.Add(1)
	case errors.Is(err, domain.ErrContention):
		t.contention.Add(1)
	default:
		t.other.Add(1)
		log.Error().Err(err).Msg("unexpected failure")
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromContext(c)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	ctx := context.Background()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQLMaxOpen)
	if err := storage.EnsureSchema(ctx, db); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB, PoolSize: cfg.RedisPoolSize})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	voucherID := c.Int64("voucher")
	stock := c.Int("stock")
	users := c.Int("users")
	repeat := c.Int("repeat")
	resubmit := c.Bool("resubmit")

	// Start from a clean voucher.
	if _, err := db.ExecContext(ctx, `DELETE FROM tb_voucher_order WHERE voucher_id = ?`, voucherID); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM tb_seckill_voucher WHERE voucher_id = ?`, voucherID); err != nil {
		return err
	}

	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)
	policy := service.CachePolicy{
		TTL:         cfg.CacheTTL,
		NullTTL:     cfg.NullTTL,
		MaxAttempts: cfg.RebuildAttempts,
		BaseDelay:   cfg.RebuildBaseDelay,
		MaxDelay:    cfg.RebuildMaxDelay,
	}
	vouchers := service.NewVoucherService(mysqlAdapter, redisAdapter, storage.NewRedisLock(rdb, cfg.RebuildLockTTL), policy)
	v := domain.SeckillVoucher{VoucherID: voucherID, Title: "stress voucher"}
	if err := vouchers.AddSeckillVoucher(ctx, v, stock); err != nil {
		return err
	}

	orders := service.NewOrderService(vouchers, mysqlAdapter, mysqlAdapter, storage.NewRedisLock(rdb, cfg.OrderLockTTL), users*repeat)
	defer orders.Close()
	go func() {
		for range orders.GetOrderQueue() {
		}
	}()

	var (
		t     tally
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for u := 0; u < users; u++ {
		for r := 0; r < repeat; r++ {
			wg.Add(1)
			go func(userID int64) {
				defer wg.Done()
				<-start
				for {
					_, err := orders.Seckill(ctx, voucherID, userID)
					if resubmit && errors.Is(err, domain.ErrOversold) {
						continue
					}
					t.record(err)
					return
				}
			}(int64(1_000_000 + u))
		}
	}

	began := time.Now()
	close(start)
	wg.Wait()
	elapsed := time.Since(began)

	finalStock, _, err := mysqlAdapter.GetStock(ctx, voucherID)
	if err != nil {
		return err
	}
	var persisted int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tb_voucher_order WHERE voucher_id = ?`, voucherID).Scan(&persisted); err != nil {
		return err
	}

	success := int(t.success.Load())
	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", stock)
	fmt.Printf("Buyers x Repeat:  %d x %d\n", users, repeat)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Out of stock:     %d\n", t.outOfStock.Load())
	fmt.Printf("Lost CAS:         %d\n", t.oversold.Load())
	fmt.Printf("Duplicate:        %d\n", t.duplicate.Load())
	fmt.Printf("Contention:       %d\n", t.contention.Load())
	fmt.Printf("Other errors:     %d\n", t.other.Load())
	fmt.Printf("Final Stock:      %d\n", finalStock)
	fmt.Printf("Persisted Orders: %d\n", persisted)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	var failures []string
	if finalStock < 0 {
		failures = append(failures, "stock went negative")
	}
	if success > stock || success > users {
		failures = append(failures, "more orders than stock or buyers")
	}
	if persisted != success || finalStock != stock-success {
		failures = append(failures, "stock and orders disagree")
	}
	if resubmit && success != min(stock, users) {
		failures = append(failures, fmt.Sprintf("expected exactly %d orders", min(stock, users)))
	}
	for _, f := range failures {
		fmt.Println("FAIL:", f)
	}
	if len(failures) > 0 {
		return errors.New("stress test found inconsistencies")
	}
	fmt.Println("PASS: no oversell, no duplicate orders")
	return nil
}
