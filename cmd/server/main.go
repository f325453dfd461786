package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"
	"google.golang.org/grpc"

	"github.com/rl1809/shop-seckill/internal/adapter/handler"
	"github.com/rl1809/shop-seckill/internal/adapter/messaging"
	"github.com/rl1809/shop-seckill/internal/adapter/storage"
	"github.com/rl1809/shop-seckill/internal/config"
	"github.com/rl1809/shop-seckill/internal/core/service"
	"github.com/rl1809/shop-seckill/internal/port"
)

// set by the linker: go build -ldflags "-X main.version=M.N" ./cmd/server
var version = "dev"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	app := cli.NewApp()
	app.Name = "seckill-server"
	app.Usage = "shop catalogue and flash-sale order service"
	app.Version = version
	app.Flags = config.Flags()
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromContext(c)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
	log.Info().Str("version", version).Msg("starting seckill server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQLMaxOpen)
	db.SetMaxIdleConns(cfg.MySQLMaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return err
	}
	if err := storage.EnsureSchema(ctx, db); err != nil {
		return err
	}
	log.Info().Msg("connected to mysql")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")

	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)
	rebuildLock := storage.NewRedisLock(rdb, cfg.RebuildLockTTL)
	orderLock := storage.NewRedisLock(rdb, cfg.OrderLockTTL)
	log.Info().
		Dur("rebuild_lock_ttl", rebuildLock.TTL()).
		Dur("order_lock_ttl", orderLock.TTL()).
		Msg("distributed locks ready")

	policy := service.CachePolicy{
		TTL:         cfg.CacheTTL,
		NullTTL:     cfg.NullTTL,
		MaxAttempts: cfg.RebuildAttempts,
		BaseDelay:   cfg.RebuildBaseDelay,
		MaxDelay:    cfg.RebuildMaxDelay,
	}
	shopService := service.NewShopService(mysqlAdapter, redisAdapter, rebuildLock, policy)
	shopTypeService := service.NewShopTypeService(mysqlAdapter, redisAdapter, cfg.ShopTypeTTL)
	voucherService := service.NewVoucherService(mysqlAdapter, redisAdapter, rebuildLock, policy)
	sessionService := service.NewSessionService(redisAdapter, cfg.SessionTTL)
	orderService := service.NewOrderService(voucherService, mysqlAdapter, mysqlAdapter, orderLock, cfg.QueueSize)

	publisher := newPublisher(cfg)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			service.RunEventWorker(id, orderService.GetOrderQueue(), publisher)
		}(i)
	}
	log.Info().Int("workers", cfg.Workers).Msg("started event workers")

	serveErr := make(chan error, 2)

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		grpcServer = grpc.NewServer(grpc.UnaryInterceptor(handler.SessionInterceptor(sessionService)))
		handler.RegisterSeckillServer(grpcServer, handler.NewGRPCHandler(shopService, orderService))

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			log.Info().Str("addr", cfg.GRPCAddr).Msg("grpc server listening")
			if err := grpcServer.Serve(lis); err != nil {
				serveErr <- err
			}
		}()
	}

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		httpHandler := handler.NewHTTPHandler(shopService, shopTypeService, voucherService, orderService, sessionService)
		httpServer = &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      httpHandler.Router(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err = <-serveErr:
		log.Error().Err(err).Msg("server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
		log.Info().Msg("http server stopped")
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
		log.Info().Msg("grpc server stopped")
	}

	// No request can enqueue any more.
	orderService.Close()
	wg.Wait()
	if err := publisher.Close(); err != nil {
		log.Error().Err(err).Msg("close event publisher")
	}
	log.Info().Msg("event workers stopped")

	return err
}

func newPublisher(cfg config.Config) port.OrderEventPublisher {
	if len(cfg.KafkaBrokers) == 0 {
		log.Warn().Msg("no kafka brokers configured, order events are only logged")
		return messaging.NewLogPublisher(log.Logger)
	}
	log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing order events to kafka")
	return messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}
