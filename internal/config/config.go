package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	MySQLDSN     string
	MySQLMaxOpen int
	MySQLMaxIdle int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	CacheTTL         time.Duration
	NullTTL          time.Duration
	ShopTypeTTL      time.Duration
	RebuildLockTTL   time.Duration
	RebuildAttempts  int
	RebuildBaseDelay time.Duration
	RebuildMaxDelay  time.Duration

	OrderLockTTL time.Duration
	SessionTTL   time.Duration

	KafkaBrokers []string
	KafkaTopic   string
	Workers      int
	QueueSize    int

	LogLevel        zerolog.Level
	ShutdownTimeout time.Duration
}

// Flags returns the server flags. Every flag can also be set from the
// environment variable named next to it.
func Flags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: "http-addr", Value: ":8080", EnvVar: "APP_HTTP_ADDR", Usage: "HTTP listen `ADDR`"},
		cli.StringFlag{Name: "grpc-addr", Value: ":50051", EnvVar: "APP_GRPC_ADDR", Usage: "gRPC listen `ADDR`"},

		cli.StringFlag{
			Name:   "mysql-dsn",
			Value:  "root:root@tcp(localhost:3306)/hmdp?parseTime=true",
			EnvVar: "MYSQL_DSN",
			Usage:  "MySQL `DSN`, must include parseTime=true",
		},
		cli.IntFlag{Name: "mysql-max-open", Value: 50, EnvVar: "MYSQL_MAX_OPEN", Usage: "max open MySQL connections"},
		cli.IntFlag{Name: "mysql-max-idle", Value: 25, EnvVar: "MYSQL_MAX_IDLE", Usage: "max idle MySQL connections"},

		cli.StringFlag{Name: "redis-addr", Value: "localhost:6379", EnvVar: "REDIS_ADDR", Usage: "Redis `HOST:PORT`"},
		cli.StringFlag{Name: "redis-password", EnvVar: "REDIS_PASSWORD", Usage: "Redis password"},
		cli.IntFlag{Name: "redis-db", EnvVar: "REDIS_DB", Usage: "Redis database number"},
		cli.IntFlag{Name: "redis-pool-size", Value: 100, EnvVar: "REDIS_POOL_SIZE", Usage: "Redis connection pool size"},

		cli.DurationFlag{Name: "cache-ttl", Value: 30 * time.Minute, EnvVar: "CACHE_TTL", Usage: "lifetime of cached records"},
		cli.DurationFlag{Name: "null-ttl", Value: 2 * time.Minute, EnvVar: "CACHE_NULL_TTL", Usage: "lifetime of cached absences"},
		cli.DurationFlag{Name: "shop-type-ttl", Value: 30 * time.Minute, EnvVar: "CACHE_SHOP_TYPE_TTL", Usage: "lifetime of the shop type list"},
		cli.DurationFlag{Name: "rebuild-lock-ttl", Value: 10 * time.Second, EnvVar: "REBUILD_LOCK_TTL", Usage: "ceiling on a cache rebuild lock"},
		cli.IntFlag{Name: "rebuild-attempts", Value: 20, EnvVar: "REBUILD_ATTEMPTS", Usage: "cache reads before giving up on a rebuild"},
		cli.DurationFlag{Name: "rebuild-base-delay", Value: 20 * time.Millisecond, EnvVar: "REBUILD_BASE_DELAY", Usage: "first backoff while a rebuild is in progress"},
		cli.DurationFlag{Name: "rebuild-max-delay", Value: 500 * time.Millisecond, EnvVar: "REBUILD_MAX_DELAY", Usage: "backoff cap while a rebuild is in progress"},

		cli.DurationFlag{Name: "order-lock-ttl", Value: 300 * time.Second, EnvVar: "ORDER_LOCK_TTL", Usage: "ceiling on a per user order lock"},
		cli.DurationFlag{Name: "session-ttl", Value: 30 * time.Minute, EnvVar: "SESSION_TTL", Usage: "idle lifetime of a login session"},

		cli.StringFlag{Name: "kafka-brokers", EnvVar: "KAFKA_BROKERS", Usage: "comma separated `BROKERS`, empty logs events instead"},
		cli.StringFlag{Name: "kafka-topic", Value: "voucher-orders", EnvVar: "KAFKA_TOPIC", Usage: "order event `TOPIC`"},
		cli.IntFlag{Name: "workers", Value: 10, EnvVar: "EVENT_WORKERS", Usage: "order event publishers"},
		cli.IntFlag{Name: "queue-size", Value: 10000, EnvVar: "EVENT_QUEUE_SIZE", Usage: "order event buffer"},

		cli.StringFlag{Name: "log-level", Value: "info", EnvVar: "LOG_LEVEL", Usage: "`LEVEL` [debug|info|warn|error]"},
		cli.DurationFlag{Name: "shutdown-timeout", Value: 10 * time.Second, EnvVar: "SHUTDOWN_TIMEOUT", Usage: "grace period for in-flight requests"},
	}
}

// FromContext reads the flags registered by Flags and validates them.
func FromContext(c *cli.Context) (Config, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.String("log-level")))
	if err != nil {
		return Config{}, fmt.Errorf("log-level: %w", err)
	}

	cfg := Config{
		HTTPAddr: c.String("http-addr"),
		GRPCAddr: c.String("grpc-addr"),

		MySQLDSN:     c.String("mysql-dsn"),
		MySQLMaxOpen: c.Int("mysql-max-open"),
		MySQLMaxIdle: c.Int("mysql-max-idle"),

		RedisAddr:     c.String("redis-addr"),
		RedisPassword: c.String("redis-password"),
		RedisDB:       c.Int("redis-db"),
		RedisPoolSize: c.Int("redis-pool-size"),

		CacheTTL:         c.Duration("cache-ttl"),
		NullTTL:          c.Duration("null-ttl"),
		ShopTypeTTL:      c.Duration("shop-type-ttl"),
		RebuildLockTTL:   c.Duration("rebuild-lock-ttl"),
		RebuildAttempts:  c.Int("rebuild-attempts"),
		RebuildBaseDelay: c.Duration("rebuild-base-delay"),
		RebuildMaxDelay:  c.Duration("rebuild-max-delay"),

		OrderLockTTL: c.Duration("order-lock-ttl"),
		SessionTTL:   c.Duration("session-ttl"),

		KafkaBrokers: splitCSV(c.String("kafka-brokers")),
		KafkaTopic:   c.String("kafka-topic"),
		Workers:      c.Int("workers"),
		QueueSize:    c.Int("queue-size"),

		LogLevel:        level,
		ShutdownTimeout: c.Duration("shutdown-timeout"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.HTTPAddr == "" && c.GRPCAddr == "" {
		errs = append(errs, errors.New("at least one of http-addr and grpc-addr is required"))
	}
	if c.MySQLDSN == "" {
		errs = append(errs, errors.New("mysql-dsn is required"))
	}
	if c.RedisAddr == "" {
		errs = append(errs, errors.New("redis-addr is required"))
	}

	positive := []struct {
		name string
		d    time.Duration
	}{
		{"cache-ttl", c.CacheTTL},
		{"null-ttl", c.NullTTL},
		{"shop-type-ttl", c.ShopTypeTTL},
		{"rebuild-lock-ttl", c.RebuildLockTTL},
		{"rebuild-base-delay", c.RebuildBaseDelay},
		{"order-lock-ttl", c.OrderLockTTL},
		{"session-ttl", c.SessionTTL},
	}
	for _, p := range positive {
		if p.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", p.name, p.d))
		}
	}
	if c.RebuildMaxDelay < c.RebuildBaseDelay {
		errs = append(errs, errors.New("rebuild-max-delay must not be below rebuild-base-delay"))
	}
	if c.RebuildAttempts < 1 {
		errs = append(errs, errors.New("rebuild-attempts must be at least 1"))
	}
	if c.Workers < 1 || c.QueueSize < 1 {
		errs = append(errs, errors.New("workers and queue-size must be at least 1"))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("kafka-topic is required with kafka-brokers"))
	}

	return errors.Join(errs...)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
