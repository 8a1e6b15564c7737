// ledgerkerneld is the long-running, non-HTTP process that hosts the
// settlement batch scheduler and idempotency reaper. The posting engine
// itself is a library (internal/posting) invoked in-process by whatever
// surface accepts transaction requests (spec §1 names that surface external
// to this kernel); this binary only drives the background cut-off and
// cleanup cadence, the same split scheduler-service has from
// transaction-service in the source monorepo.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/transfa/ledger-kernel/internal/batch"
	"github.com/transfa/ledger-kernel/internal/cache"
	"github.com/transfa/ledger-kernel/internal/config"
	"github.com/transfa/ledger-kernel/internal/events"
	"github.com/transfa/ledger-kernel/internal/idempotency"
	"github.com/transfa/ledger-kernel/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database url", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = cfg.DBMaxConns
	poolConfig.MinConns = cfg.DBMinConns
	poolConfig.MaxConnLifetime = time.Duration(cfg.DBMaxConnLifeMin) * time.Minute
	poolConfig.MaxConnIdleTime = time.Duration(cfg.DBMaxConnIdleMin) * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	st := store.NewPostgresStore(dbpool)
	defer st.Close()

	var cacheClient cache.Cache
	if cfg.RedisURL == "" {
		logger.Warn("redis url not configured; idempotency cache disabled, falling back to in-memory")
		cacheClient = cache.NewInMemoryCache()
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			logger.Warn("redis url parse failed; falling back to in-memory cache", "error", parseErr)
			cacheClient = cache.NewInMemoryCache()
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				logger.Warn("redis ping failed; falling back to in-memory cache", "error", pingErr)
				redisClient.Close()
				cacheClient = cache.NewInMemoryCache()
			} else {
				defer redisClient.Close()
				logger.Info("redis connected")
				cacheClient = cache.NewRedisCache(redisClient, "ledgerkernel:idempotency:")
			}
		}
	}

	var sink events.Sink
	if cfg.RabbitMQURL == "" {
		logger.Warn("rabbitmq url not configured; events degraded to no-op")
		sink = events.NewNoopSink(logger)
	} else {
		amqpSink, sinkErr := events.NewAMQPSink(cfg.RabbitMQURL, cfg.EventExchange, logger)
		if sinkErr != nil {
			logger.Warn("rabbitmq connection failed; events degraded to no-op", "error", sinkErr)
			sink = events.NewNoopSink(logger)
		} else {
			sink = amqpSink
			defer amqpSink.Close()
			logger.Info("rabbitmq event sink connected", "exchange", cfg.EventExchange)
		}
	}

	idempotencyManager := idempotency.NewManager(
		st, cacheClient, logger,
		time.Duration(cfg.IdempotencyTTLSeconds)*time.Second,
		time.Duration(cfg.IdempotencyPollMillis)*time.Millisecond,
		time.Duration(cfg.IdempotencyPollMaxWaitMillis)*time.Millisecond,
	)

	batchService := batch.NewService(st, sink, logger, cfg.SettlementWindow, cfg.SettlementMicroBatchMin, cfg.NettingMode)
	pollInterval := batch.PollInterval(cfg.SettlementWindow, cfg.SettlementMicroBatchMin)
	scheduler := batch.NewScheduler(batchService, idempotencyManager, logger, pollInterval)

	scheduler.Start()
	logger.Info("scheduler started", "settlement_window", cfg.SettlementWindow, "poll_interval", pollInterval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping scheduler")
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	logger.Info("scheduler stopped gracefully")
}
