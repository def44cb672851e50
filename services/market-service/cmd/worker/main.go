package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/floroz/bazaar/services/market-service/internal/adapters/events"
	"github.com/floroz/bazaar/services/market-service/internal/adapters/notify"
	"github.com/floroz/bazaar/services/market-service/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateWorker(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down worker...")
		cancel()
	}()

	// 1. Initialize Postgres Connection Pool
	dbConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Error("Unable to parse database config", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		logger.Error("Unable to create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if pingErr := pool.Ping(ctx); pingErr != nil {
		logger.Error("Unable to ping database", "error", pingErr)
		os.Exit(1)
	}
	logger.Info("Postgres Connected")

	// 2. Connect to RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()
	logger.Info("RabbitMQ Connected")

	// 3. Connect to Redis
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("Invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if pingErr := rdb.Ping(ctx).Err(); pingErr != nil {
		logger.Error("Unable to ping Redis", "error", pingErr)
		os.Exit(1)
	}
	logger.Info("Redis Connected")

	// 4. Initialize Producer and Consumer
	producer, err := events.NewMarketEventsProducer(pool, amqpConn, events.ProducerConfig{
		Exchange:    cfg.RabbitMQ.EventsExchange,
		BatchSize:   cfg.Relay.BatchSize,
		Interval:    cfg.Relay.Interval,
		LockTimeout: cfg.Database.LockTimeout,
	}, logger)
	if err != nil {
		logger.Error("Failed to create producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	inbox := notify.NewRedisInbox(rdb, cfg.Redis.InboxMaxLen, cfg.Redis.DedupeTTL)
	consumer := events.NewNotificationConsumer(
		amqpConn,
		inbox,
		cfg.RabbitMQ.NotificationsExchange,
		cfg.RabbitMQ.NotificationsQueue,
		logger,
	)

	// 5. Run both loops; either failing stops the other
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting Market Events Producer...")
		return producer.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("Starting Notification Consumer...")
		return consumer.Run(gctx)
	})

	if runErr := g.Wait(); runErr != nil {
		logger.Error("Worker failed", "error", runErr)
		// Run returns nil on context cancel.
		if ctx.Err() == nil {
			os.Exit(1)
		}
	}

	logger.Info("Worker stopped")
}
