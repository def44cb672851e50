package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/floroz/bazaar/pkg/auth"
	pkgdb "github.com/floroz/bazaar/pkg/database"
	pkgevents "github.com/floroz/bazaar/pkg/events"
	"github.com/floroz/bazaar/services/market-service/internal/adapters/api"
	"github.com/floroz/bazaar/services/market-service/internal/adapters/database"
	"github.com/floroz/bazaar/services/market-service/internal/adapters/notify"
	"github.com/floroz/bazaar/services/market-service/internal/config"
	"github.com/floroz/bazaar/services/market-service/internal/domain/items"
	"github.com/floroz/bazaar/services/market-service/internal/domain/negotiation"
	"github.com/floroz/bazaar/services/market-service/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateAPI(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	if cfg.Database.MigrateOnStart {
		if migrateErr := pkgdb.Migrate(ctx, pool, migrations.FS); migrateErr != nil {
			logger.Error("Migrations failed", "error", migrateErr)
			os.Exit(1)
		}
		logger.Info("Migrations applied")
	}

	// 2. Connect to RabbitMQ for notifications
	amqpConn, err := amqp091.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()
	logger.Info("RabbitMQ Connected")

	notificationPublisher, err := pkgevents.NewRabbitMQPublisher(amqpConn, cfg.RabbitMQ.NotificationsExchange)
	if err != nil {
		logger.Error("Failed to create RabbitMQ publisher", "error", err)
		os.Exit(1)
	}
	defer notificationPublisher.Close()

	// 3. Redis inbox (optional for the API)
	var inbox api.NotificationReader
	if cfg.Redis.URL != "" {
		redisOpts, parseErr := redis.ParseURL(cfg.Redis.URL)
		if parseErr != nil {
			logger.Error("Invalid REDIS_URL", "error", parseErr)
			os.Exit(1)
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()
		if pingErr := rdb.Ping(ctx).Err(); pingErr != nil {
			logger.Warn("Redis connection failed, notifications listing disabled", "error", pingErr)
		} else {
			logger.Info("Redis Connected")
			inbox = notify.NewRedisInbox(rdb, cfg.Redis.InboxMaxLen, cfg.Redis.DedupeTTL)
		}
	}

	// 4. Token validation
	publicKey, err := os.ReadFile(cfg.Server.JWTPublicKeyPath)
	if err != nil {
		logger.Error("Failed to read JWT public key", "error", err)
		os.Exit(1)
	}
	signer, err := auth.NewSignerFromPublicKey(publicKey, cfg.Server.JWTIssuer)
	if err != nil {
		logger.Error("Failed to create token validator", "error", err)
		os.Exit(1)
	}

	// 5. Initialize Repositories (Infrastructure Layer)
	txManager := pkgdb.NewPostgresTransactionManager(pool, cfg.Database.LockTimeout)
	itemRepo := database.NewPostgresItemRepository(pool)
	offerRepo := database.NewPostgresOfferRepository(pool)
	txnRepo := database.NewPostgresTransactionRepository(pool)
	outboxRepo := database.NewPostgresOutboxRepository(pool)

	// 6. Initialize Services (Domain Layer)
	notifier := notify.NewAMQPNotifier(notificationPublisher, cfg.RabbitMQ.NotificationsExchange)
	itemService := items.NewService(txManager, itemRepo, offerRepo, outboxRepo,
		items.WithNotifier(notifier, cfg.Server.NotifyTimeout),
		items.WithLogger(logger),
	)
	negotiationService := negotiation.NewService(
		txManager,
		itemRepo,
		offerRepo,
		txnRepo,
		outboxRepo,
		notifier,
		logger,
		negotiation.WithNotifyTimeout(cfg.Server.NotifyTimeout),
	)

	// 7. Initialize API Handler (ConnectRPC)
	mux := http.NewServeMux()
	api.Register(mux, api.NewMarketHandler(itemService, negotiationService, inbox, logger), auth.NewAuthInterceptor(signer))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// 8. Start Server
	// Use h2c for HTTP/2 without TLS (common for internal services / local dev)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down API...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error("Graceful shutdown failed", "error", shutdownErr)
		}
	}()

	logger.Info("Starting Market Service API", "addr", cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
