// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"funding-service/config"
	"funding-service/internal/cache"
	"funding-service/internal/events"
	"funding-service/internal/handler"
	"funding-service/internal/provider/monnify"
	"funding-service/internal/repository"
	"funding-service/internal/repository/memory"
	"funding-service/internal/repository/postgres"
	"funding-service/internal/router"
	"funding-service/internal/security"
	"funding-service/internal/usecase"
	"funding-service/internal/worker"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	envErr := godotenv.Load()

	logger, err := newLogger(os.Getenv("ENVIRONMENT"))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	if envErr != nil {
		logger.Info("no .env file found, relying on environment")
	}

	logger.Info("starting funding service")

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open ledger store", zap.Error(err))
	}
	defer closeStore()

	// Redis backs the gateway token and balance caches; without it both fall
	// back to in-process or no caching.
	var (
		tokens   cache.TokenStore     = cache.NewMemoryTokenStore()
		balances usecase.BalanceCache = cache.NopBalanceCache{}
	)
	if cfg.Redis.Enabled {
		redisCache := cache.NewCache(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using in-process caches", zap.Error(err))
		} else {
			defer redisCache.Close()
			tokens = cache.NewRedisTokenStore(redisCache)
			balances = cache.NewRedisBalanceCache(redisCache, cfg.Redis.BalanceTTL)
			logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr()))
		}
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.PublishTimeout, logger)
		logger.Info("publishing ledger events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}
	defer publisher.Close()

	gateway := monnify.NewMonnifyProvider(cfg.Monnify, tokens, logger)
	verifier := security.NewWebhookVerifier(cfg.Webhook.SecretKey)

	reconcileUC := usecase.NewReconcileUsecase(store, gateway, verifier, publisher, balances, logger)
	initiateUC := usecase.NewInitiateUsecase(store, gateway, usecase.InitiateConfig{
		RefPrefix:          cfg.Funding.RefPrefix,
		Currency:           cfg.Monnify.CurrencyCode,
		DefaultRedirectURL: cfg.Funding.DefaultRedirectURL,
	}, logger)
	walletUC := usecase.NewWalletUsecase(store, balances, cfg.Monnify.CurrencyCode, logger)

	walletHandler := handler.NewWalletHandler(initiateUC, reconcileUC, walletUC, logger)
	webhookHandler := handler.NewWebhookHandler(reconcileUC, cfg.Webhook, logger)

	r := router.SetupRoutes(walletHandler, webhookHandler, router.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Sweeper.Enabled {
		sweeper := worker.NewPendingSweeper(reconcileUC, cfg.Sweeper, logger)
		g.Go(func() error {
			sweeper.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("funding service started successfully",
		zap.String("port", cfg.Server.Port),
		zap.String("environment", cfg.Server.Env))

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.LedgerStore, func(), error) {
	if cfg.Store.Driver == "memory" {
		logger.Warn("using in-memory ledger store, data is not persisted")
		return memory.NewStore(), func() {}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("invalid database config: %w", err)
	}
	poolCfg.MaxConns = cfg.Database.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := dbPool.Ping(ctx); err != nil {
		dbPool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("connected to database", zap.String("database", cfg.Database.DBName))
	return postgres.NewLedgerRepository(dbPool), dbPool.Close, nil
}
