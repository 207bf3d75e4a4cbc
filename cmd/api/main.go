package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kislikjeka/chargehub/internal/infra/postgres"
	infraRedis "github.com/kislikjeka/chargehub/internal/infra/redis"
	"github.com/kislikjeka/chargehub/internal/ledger"
	"github.com/kislikjeka/chargehub/internal/lock"
	"github.com/kislikjeka/chargehub/internal/platform/account"
	"github.com/kislikjeka/chargehub/internal/transport/httpapi"
	"github.com/kislikjeka/chargehub/internal/transport/httpapi/handler"
	"github.com/kislikjeka/chargehub/internal/transport/httpapi/middleware"
	"github.com/kislikjeka/chargehub/pkg/config"
	"github.com/kislikjeka/chargehub/pkg/logger"
)

// redisPinger adapts the go-redis client to the health handler's Pinger.
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func main() {
	// Create context that listens for termination signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewDefault(cfg.Env)
	log.Info("Starting ChargeHub API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Initialize database connection pool
	db, err := postgres.NewPool(ctx, postgres.Config{URL: cfg.DatabaseURL})
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("Database connection established")

	// Initialize Redis client for the balance cache and wallet leases
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("Redis connection established")

	// Initialize infrastructure
	balanceCache := infraRedis.NewBalanceCache(redisClient, log)
	leaseClient := infraRedis.NewLeaseClient(redisClient)
	lockManager := lock.NewManager(leaseClient, lock.Config{
		LeaseTTL:       cfg.LockLeaseTTL,
		RetryAttempts:  cfg.LockRetryAttempts,
		RetryDelay:     cfg.LockRetryDelay,
		AppLockTimeout: cfg.AppLockTimeout,
	}, log)

	// Initialize repositories
	accountRepo := postgres.NewAccountRepository(db.Pool)
	ledgerRepo := postgres.NewLedgerRepository(db.Pool)

	// Initialize services
	accountSvc := account.NewService(accountRepo, balanceCache)
	jwtSvc := middleware.NewJWTService(cfg.JWTSecret)

	transferPool := ledger.NewPool(cfg.TransferWorkers)
	defer transferPool.Close()

	transferSvc := ledger.NewService(
		ledgerRepo,
		balanceCache,
		lockManager,
		accountSvc,
		transferPool,
		log,
		cfg.CASRetryAttempts,
	)
	log.Info("Transfer engine initialized",
		"workers", cfg.TransferWorkers,
		"cas_retries", cfg.CASRetryAttempts,
	)

	// Initialize HTTP handlers
	authHandler := handler.NewAuthHandler(accountSvc, jwtSvc)
	walletHandler := handler.NewWalletHandler(transferSvc, accountSvc)
	healthHandler := handler.NewHealthHandler(db, redisPinger{client: redisClient})

	// Create JWT middleware
	jwtMiddleware := middleware.JWTMiddleware(jwtSvc)

	// Determine allowed origins for CORS
	allowedOrigins := []string{"http://localhost:5173"}
	if cfg.IsProduction() {
		if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
			allowedOrigins = []string{origins}
		}
	}

	// Create HTTP router
	r := httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		AllowedOrigins: allowedOrigins,
		AuthHandler:    authHandler,
		WalletHandler:  walletHandler,
		HealthHandler:  healthHandler,
		JWTMiddleware:  jwtMiddleware,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start the server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for termination signal or server error
	select {
	case err := <-serverErr:
		log.Error("HTTP server failed", "error", err)
		os.Exit(1)
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped")
}
