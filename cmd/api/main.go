package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"crypto-balance-backend/internal/common/config"
	"crypto-balance-backend/internal/common/logger"
	"crypto-balance-backend/internal/common/middleware"
	depositHTTP "crypto-balance-backend/internal/features/deposit/delivery/http"
	depositRepo "crypto-balance-backend/internal/features/deposit/repository/postgres"
	depositService "crypto-balance-backend/internal/features/deposit/service"
	ledgerRepo "crypto-balance-backend/internal/features/ledger/repository/postgres"
	ledgerService "crypto-balance-backend/internal/features/ledger/service"
	userCache "crypto-balance-backend/internal/features/user/cache/redis"
	userHTTP "crypto-balance-backend/internal/features/user/delivery/http"
	userRepo "crypto-balance-backend/internal/features/user/repository/postgres"
	userService "crypto-balance-backend/internal/features/user/service"
	withdrawalHTTP "crypto-balance-backend/internal/features/withdrawal/delivery/http"
	withdrawalRepo "crypto-balance-backend/internal/features/withdrawal/repository/postgres"
	withdrawalService "crypto-balance-backend/internal/features/withdrawal/service"
	"crypto-balance-backend/internal/platform/cryptopay"
	"crypto-balance-backend/internal/platform/postgres"
	"crypto-balance-backend/internal/platform/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("config load: %v", err))
	}

	logger.Init("crypto-balance-backend", cfg.Debug)

	postgresClient, err := postgres.NewClient(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer postgresClient.Close()

	if cfg.Postgres.AutoMigrate {
		if err := postgresClient.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to run migrations")
		}
		logger.Info().Msg("Database schema up to date")
	}

	redisClient, err := redis.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Repositories
	ledgerRepository := ledgerRepo.NewPostgresRepository(postgresClient.DB())
	userRepository := userRepo.NewPostgresRepository(postgresClient.DB())
	depositRepository := depositRepo.NewPostgresRepository(postgresClient.DB())
	withdrawalRepository := withdrawalRepo.NewPostgresRepository(postgresClient.DB())

	// Services
	ledgerSvc := ledgerService.NewLedgerService(ledgerRepository)
	cache := userCache.NewUserCache(redisClient, cfg.Redis.UserCacheTTL)
	userSvc := userService.NewUserService(userRepository, ledgerSvc, cache, cfg.Bonus.Welcome, cfg.Bonus.Referral)
	provider := cryptopay.NewClient(cfg)
	depositSvc := depositService.NewDepositService(depositRepository, ledgerSvc, provider)
	withdrawalSvc := withdrawalService.NewWithdrawalService(withdrawalRepository, ledgerSvc)

	if err := withdrawalSvc.ReconcileRefunds(ctx); err != nil {
		logger.Error().Err(err).Msg("Withdrawal refund reconciliation failed")
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.Server.Origin == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization", "Accept", "Idempotency-Key"}
	router.Use(cors.New(corsConfig))

	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})

	v1 := router.Group("/api/v1")
	userHTTP.NewUserHandler(userSvc).RegisterRoutes(v1)
	depositHTTP.NewDepositHandler(depositSvc).RegisterRoutes(v1)
	withdrawalHTTP.NewWithdrawalHandler(withdrawalSvc, cfg.Server.AdminToken).RegisterRoutes(v1)

	router.GET("/health", func(c *gin.Context) {
		if err := postgresClient.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}
