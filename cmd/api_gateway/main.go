package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/marketplace-settlement/internal/api_gateway"
	"github.com/marketplace-settlement/internal/api_gateway/service"
	"github.com/marketplace-settlement/internal/config"
	"github.com/marketplace-settlement/internal/data/mongo"
	"github.com/marketplace-settlement/internal/data/postgres"
	"github.com/marketplace-settlement/internal/data/redis"
	"github.com/marketplace-settlement/internal/logger"
	"github.com/marketplace-settlement/internal/platform/gateway"
	"github.com/marketplace-settlement/internal/platform/persistence"
	"github.com/marketplace-settlement/internal/settlement/engine"
	"github.com/marketplace-settlement/internal/settlement/saga"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	platformWalletID, err := uuid.Parse(cfg.Settlement.PlatformWalletID)
	if err != nil {
		log.Error("Invalid platform wallet ID", "error", err)
		os.Exit(1)
	}

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	redisClient, err := redis.NewClient(appCtx, log, &cfg.Redis)
	if err != nil {
		log.Error("Failed to initialize Redis", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	escrowRepo := postgres.NewEscrowRepository(log, postgresDB)
	walletRepo := postgres.NewWalletRepository(log, postgresDB)
	ledgerRepo := postgres.NewLedgerRepository(log, postgresDB)
	payoutRepo := postgres.NewPayoutRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	archiveRepo := mongo.NewEventArchiveRepository(log, mongoDB.Database())

	// Initialize the settlement pipeline: ledger engine, payment gateway
	// client and the saga orchestrator behind the write endpoints
	ledgerEngine := engine.NewLedgerEngine(log, walletRepo, ledgerRepo)
	paymentGateway := gateway.NewHTTPGateway(log, &cfg.Gateway)
	idempotencyCache := redis.NewIdempotencyCache(redisClient)

	orchestrator := saga.NewOrchestrator(
		log,
		postgresDB,
		escrowRepo,
		ledgerEngine,
		outboxRepo,
		paymentGateway,
		idempotencyCache,
		saga.Config{
			PlatformWalletID:   platformWalletID,
			DefaultFeeBps:      cfg.Settlement.DefaultFeeBps,
			MaxConflictRetries: cfg.Settlement.MaxConflictRetries,
			GatewayTimeout:     cfg.Gateway.Timeout,
			CacheTTL:           cfg.Settlement.IdempotencyCacheTTL,
		},
	)

	// Initialize services
	settlementService := service.NewSettlementService(log, escrowRepo, orchestrator)
	queryService := service.NewQueryService(log, walletRepo, ledgerRepo, payoutRepo, archiveRepo)

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg, settlementService, queryService)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	if err = redisClient.Close(); err != nil {
		log.Error("Error closing Redis client", "error", err)
	}

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
