package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/marketplace-settlement/internal/config"
	"github.com/marketplace-settlement/internal/data/mongo"
	"github.com/marketplace-settlement/internal/data/postgres"
	"github.com/marketplace-settlement/internal/data/redis"
	"github.com/marketplace-settlement/internal/logger"
	"github.com/marketplace-settlement/internal/payout_processor/consumer"
	payoutservice "github.com/marketplace-settlement/internal/payout_processor/service"
	"github.com/marketplace-settlement/internal/platform/gateway"
	"github.com/marketplace-settlement/internal/platform/messaging/consumers"
	"github.com/marketplace-settlement/internal/platform/messaging/producers"
	"github.com/marketplace-settlement/internal/platform/persistence"
	"github.com/marketplace-settlement/internal/settlement/engine"
	"github.com/marketplace-settlement/internal/settlement/outbox_dispatcher"
	"github.com/marketplace-settlement/internal/settlement/reconciler"
	"github.com/marketplace-settlement/internal/settlement/saga"
	"github.com/marketplace-settlement/internal/settlement/scheduler"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("settlement_worker")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Settlement Worker",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

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

	// Initialize Kafka producers
	eventProducer, err := producers.NewEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize Kafka event producer", "error", err)
		os.Exit(1)
	}

	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	// dlqProducer might be nil if DLQTopic is not configured. Callers are nil-safe.

	// Initialize Kafka consumer for payout jobs
	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka, cfg.Kafka.PayoutsTopic)

	// Settlement pipeline shared by the scheduler and the payout processor
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

	// Initialize payout processing behind a bounded worker pool
	gatewayPayoutService := payoutservice.NewGatewayPayoutService(
		log,
		postgresDB,
		payoutRepo,
		ledgerEngine,
		outboxRepo,
		paymentGateway,
		cfg.Gateway.Timeout,
	)
	payoutService, err := payoutservice.NewWorkerPoolPayoutService(
		gatewayPayoutService,
		payoutservice.WorkerPoolConfig{Size: cfg.WorkerPool.Size},
		log,
	)
	if err != nil {
		log.Error("Failed to initialize payout worker pool", "error", err)
		os.Exit(1)
	}

	payoutEventHandler := consumer.NewPayoutEventHandler(log, payoutService, dlqProducer, cfg.WorkerPool.MaxDeliveryAttempts)

	// Initialize outbox dispatcher
	dispatcher := outbox_dispatcher.NewDispatcher(
		log,
		&cfg.Outbox,
		&cfg.Kafka,
		postgresDB,
		outboxRepo,
		eventProducer,
		dlqProducer,
		archiveRepo,
	)

	// Initialize auto-release scheduler and ledger reconciler
	autoRelease := scheduler.NewAutoReleaseScheduler(log, &cfg.Scheduler, escrowRepo, orchestrator)
	ledgerReconciler := reconciler.NewReconciler(log, &cfg.Reconciler, postgresDB, walletRepo, ledgerRepo)

	// Create error channel for service errors
	errChan := make(chan error, 2)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start Kafka consumer in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Kafka consumer",
			"topic", cfg.Kafka.PayoutsTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := kafkaConsumer.Subscribe(appCtx, cfg.Kafka.PayoutsTopic, cfg.Kafka.ConsumerGroup, payoutEventHandler.HandleMessage); err != nil {
			errChan <- fmt.Errorf("kafka consumer error: %w", err)
		}
	}()

	// Start outbox dispatcher in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Outbox Dispatcher",
			"interval", cfg.Outbox.PollingInterval.String(),
			"batch_size", cfg.Outbox.BatchSize,
			"partitions", cfg.Outbox.Partitions,
		)
		dispatcher.Start(appCtx)
	}()

	// Start auto-release scheduler in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Auto-Release Scheduler",
			"interval", cfg.Scheduler.Interval.String(),
			"batch_size", cfg.Scheduler.BatchSize,
		)
		autoRelease.Start(appCtx)
	}()

	// Start ledger reconciler in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Ledger Reconciler",
			"interval", cfg.Reconciler.Interval.String(),
			"batch_size", cfg.Reconciler.BatchSize,
		)
		ledgerReconciler.Start(appCtx)
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Drain the payout worker pool before closing its downstream clients
	log.Info("Shutting down worker pool", "running_workers", payoutService.Running())
	payoutService.Shutdown()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Wait for all goroutines to finish
	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// Close Kafka producers
	if err = eventProducer.Close(); err != nil {
		log.Error("Error closing Kafka event producer", "error", err)
	}
	if dlqProducer != nil { // dlqProducer can be nil if DLQTopic was not configured
		if err = dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}

	// Close Kafka consumer
	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	if err = redisClient.Close(); err != nil {
		log.Error("Error closing Redis client", "error", err)
	}

	// Close MongoDB connection
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serviceErr != nil {
		log.Error("Settlement Worker shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Settlement Worker shutdown completed with errors")
	} else {
		log.Info("Settlement Worker shutdown completed successfully")
	}
}
