package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"pledgepay/config"
	"pledgepay/internal/broker"
	"pledgepay/internal/consumer"
	"pledgepay/internal/handler"
	"pledgepay/internal/outbox"
	"pledgepay/internal/redis"
	"pledgepay/internal/repository"
	"pledgepay/internal/server"
	"pledgepay/internal/services"
	"pledgepay/pkg/database"
	"pledgepay/pkg/logger"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.LoadConfig()

	l := logger.New(cfg.Server.Environment)
	logger.SetGlobalLogger(l)
	defer l.Logger.Sync()

	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.ApplyRawMigrations("migrations"); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	redis.Initialize(cfg.Redis)
	limiter := redis.NewRateLimiter(redis.GetClient(), redis.DefaultRateLimitConfig())

	mq, err := broker.Dial(cfg.RabbitMQ, l)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer mq.Close()

	paymentRepo := repository.NewPaymentRepository(database.DB)
	accountRepo := repository.NewAccountRepository(database.DB)
	transactionRepo := repository.NewTransactionRepository(database.DB)
	outboxRepo := repository.NewOutboxRepository(database.DB)
	txManager := repository.NewTxManager(database.DB)

	ledgerService := services.NewLedgerService(accountRepo, transactionRepo, txManager, cfg.Ledger, l)
	orchestrator := services.NewPaymentOrchestrator(paymentRepo, outboxRepo, txManager, mq, l)
	relay := outbox.NewRelay(outboxRepo, mq, cfg.Outbox, l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go relay.Run(ctx)

	pledgeConsumer := consumer.NewPledgeConsumer(orchestrator, l)
	requestConsumer := consumer.NewLedgerRequestConsumer(ledgerService, mq, l)
	responseConsumer := consumer.NewLedgerResponseConsumer(orchestrator, l)

	go func() {
		if err := mq.Consume(ctx, cfg.RabbitMQ.PledgeQueue, "pledge.created", pledgeConsumer.Handle); err != nil {
			l.Errorf("Pledge consumer stopped: %v", err)
		}
	}()
	go func() {
		if err := mq.Consume(ctx, cfg.RabbitMQ.LedgerRequestQueue, "ledger.request", requestConsumer.Handle); err != nil {
			l.Errorf("Ledger request consumer stopped: %v", err)
		}
	}()
	go func() {
		if err := mq.Consume(ctx, cfg.RabbitMQ.LedgerResponseQueue, "ledger.response", responseConsumer.Handle); err != nil {
			l.Errorf("Ledger response consumer stopped: %v", err)
		}
	}()

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Payment: handler.NewPaymentHandler(orchestrator, relay),
		Account: handler.NewAccountHandler(ledgerService),
	}, limiter)

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
