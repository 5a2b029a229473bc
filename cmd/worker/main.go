package main

import (
	"log"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"funding-service/internal/config"
	"funding-service/internal/consumers"
	"funding-service/internal/database"
	"funding-service/internal/services"
	"funding-service/internal/worker"
	"funding-service/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog := logger.New(cfg.IsProduction())
	defer zlog.Sync()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		zlog.Fatalw("database connection failed", "error", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr})
	defer asynqClient.Close()
	enqueuer := worker.NewEnqueuer(asynqClient)

	// Services
	notifier := services.NewNotifier(rdb, zlog)
	ledgerService := services.NewLedgerService(zlog)
	transactionService := services.NewTransactionService(db, ledgerService, notifier, zlog)

	identityClient := services.NewIdentityClient(cfg.Identity)
	gatewayClient := services.NewGatewayClient(cfg.Gateway, zlog)

	orphanService := services.NewOrphanService(db, identityClient, transactionService, zlog)
	settlementService := services.NewSettlementService(db, notifier, cfg.Reconcile.SettlementLookback, zlog)

	dedup := services.NewDedupIndex(rdb, cfg.Webhook.DedupCacheSize, zlog)
	router := services.NewEventRouter(db, dedup, transactionService, settlementService, orphanService, zlog)

	verifier := services.NewSignatureVerifier(cfg.Webhook.Secret)
	webhookService := services.NewWebhookService(db, verifier, enqueuer, cfg.Webhook.StrictSignature, zlog)

	reconciler := services.NewReconciliationService(db, gatewayClient, transactionService,
		settlementService, orphanService, webhookService, cfg.Reconcile, cfg.Webhook.Retention, zlog)

	consumer := consumers.NewEventConsumer(router, reconciler, orphanService, zlog)

	zlog.Infow("worker starting", "redis", cfg.Redis.Addr)
	worker.StartWorker(asynq.RedisClientOpt{Addr: cfg.Redis.Addr}, consumer)
}
