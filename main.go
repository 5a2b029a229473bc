package main

import (
	"log"

	"funding-service/internal/config"
	"funding-service/internal/database"
	"funding-service/internal/handlers"
	"funding-service/internal/services"
	"funding-service/internal/worker"
	"funding-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog := logger.New(cfg.IsProduction())
	defer zlog.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		zlog.Fatalw("database connection failed", "error", err)
	}
	if err := database.Migrate(db); err != nil {
		zlog.Fatalw("database migration failed", "error", err)
	}

	// Redis / Asynq
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr})
	defer asynqClient.Close()
	enqueuer := worker.NewEnqueuer(asynqClient)

	// Services
	notifier := services.NewNotifier(rdb, zlog)
	ledgerService := services.NewLedgerService(zlog)
	transactionService := services.NewTransactionService(db, ledgerService, notifier, zlog)
	walletService := services.NewWalletService(db)

	identityClient := services.NewIdentityClient(cfg.Identity)
	gatewayClient := services.NewGatewayClient(cfg.Gateway, zlog)

	orphanService := services.NewOrphanService(db, identityClient, transactionService, zlog)
	depositService := services.NewDepositService(db, gatewayClient, transactionService, cfg.Reconcile.DepositExpiry, zlog)

	verifier := services.NewSignatureVerifier(cfg.Webhook.Secret)
	strict := cfg.Webhook.StrictSignature || cfg.IsProduction()
	webhookService := services.NewWebhookService(db, verifier, enqueuer, strict, zlog)

	// Handlers
	webhookHandler := handlers.NewWebhookHandler(webhookService, zlog)
	walletHandler := handlers.NewWalletHandler(walletService, depositService)
	adminHandler := handlers.NewAdminHandler(db, orphanService, enqueuer, zlog)

	r := gin.Default()

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "Welcome to funding service",
		})
	})

	r.POST("/webhooks/gateway", webhookHandler.Receive)

	r.POST("/deposits", walletHandler.InitiateDeposit)
	r.GET("/deposits/:reference", walletHandler.GetTransaction)
	r.GET("/deposits/:reference/verify", walletHandler.VerifyDeposit)

	r.GET("/wallets/balance", walletHandler.GetBalance)
	r.GET("/wallets/ledger", walletHandler.GetLedger)
	r.GET("/wallets/transactions", walletHandler.ListTransactions)

	admin := r.Group("/admin")
	{
		admin.GET("/orphans", adminHandler.ListOrphans)
		admin.POST("/orphans/:id/resolve", adminHandler.ResolveOrphan)
		admin.GET("/mismatches", adminHandler.ListMismatches)
		admin.POST("/mismatches/:id/resolve", adminHandler.ResolveMismatch)
		admin.POST("/reconcile", adminHandler.TriggerReconcile)
		admin.POST("/orphan-sweep", adminHandler.TriggerOrphanSweep)
	}

	// Periodic jobs are queued here, executed by the worker process.
	scheduler := worker.NewScheduler(enqueuer, cfg.Reconcile, zlog)
	cronRunner, err := scheduler.StartScheduler()
	if err != nil {
		zlog.Fatalw("scheduler failed to start", "error", err)
	}
	defer cronRunner.Stop()

	zlog.Infow("HTTP server starting", "port", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		zlog.Fatalw("server exited", "error", err)
	}
}
