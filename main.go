package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civic-rewards/config"
	"civic-rewards/handlers"
	"civic-rewards/middleware"
	"civic-rewards/services"
	"civic-rewards/utils"
	"civic-rewards/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	logger, err := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("❌ failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := utils.ConnectDatabase(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := services.AutoMigrate(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	catalog := services.DefaultCatalog().WithOverrides(
		cfg.Rewards.Points,
		cfg.Rewards.CreditCosts,
		cfg.Rewards.RedemptionTTLDays,
		cfg.Rewards.CodeLength,
	)
	if err := services.SeedCatalog(ctx, db, catalog, logger); err != nil {
		logger.Fatal("failed to seed rewards catalog", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("⚠️  Redis unreachable, leaderboard served from database", zap.Error(err))
		}
		defer rdb.Close()
	}

	loc := cfg.Location()

	inbox := services.NewNotificationService(db, logger)
	board := services.NewLeaderboard(db, rdb, logger)

	ledger := services.NewLedger(db, catalog, inbox, logger)
	ledger.Board = board
	ledger.Location = loc

	credits := services.NewCreditLedger(db, catalog, inbox, logger)

	messenger := services.NewWhatsAppMessenger(
		cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber, cfg.TwilioBaseURL,
		utils.HTTPClient, logger)
	fanout := services.NewFanout(db, inbox, messenger, logger)
	fanout.Location = loc

	dispatcher := services.NewDispatcher(cfg.FanoutWorkers, cfg.FanoutQueueSize, logger)

	jobs := services.NewJobs(db, credits, board, inbox, cfg.ExpiryReminderDays, logger)
	scheduler, err := services.StartScheduler(jobs, loc, cfg.MonthlyGrantEnabled, logger)
	if err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	if cfg.SyncServiceURL != "" {
		syncWorker := workers.NewCitizenSyncWorker(db, cfg.SyncServiceURL, cfg.ServiceToken, cfg.SyncInterval, utils.HTTPClient, logger)
		syncWorker.Start(ctx)
	} else {
		logger.Warn("⚠️  SYNC_SERVICE_URL not set, citizen directory sync disabled")
	}

	var proofs handlers.ProofStore
	r2 := utils.R2Config{
		AccountID:       cfg.CloudflareAccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		AccessKeySecret: cfg.R2AccessKeySecret,
		Bucket:          cfg.R2BucketName,
		CDNBaseURL:      cfg.CDNBaseURL,
	}
	if r2.Enabled() {
		store, err := utils.NewR2Store(ctx, r2)
		if err != nil {
			logger.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		proofs = store
	} else {
		logger.Warn("⚠️  R2 not configured, redemption proof uploads disabled")
	}

	var tokens middleware.TokenValidator
	if cfg.AuthServiceURL != "" {
		tokens = middleware.NewAuthServiceClient(cfg.AuthServiceURL, cfg.ServiceToken)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 12 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Origins(),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-User-ID, X-User-Roles, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })

	// everything below needs the gateway token
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, logger))

	handlers.SetupRewardsRoutes(app, handlers.NewRewardsAPI(ledger, credits, board, inbox, proofs, logger), tokens, logger)
	handlers.SetupInternalRoutes(app, handlers.NewInternalAPI(ledger, fanout, dispatcher, logger))
	handlers.SetupAdminRoutes(app, handlers.NewAdminAPI(ledger, credits, logger), logger)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	logger.Info("✅ Server running",
		zap.String("port", cfg.Port),
		zap.String("timezone", loc.String()),
		zap.Bool("whatsapp", messenger.Configured()),
		zap.Bool("redis", rdb != nil),
		zap.String("cors_origins", cfg.Origins()))

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	if err := scheduler.Shutdown(); err != nil {
		logger.Error("scheduler shutdown failed", zap.Error(err))
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("fan-out queue not fully drained", zap.Error(err))
	}
}
