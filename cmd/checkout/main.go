package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"checkout/internal/config"
	"checkout/internal/gateway"
	"checkout/internal/repository"
	"checkout/internal/service"
	transport "checkout/internal/transport/http"
	"checkout/internal/transport/http/handler"
	"checkout/pkg/db"
	"checkout/pkg/kafka"
	"checkout/pkg/mylogger"
	outboxRepository "checkout/pkg/outbox/repository"
	"checkout/pkg/outbox/worker"
	"checkout/pkg/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	tp, err := utils.InitTracer(ctx, "checkout-service")
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := db.NewPostgresPool(cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("failed to create pool: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})

	orderRepo := repository.NewOrderRepository(pool, logger)
	inventoryRepo := repository.NewInventoryRepository(pool, logger)
	catalogRepo := service.NewCachedCatalogRepository(
		repository.NewCatalogRepository(pool, logger),
		rdb,
	)
	webhookRepo := repository.NewWebhookRepository(pool, logger)
	outboxRepo := outboxRepository.NewOutboxRepository(pool, logger)

	gatewayClient := gateway.NewRazorpayClient(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, logger)

	checkoutService := service.NewCheckoutService(pool, catalogRepo, orderRepo, gatewayClient, logger)
	reconcileService := service.NewReconcileService(
		pool,
		orderRepo,
		inventoryRepo,
		webhookRepo,
		outboxRepo,
		cfg.Razorpay.KeySecret,
		logger,
	)

	kafkaProducer, err := kafka.NewProducer([]string{cfg.Kafka.URL})
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, kafkaProducer, logger)
	go outboxProcessor.Start(ctx)

	app := fiber.New(fiber.Config{
		ReadTimeout: cfg.HTTP.Timeout,
	})

	app.Use(otelfiber.Middleware())

	app.Use(transport.NewRateLimiter())

	handlers := &transport.Handlers{
		Checkout: handler.NewCheckoutHandler(checkoutService, reconcileService, logger),
		Webhook:  handler.NewWebhookHandler(reconcileService, cfg.Razorpay.WebhookSecret, logger),
	}

	transport.RegisterRoutes(app, handlers)

	go func() {
		log.Println("HTTP service listening on " + cfg.HTTP.Port)
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("error listening on %v: %v\n", cfg.HTTP.Port, err)
		}
	}()

	logger.Info("Checkout service started!")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, logger, "Shutting down checkout service")

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error shutting down HTTP app: %v\n", err)
	}

	if err := kafkaProducer.Close(); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to close kafka producer", zap.Error(err))
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	}

	pool.Close()
}
