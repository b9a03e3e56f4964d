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

	"github.com/manu042k/ecommerce-microservices/internal/repository"
	"github.com/manu042k/ecommerce-microservices/internal/service"
	transportHTTP "github.com/manu042k/ecommerce-microservices/internal/transport/http"
	"github.com/manu042k/ecommerce-microservices/internal/transport/http/handler"
	transportKafka "github.com/manu042k/ecommerce-microservices/internal/transport/kafka"
	"github.com/manu042k/ecommerce-microservices/internal/worker"
	"github.com/manu042k/ecommerce-microservices/pkg/config"
	"github.com/manu042k/ecommerce-microservices/pkg/db"
	pkgKafka "github.com/manu042k/ecommerce-microservices/pkg/kafka"
	"github.com/manu042k/ecommerce-microservices/pkg/mylogger"
	outboxRepository "github.com/manu042k/ecommerce-microservices/pkg/outbox/repository"
	outboxWorker "github.com/manu042k/ecommerce-microservices/pkg/outbox/worker"
	"github.com/manu042k/ecommerce-microservices/pkg/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	tp, err := utils.InitTracer(ctx, "inventory-service")
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	logger, err := config.NewLogger(config.LoggerConfig{
		Level: cfg.LogLevel,
		Env:   cfg.Env,
	})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := db.NewPostgresDB(cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("failed to create pool: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})

	inventoryRepo := repository.NewInventoryRepository(pool, logger)
	reservationRepo := repository.NewReservationRepository(pool, logger)
	adjustmentRepo := repository.NewAdjustmentRepository(pool, logger)
	outboxRepo := outboxRepository.NewOutboxRepository(pool, logger)

	inventoryService := service.NewInventoryService(pool, logger, inventoryRepo, adjustmentRepo, outboxRepo)
	reservationService := service.NewReservationService(pool, logger, inventoryRepo, reservationRepo, outboxRepo)

	kafkaProducer, err := pkgKafka.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}

	outboxProcessor := outboxWorker.NewOutboxProcessor(pool, outboxRepo, kafkaProducer, logger)
	go outboxProcessor.Start(ctx)

	expirySweeper := worker.NewExpirySweeper(reservationRepo, reservationService, logger, cfg.Expiry.Interval, cfg.Expiry.BatchSize)
	go expirySweeper.Start(ctx)

	consumer := transportKafka.NewConsumer(reservationService, redisClient, logger)
	go consumer.Start(ctx, cfg.Kafka.Brokers, cfg.Kafka.GroupID)

	app := fiber.New(fiber.Config{
		ReadTimeout: cfg.HTTP.Timeout,
	})

	app.Use(otelfiber.Middleware())

	transportHTTP.RegisterRoutes(app, &transportHTTP.Handlers{
		Inventory:   handler.NewInventoryHandler(inventoryService, logger),
		Reservation: handler.NewReservationHandler(reservationService, inventoryService, logger),
	})

	go func() {
		mylogger.Info(ctx, logger, "HTTP server listening", zap.String("port", cfg.HTTP.Port))

		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("error serving HTTP: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, exit := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer exit()

	mylogger.Info(shutdownCtx, logger, "Shutting down inventory service")

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down HTTP server", zap.Error(err))
	}

	if err := kafkaProducer.Close(); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to close kafka producer", zap.Error(err))
	}

	if err := redisClient.Close(); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to close redis client", zap.Error(err))
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	}

	pool.Close()
}
