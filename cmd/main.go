package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"catering-system/internal/config"
	"catering-system/internal/database"
	"catering-system/internal/gateway"
	"catering-system/internal/locker"
	"catering-system/internal/logger"
	"catering-system/internal/messaging"
	"catering-system/internal/services/notification"
	"catering-system/internal/services/order"
	"catering-system/internal/services/payment"
)

func main() {
	var (
		mode       = flag.String("mode", "", "Service mode (order-service, payment-sweeper, notification-worker)")
		port       = flag.Int("port", 3000, "HTTP port")
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
		prefetch   = flag.Int("prefetch", 1, "RabbitMQ prefetch count")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode":         *mode,
		"gateway_mode": string(cfg.Gateway.Mode),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		cancel()
	}()

	switch *mode {
	case "order-service":
		err = runOrderService(ctx, cfg, log, *port)
	case "payment-sweeper":
		err = runPaymentSweeper(ctx, cfg, log)
	case "notification-worker":
		err = runNotificationWorker(ctx, cfg, log, *prefetch)
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("service_failed", fmt.Sprintf("%s failed", *mode), requestID, err, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// runOrderService serves the order and application HTTP API
func runOrderService(ctx context.Context, cfg *config.Config, log *logger.Logger, port int) error {
	requestID := logger.GenerateRequestID()

	db, err := database.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

	if err := db.RunMigrations(ctx, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("redis_connected", "Connected to Redis", requestID, nil)

	publisher := messaging.NewPublisher(conn, log)
	gw := gateway.New(cfg.Gateway, log)
	paymentService := payment.NewService(
		payment.NewRepository(db), gw,
		locker.NewRedisLocker(redisClient),
		publisher, log, cfg.Gateway, cfg.Payments,
	)

	service := order.NewService(order.NewRepository(db), paymentService, gw, publisher, log)
	handler := order.NewHandler(service, log)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler.SetupRoutes(),
	}

	go func() {
		log.Info("http_listening", fmt.Sprintf("Order service listening on port %d", port), requestID,
			map[string]interface{}{"port": port})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server_failed", "HTTP server failed", requestID, err, nil)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return server.Shutdown(shutdownCtx)
}

// runPaymentSweeper runs the periodic reconciliation loop
func runPaymentSweeper(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	requestID := logger.GenerateRequestID()

	db, err := database.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})
	defer redisClient.Close()

	log.Info("dependencies_connected", "Connected to PostgreSQL, RabbitMQ and Redis", requestID, nil)

	service := payment.NewService(
		payment.NewRepository(db),
		gateway.New(cfg.Gateway, log),
		locker.NewRedisLocker(redisClient),
		messaging.NewPublisher(conn, log), log, cfg.Gateway, cfg.Payments,
	)

	interval := time.Duration(cfg.Payments.SweepIntervalSeconds) * time.Second
	return payment.NewSweeper(service, log, interval).Run(ctx)
}

// runNotificationWorker consumes domain events and runs the retry and
// schedule loops
func runNotificationWorker(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	requestID := logger.GenerateRequestID()

	db, err := database.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	log.Info("dependencies_connected", "Connected to PostgreSQL and RabbitMQ", requestID, nil)

	store := notification.NewRepository(db)
	engine := notification.NewEngine(store, notification.NewSMTPTransport(cfg.SMTP), log, cfg.Notifications)
	consumer := messaging.NewConsumer(conn, log, messaging.NotificationsQueue, "notification-worker", prefetch)

	retryInterval := time.Duration(cfg.Notifications.SweepIntervalSeconds) * time.Second
	worker := notification.NewWorker(engine, store, consumer, log, retryInterval)

	return worker.Run(ctx)
}
