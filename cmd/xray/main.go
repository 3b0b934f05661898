// Package main is the entry point for the x-ray telemetry ingestion
// service. It initializes all components and starts the HTTP server and
// the message processor.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"xray-go/internal/api"
	"xray-go/internal/banner"
	"xray-go/internal/config"
	"xray-go/internal/processor"
	"xray-go/internal/producer"
	"xray-go/internal/queue"
	kafkaqueue "xray-go/internal/queue/kafka"
	memoryqueue "xray-go/internal/queue/memory"
	"xray-go/internal/queue/rabbitmq"
	"xray-go/internal/store"
	memorystor "xray-go/internal/store/memory"
	postgresstor "xray-go/internal/store/postgres"
	redisstor "xray-go/internal/store/redis"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	banner.Print()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(&cfg.Logger)

	logger.Info("configuration loaded",
		"path", *configPath,
		"storage_mode", cfg.Storage.Mode,
		"queue_backend", cfg.Queue.Backend,
	)

	// Initialize dependencies based on storage mode
	deps, cleanup, err := initDependencies(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Create context that listens for shutdown signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Start processor in background
	go func() {
		if err := deps.processor.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("processor error", "error", err)
			cancel()
		}
	}()

	// Start HTTP server
	go func() {
		if err := deps.server.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	logger.Info("xray ingestion service started",
		"address", cfg.Server.Address(),
		"storage_mode", cfg.Storage.Mode,
	)

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := deps.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := deps.processor.Close(); err != nil {
		logger.Error("processor shutdown error", "error", err)
	}

	logger.Info("xray ingestion service stopped")
}

// dependencies holds all initialized service dependencies.
type dependencies struct {
	server    *api.Server
	processor *processor.Service
}

// initDependencies creates and wires all service dependencies based on config.
// Returns the dependencies and a cleanup function.
func initDependencies(cfg *config.Config, logger *slog.Logger) (*dependencies, func(), error) {
	var (
		signalRepo    store.SignalRepository
		deviceStore   store.DeviceStateStore
		queueProducer queue.Producer
		queueConsumer queue.Consumer
		cleanupFuncs  []func()
	)

	// Build cleanup function early so failed init paths can run it.
	cleanup := func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			cleanupFuncs[i]()
		}
	}

	if cfg.Storage.UseMemory() {
		logger.Info("initializing in-memory backends")

		signalRepo = memorystor.NewSignalRepository()

		memDevices := memorystor.NewDeviceStateStore()
		deviceStore = memDevices
		cleanupFuncs = append(cleanupFuncs, func() { _ = memDevices.Close() })

		memQueue := memoryqueue.NewQueue(10000)
		queueProducer = memQueue
		queueConsumer = memQueue
		cleanupFuncs = append(cleanupFuncs, func() { _ = memQueue.Close() })
	} else {
		logger.Info("initializing production backends",
			"queue_backend", cfg.Queue.Backend,
		)

		// Initialize PostgreSQL
		ctx := context.Background()
		db, err := postgresstor.NewDB(ctx, &cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		cleanupFuncs = append(cleanupFuncs, db.Close)

		// Run migrations
		if err := db.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		logger.Info("database migrations completed")

		signalRepo = postgresstor.NewSignalRepository(db)

		// Initialize Redis
		redisStore, err := redisstor.NewDeviceStateStore(&cfg.Redis)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deviceStore = redisStore
		cleanupFuncs = append(cleanupFuncs, func() { _ = redisStore.Close() })

		// Initialize the broker transport
		switch cfg.Queue.Backend {
		case config.QueueBackendKafka:
			kafkaProducer := kafkaqueue.NewProducer(&cfg.Kafka)
			queueProducer = kafkaProducer
			cleanupFuncs = append(cleanupFuncs, func() { _ = kafkaProducer.Close() })

			kafkaConsumer := kafkaqueue.NewConsumer(&cfg.Kafka, logger)
			queueConsumer = kafkaConsumer
			cleanupFuncs = append(cleanupFuncs, func() { _ = kafkaConsumer.Close() })
		default:
			// A single transport owns the one connection and channel for
			// both publishing and consuming.
			transport, err := rabbitmq.NewTransport(&cfg.RabbitMQ, logger)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			queueProducer = transport
			queueConsumer = transport
			cleanupFuncs = append(cleanupFuncs, func() { _ = transport.Close() })
		}
	}

	// Initialize services
	producerService := producer.NewService(queueProducer, logger)
	processorService := processor.NewService(queueConsumer, signalRepo, deviceStore, logger)

	// Initialize API handlers
	signalHandler := api.NewSignalHandler(signalRepo, logger)
	producerHandler := api.NewProducerHandler(producerService, logger)
	deviceHandler := api.NewDeviceHandler(deviceStore, logger)

	// Initialize HTTP server
	server := api.NewServer(api.ServerDeps{
		Config:          &cfg.Server,
		Logger:          logger,
		SignalHandler:   signalHandler,
		ProducerHandler: producerHandler,
		DeviceHandler:   deviceHandler,
	})

	return &dependencies{
		server:    server,
		processor: processorService,
	}, cleanup, nil
}

// initLogger creates and configures the application logger.
func initLogger(cfg *config.LoggerConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
