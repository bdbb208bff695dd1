package main

import (
	"context"
	"log"
	"time"

	"instagram-automation/internal/config"
	"instagram-automation/internal/executor"
	"instagram-automation/internal/instagram"
	"instagram-automation/internal/logger"
	"instagram-automation/internal/queue"
	"instagram-automation/internal/store"
	"instagram-automation/internal/telemetry"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if cfg.StoreBackend != config.StoreMongo {
		log.Fatal("The worker needs STORE_BACKEND=mongo")
	}

	logger.InitLogger(cfg)

	if cfg.OTelEnabled {
		shutdownTracer, err := telemetry.InitTracer(cfg.ServiceName+"-worker", cfg.OTelEndpoint, cfg.GinMode)
		if err != nil {
			logger.Warn("Tracing disabled", "error", err)
		} else {
			defer shutdownTracer()
		}
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	st := store.NewMongoStore(mongoClient, cfg.DBName, metrics)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		st.Close(ctx)
	}()

	igClient := instagram.NewClient(instagram.Config{
		BaseURL:              cfg.GraphAPIBaseURL,
		Timeout:              cfg.GraphTimeout(),
		RequestsPerSecond:    cfg.GraphAPIRPS,
		CarouselConcurrency:  cfg.CarouselConcurrency,
		CarouselItemInterval: time.Duration(cfg.CarouselItemInterval) * time.Millisecond,
	}, instagram.WithMetrics(metrics))

	exec := executor.New(st, igClient, executor.WithMetrics(metrics))

	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Invalid Redis settings:", err)
	}

	// Publishing is rate limited by the Graph client, more workers only
	// queue up behind the limiter
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				queue.QueueDefault: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(exec)

	mux := asynq.NewServeMux()
	processor.Register(mux)

	logger.Info("Starting asynq worker", "concurrency", 10, "queue", queue.QueueDefault, "redis", redisOpt.Addr)

	// Run blocks until SIGINT/SIGTERM and drains in-flight tasks
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
