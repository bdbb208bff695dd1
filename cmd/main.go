package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"instagram-automation/internal/auth"
	"instagram-automation/internal/caption"
	"instagram-automation/internal/config"
	"instagram-automation/internal/executor"
	"instagram-automation/internal/instagram"
	"instagram-automation/internal/jobs"
	"instagram-automation/internal/logger"
	"instagram-automation/internal/media"
	"instagram-automation/internal/queue"
	"instagram-automation/internal/schedule"
	"instagram-automation/internal/store"
	"instagram-automation/internal/telemetry"
	"instagram-automation/middleware"
	"instagram-automation/routes"
	"instagram-automation/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// sweepGrace keeps the sweep away from posts whose timer is about to fire.
const sweepGrace = 2 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	if cfg.OTelEnabled {
		shutdownTracer, err := telemetry.InitTracer(cfg.ServiceName, cfg.OTelEndpoint, cfg.GinMode)
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

	// Storage
	var st store.Store
	switch cfg.StoreBackend {
	case config.StoreMemory:
		logger.Warn("Using in-memory store, nothing survives a restart")
		st = store.NewMemoryStore()
	default:
		mongoClient, err := config.ConnectMongoDB(cfg)
		if err != nil {
			log.Fatal("Failed to connect to MongoDB:", err)
		}
		st = store.NewMongoStore(mongoClient, cfg.DBName, metrics)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		st.Close(ctx)
	}()

	// Redis is optional: rate limiting and token revocation turn off without it
	var rdb *redis.Client
	if client, err := config.NewRedisClient(cfg); err != nil {
		logger.Warn("Redis unavailable, rate limiting and token revocation disabled", "error", err)
	} else {
		rdb = client
		defer rdb.Close()
	}

	igClient := instagram.NewClient(instagram.Config{
		BaseURL:              cfg.GraphAPIBaseURL,
		Timeout:              cfg.GraphTimeout(),
		RequestsPerSecond:    cfg.GraphAPIRPS,
		CarouselConcurrency:  cfg.CarouselConcurrency,
		CarouselItemInterval: time.Duration(cfg.CarouselItemInterval) * time.Millisecond,
	}, instagram.WithMetrics(metrics))

	exec := executor.New(st, igClient, executor.WithMetrics(metrics))

	// Dispatcher: in-process timers or the asynq worker fleet
	var (
		dispatcher services.Dispatcher
		pending    routes.PendingLister
	)
	switch cfg.JobBackend {
	case config.JobBackendAsynq:
		redisOpt, err := config.AsynqRedisOpt(cfg)
		if err != nil {
			log.Fatal("Invalid Redis settings for asynq:", err)
		}
		enqueuer := queue.NewEnqueuer(redisOpt)
		defer enqueuer.Close()
		dispatcher = enqueuer
		logger.Info("Posts are executed by the asynq worker", "redis", redisOpt.Addr)
	default:
		scheduler := jobs.NewScheduler(exec, jobs.WithMetrics(metrics))
		restoreCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if _, err := scheduler.Rehydrate(restoreCtx, st); err != nil {
			logger.Error("Failed to restore scheduled posts", "error", err)
		}
		cancel()
		if cfg.SweepInterval > 0 {
			if err := scheduler.StartSweep(time.Duration(cfg.SweepInterval)*time.Second, sweepGrace, st); err != nil {
				log.Fatal("Failed to start overdue sweep:", err)
			}
		}
		scheduler.Start()
		defer scheduler.Stop()
		dispatcher = scheduler
		pending = scheduler
	}

	// Media: uploads are stored locally and exposed through the first
	// provider that yields a public URL
	uploads := media.NewStorage(cfg.UploadDir, cfg.MaxFileSize, cfg.AllowedTypes)
	var providers []media.Provider
	if cfg.GCSBucketName != "" {
		gcsProvider, err := media.NewGCSProvider(context.Background(), media.GCSConfig{
			Bucket:        cfg.GCSBucketName,
			ProjectID:     cfg.GCSProjectID,
			Endpoint:      cfg.GCSEndpoint,
			PublicBaseURL: cfg.GCSPublicBaseURL,
		})
		if err != nil {
			logger.Warn("GCS upload disabled", "error", err)
		} else {
			providers = append(providers, gcsProvider)
		}
	}
	if cfg.S3BucketName != "" {
		s3Provider, err := media.NewS3Provider(media.S3Config{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Endpoint:        cfg.AWSEndpoint,
			Bucket:          cfg.S3BucketName,
			UseSSL:          cfg.S3UseSSL,
		})
		if err != nil {
			logger.Warn("S3 upload disabled", "error", err)
		} else {
			providers = append(providers, s3Provider)
		}
	}
	providers = append(providers,
		media.NewTunnelProvider(cfg.NgrokURL, cfg.NgrokAPIURL, cfg.Port),
		media.NewLocalProvider(cfg.PublicBaseURL),
	)
	resolver := media.NewResolver(media.NewChainProvider(providers...), "http://localhost:"+cfg.Port)

	composer := caption.NewComposer(st, cfg.HashtagCount)
	calculator := schedule.NewCalculator(st, schedule.WithDailyLimit(cfg.DailyPostLimit))

	handlers := routes.Handlers{
		Accounts: services.NewAccountService(st, igClient, services.ScheduleDefaults{
			Timezone:        cfg.DefaultTimezone,
			Slot1:           cfg.DefaultSlot1,
			Slot2:           cfg.DefaultSlot2,
			VarianceMinutes: cfg.DefaultVarianceMinutes,
		}),
		Posts:   services.NewPostService(st, composer, calculator, resolver, dispatcher, igClient, cfg.DefaultTimezone),
		Catalog: services.NewCatalogService(st),
		Uploads: uploads,
		Jobs:    pending,
	}

	var tokens *auth.Tokens
	if cfg.AuthEnabled {
		tokens, err = auth.NewTokens(cfg.JWTSecret, rdb)
		if err != nil {
			log.Fatal("Failed to initialize auth:", err)
		}
	}
	authMiddleware := middleware.NewAuthMiddleware(tokens)

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	if cfg.OTelEnabled {
		router.Use(middleware.TracingMiddleware(cfg.ServiceName))
		router.Use(middleware.EnrichTrace())
	}
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitReqs, cfg.RateLimitWindow))
	// Room for a full carousel plus form fields
	router.Use(middleware.RequestSizeLimit(cfg.MaxFileSize*10 + 1<<20))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "X-Request-ID"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"timestamp":   time.Now(),
			"store":       cfg.StoreBackend,
			"job_backend": cfg.JobBackend,
		})
	})

	routes.SetupAPIRoutes(router, handlers, authMiddleware)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "store", cfg.StoreBackend, "job_backend", cfg.JobBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
