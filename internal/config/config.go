package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// maxHashtagCount is the platform's per-caption tag limit.
const maxHashtagCount = 20

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"

	JobBackendLocal = "local"
	JobBackendAsynq = "asynq"
)

type Config struct {
	Port         string
	GinMode      string
	CORSOrigins  []string
	MaxFileSize  int64
	AllowedTypes []string

	// Storage
	StoreBackend string
	MongoURI     string
	DBName       string

	// Redis Configuration
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RateLimitReqs   int
	RateLimitWindow int

	// API auth
	AuthEnabled bool
	JWTSecret   string

	// Graph API
	GraphAPIBaseURL      string
	GraphAPITimeout      int
	GraphAPIRPS          float64
	CarouselConcurrency  int
	CarouselItemInterval int // milliseconds between carousel child calls

	// Scheduling defaults
	DefaultTimezone        string
	DefaultSlot1           string
	DefaultSlot2           string
	DefaultVarianceMinutes int
	DailyPostLimit         int
	HashtagCount           int
	JobBackend             string
	SweepInterval          int // seconds, 0 disables

	// Media
	UploadDir     string
	PublicBaseURL string
	NgrokURL      string
	NgrokAPIURL   string

	// Google Cloud Storage, credentials via GOOGLE_APPLICATION_CREDENTIALS
	GCSBucketName    string
	GCSProjectID     string
	GCSEndpoint      string
	GCSPublicBaseURL string

	// S3 / MinIO
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpoint        string
	S3BucketName       string
	S3UseSSL           bool

	// Telemetry
	OTelEnabled  bool
	OTelEndpoint string
	ServiceName  string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:         getEnv("PORT", "5555"),
		GinMode:      getEnv("GIN_MODE", "debug"),
		CORSOrigins:  strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5555"), ","),
		MaxFileSize:  getEnvInt64("MAX_FILE_SIZE", 16777216), // 16MB per upload, same as the platform limit for images
		AllowedTypes: strings.Split(getEnv("ALLOWED_FILE_TYPES", "image/jpeg,image/png"), ","),

		StoreBackend: getEnv("STORE_BACKEND", StoreMongo),
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017/instagram_automation"),
		DBName:       getEnv("DB_NAME", "instagram_automation"),

		// Redis Configuration
		RedisURL:        getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		AuthEnabled: getEnvBool("AUTH_ENABLED", false),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		GraphAPIBaseURL:      getEnv("GRAPH_API_BASE_URL", "https://graph.facebook.com/v18.0"),
		GraphAPITimeout:      getEnvInt("GRAPH_API_TIMEOUT", 30),
		GraphAPIRPS:          getEnvFloat64("GRAPH_API_RPS", 5),
		CarouselConcurrency:  getEnvInt("CAROUSEL_CONCURRENCY", 1),
		CarouselItemInterval: getEnvInt("CAROUSEL_ITEM_INTERVAL_MS", 1000),

		DefaultTimezone:        getEnv("DEFAULT_TIMEZONE", "Asia/Kolkata"),
		DefaultSlot1:           getEnv("DEFAULT_SLOT_1", "13:00"),
		DefaultSlot2:           getEnv("DEFAULT_SLOT_2", "22:00"),
		DefaultVarianceMinutes: getEnvInt("DEFAULT_VARIANCE_MINUTES", 15),
		DailyPostLimit:         getEnvInt("DAILY_POST_LIMIT", 25),
		HashtagCount:           getEnvInt("HASHTAG_COUNT", 20),
		JobBackend:             getEnv("JOB_BACKEND", JobBackendLocal),
		SweepInterval:          getEnvInt("SWEEP_INTERVAL", 300),

		UploadDir:     getEnv("UPLOAD_DIR", "./uploads"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		NgrokURL:      getEnv("NGROK_URL", ""),
		NgrokAPIURL:   getEnv("NGROK_API_URL", "http://127.0.0.1:4040/api/tunnels"),

		GCSBucketName:    getEnv("GCS_BUCKET_NAME", ""),
		GCSProjectID:     getEnv("GCS_PROJECT_ID", ""),
		GCSEndpoint:      getEnv("GCS_ENDPOINT", ""),
		GCSPublicBaseURL: getEnv("GCS_PUBLIC_BASE_URL", ""),

		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpoint:        getEnv("AWS_ENDPOINT", ""),
		S3BucketName:       getEnv("S3_BUCKET_NAME", ""),
		S3UseSSL:           getEnvBool("S3_USE_SSL", true),

		OTelEnabled:  getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint: getEnv("OTEL_ENDPOINT", "localhost:4317"),
		ServiceName:  getEnv("OTEL_SERVICE_NAME", "instagram-automation"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects unknown backends and non-positive limits.
func (c *Config) Validate() error {
	if c.StoreBackend != StoreMongo && c.StoreBackend != StoreMemory {
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreMongo, StoreMemory, c.StoreBackend)
	}
	if c.JobBackend != JobBackendLocal && c.JobBackend != JobBackendAsynq {
		return fmt.Errorf("JOB_BACKEND must be %q or %q, got %q", JobBackendLocal, JobBackendAsynq, c.JobBackend)
	}
	if c.JobBackend == JobBackendAsynq && c.StoreBackend == StoreMemory {
		return fmt.Errorf("JOB_BACKEND=asynq needs a shared store, STORE_BACKEND=memory is process local")
	}
	if c.AuthEnabled && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is required and must be at least 32 characters when AUTH_ENABLED=true")
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("DEFAULT_TIMEZONE %q is not a valid IANA zone: %v", c.DefaultTimezone, err)
	}
	if c.GraphAPITimeout <= 0 || c.GraphAPIRPS <= 0 || c.CarouselConcurrency <= 0 {
		return fmt.Errorf("GRAPH_API_TIMEOUT, GRAPH_API_RPS and CAROUSEL_CONCURRENCY must be positive")
	}
	if c.HashtagCount > maxHashtagCount {
		return fmt.Errorf("HASHTAG_COUNT must be at most %d, got %d", maxHashtagCount, c.HashtagCount)
	}
	if c.DailyPostLimit <= 0 || c.HashtagCount < 0 || c.DefaultVarianceMinutes < 0 {
		return fmt.Errorf("DAILY_POST_LIMIT must be positive, HASHTAG_COUNT and DEFAULT_VARIANCE_MINUTES non-negative")
	}
	return nil
}

// GraphTimeout is the per-call timeout for Graph API requests.
func (c *Config) GraphTimeout() time.Duration {
	return time.Duration(c.GraphAPITimeout) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
