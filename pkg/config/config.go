package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and nowhere else
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Forecast pipeline
	Forecast   ForecastConfig
	Storage    StorageConfig
	ModelCache ModelCacheConfig
	Worker     WorkerConfig
	Dispatch   DispatchConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	StatementTimeout time.Duration // 0 = server default
}

// ForecastConfig holds the segment pipeline settings
type ForecastConfig struct {
	ModelConfigPath       string // YAML model definition, empty = built-in defaults
	HorizonMonths         int    // months predicted past the last observed month
	MinHistoryMonths      int    // distinct months required before a segment trains
	OverallMunicipalityID int64  // storage id of the Overall aggregate segment
	NotListedCommodity    string // commodity name excluded from full runs
	TrainConcurrency      int    // segments trained in parallel within one batch
	SeriesFloorMonths     int    // 0 = use all history
}

// StorageConfig holds model artifact storage configuration
type StorageConfig struct {
	Backend           string // fs, s3
	Dir               string // fs root, also used as the S3 key prefix
	Endpoint          string
	Bucket            string
	Region            string
	AccessKey         string
	SecretKey         string
	UsePathStyle      bool
	RequestsPerSecond float64 // 0 = unthrottled
}

// ModelCacheConfig holds the in-process model artifact cache settings
type ModelCacheConfig struct {
	Size int
	TTL  time.Duration
}

// WorkerConfig holds retraining worker configuration
type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	JobTimeout   time.Duration
}

// DispatchConfig holds retraining dispatcher configuration
type DispatchConfig struct {
	DedupTTL         time.Duration
	FullRunSchedule  string // cron expression with seconds
	FullRunLimit     int    // manual full runs per actor per window
	FullRunWindow    time.Duration
	NotifyWebhookURL string
	JobRetentionDays int
}

// Load reads configuration from environment variables
// ⭐ SSOT: the only function that calls os.Getenv()
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "harvest"),
			User:            getEnv("DB_USER", "harvest"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},

		Forecast: ForecastConfig{
			ModelConfigPath:       getEnv("MODEL_CONFIG_PATH", ""),
			HorizonMonths:         getEnvAsInt("FORECAST_HORIZON_MONTHS", 12),
			MinHistoryMonths:      getEnvAsInt("FORECAST_MIN_HISTORY_MONTHS", 2),
			OverallMunicipalityID: int64(getEnvAsInt("OVERALL_MUNICIPALITY_ID", 14)),
			NotListedCommodity:    getEnv("NOT_LISTED_COMMODITY", "Not Listed"),
			TrainConcurrency:      getEnvAsInt("FORECAST_TRAIN_CONCURRENCY", 4),
			SeriesFloorMonths:     getEnvAsInt("FORECAST_SERIES_FLOOR_MONTHS", 0),
		},

		Storage: StorageConfig{
			Backend:           getEnv("MODEL_STORE_BACKEND", "fs"),
			Dir:               getEnv("MODEL_STORE_DIR", "forecast_models"),
			Endpoint:          getEnv("MODEL_STORE_S3_ENDPOINT", ""),
			Bucket:            getEnv("MODEL_STORE_S3_BUCKET", ""),
			Region:            getEnv("MODEL_STORE_S3_REGION", "us-east-1"),
			AccessKey:         getEnv("MODEL_STORE_S3_ACCESS_KEY", ""),
			SecretKey:         getEnv("MODEL_STORE_S3_SECRET_KEY", ""),
			UsePathStyle:      getEnvAsBool("MODEL_STORE_S3_PATH_STYLE", true),
			RequestsPerSecond: getEnvAsFloat("MODEL_STORE_S3_RPS", 0),
		},

		ModelCache: ModelCacheConfig{
			Size: getEnvAsInt("MODEL_CACHE_SIZE", 512),
			TTL:  getEnvAsDuration("MODEL_CACHE_TTL", "10m"),
		},

		Worker: WorkerConfig{
			Concurrency:  getEnvAsInt("WORKER_CONCURRENCY", 2),
			PollInterval: getEnvAsDuration("WORKER_POLL_INTERVAL", "2s"),
			JobTimeout:   getEnvAsDuration("WORKER_JOB_TIMEOUT", "30m"),
		},

		Dispatch: DispatchConfig{
			DedupTTL:         getEnvAsDuration("DISPATCH_DEDUP_TTL", "24h"),
			FullRunSchedule:  getEnv("FULL_RUN_SCHEDULE", "0 0 2 * * *"),
			FullRunLimit:     getEnvAsInt("FULL_RUN_LIMIT", 3),
			FullRunWindow:    getEnvAsDuration("FULL_RUN_WINDOW", "1h"),
			NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
			JobRetentionDays: getEnvAsInt("JOB_RETENTION_DAYS", 30),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Database URL is required
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Forecast.HorizonMonths < 1 {
		return fmt.Errorf("FORECAST_HORIZON_MONTHS must be at least 1")
	}

	// A single point cannot define a trend
	if c.Forecast.MinHistoryMonths < 2 {
		return fmt.Errorf("FORECAST_MIN_HISTORY_MONTHS must be at least 2")
	}

	if c.Forecast.TrainConcurrency < 1 {
		return fmt.Errorf("FORECAST_TRAIN_CONCURRENCY must be at least 1")
	}

	switch c.Storage.Backend {
	case "fs":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("MODEL_STORE_S3_BUCKET is required for the s3 backend")
		}
	default:
		return fmt.Errorf("MODEL_STORE_BACKEND must be one of: fs, s3")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env",         // Current directory
		"backend/.env", // From project root
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
