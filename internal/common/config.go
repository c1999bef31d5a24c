package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Cache     CacheConfig
	Images    ImageStoreConfig
	Providers []ProviderConfig
	Worker    WorkerConfig
	Pipeline  PipelineConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// CacheConfig holds the extraction response cache configuration.
type CacheConfig struct {
	Addr string
	TTL  time.Duration
}

// ImageStoreConfig selects and configures the image store backend.
type ImageStoreConfig struct {
	Backend   string // "fs" | "s3"
	BaseDir   string
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// ProviderConfig configures one extraction/classification backend.
// All providers speak the OpenAI chat-completions dialect; diversity is
// base URL + model, not code.
type ProviderConfig struct {
	Name        string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// WorkerConfig holds the background worker pool configuration.
type WorkerConfig struct {
	Workers       int
	QueueSize     int
	JobTimeout    time.Duration
	RetryAttempts int
	RetryBackoffs []time.Duration
	PollInterval  time.Duration
	StaleAfter    time.Duration
}

// PipelineConfig holds the knobs consumed inside a single job run.
type PipelineConfig struct {
	MaxImagesPerJob int
	MinConfidence   float32
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Cache: CacheConfig{
			Addr: getEnv("CACHE_ADDR", "localhost:6379"),
			TTL:  getEnvAsDuration("CACHE_TTL", time.Hour),
		},
		Images: ImageStoreConfig{
			Backend:   getEnv("IMAGE_STORE", "fs"),
			BaseDir:   getEnv("IMAGE_DIR", "./uploads"),
			Bucket:    getEnv("S3_BUCKET", ""),
			Region:    getEnv("S3_REGION", "us-east-1"),
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
		},
		Providers: loadProviders(),
		Worker: WorkerConfig{
			Workers:       getEnvAsInt("WORKER_COUNT", 4),
			QueueSize:     getEnvAsInt("WORKER_QUEUE_SIZE", 256),
			JobTimeout:    getEnvAsDuration("JOB_TIMEOUT", 3*time.Minute),
			RetryAttempts: getEnvAsInt("JOB_RETRY_ATTEMPTS", 3),
			RetryBackoffs: getEnvAsDurations("JOB_RETRY_BACKOFFS", []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}),
			PollInterval:  getEnvAsDuration("JOB_POLL_INTERVAL", 5*time.Second),
			StaleAfter:    getEnvAsDuration("JOB_STALE_AFTER", 15*time.Minute),
		},
		Pipeline: PipelineConfig{
			MaxImagesPerJob: getEnvAsInt("MAX_IMAGES_PER_JOB", 10),
			MinConfidence:   getEnvAsFloat32("MIN_CONFIDENCE", 0.60),
		},
	}
}

// loadProviders reads the ordered provider list from EXTRACT_PROVIDERS
// (comma-separated names) plus per-provider <NAME>_BASE_URL, <NAME>_API_KEY,
// <NAME>_MODEL variables. Order in EXTRACT_PROVIDERS is fallback priority.
func loadProviders() []ProviderConfig {
	names := strings.Split(getEnv("EXTRACT_PROVIDERS", "OPENAI"), ",")
	out := make([]ProviderConfig, 0, len(names))
	for _, raw := range names {
		name := strings.ToUpper(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		out = append(out, ProviderConfig{
			Name:        strings.ToLower(name),
			BaseURL:     getEnv(name+"_BASE_URL", "https://api.openai.com/v1"),
			APIKey:      getEnv(name+"_API_KEY", ""),
			Model:       getEnv(name+"_MODEL", "gpt-4o-mini"),
			Temperature: getEnvAsFloat32(name+"_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration(name+"_TIMEOUT", 45*time.Second),
		})
	}
	return out
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsDurations(key string, defaultValue []time.Duration) []time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []time.Duration
	for _, part := range strings.Split(value, ",") {
		d, err := time.ParseDuration(strings.TrimSpace(part))
		if err != nil {
			return defaultValue
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if len(c.Providers) == 0 {
		return NewAppError("CONFIG_ERROR", "EXTRACT_PROVIDERS must name at least one provider", ErrInvalidInput)
	}
	for _, p := range c.Providers {
		if p.APIKey == "" {
			return NewAppError("CONFIG_ERROR", fmt.Sprintf("%s_API_KEY is required", strings.ToUpper(p.Name)), ErrInvalidInput)
		}
	}
	if c.Images.Backend == "s3" && c.Images.Bucket == "" {
		return NewAppError("CONFIG_ERROR", "S3_BUCKET is required when IMAGE_STORE=s3", ErrInvalidInput)
	}
	return nil
}
