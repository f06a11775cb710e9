// Package config provides configuration loading and validation.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// CORS
	AllowedOrigins []string

	// Rate Limiting
	RateLimitRPM   int
	RateLimitBurst int
	StatusRPM      int
	StatusBurst    int

	// Batch jobs
	MaxConcurrentJobs int

	// External tools
	YtDlpPath  string
	FFmpegPath string

	// Timeouts
	ResolveTimeout  time.Duration
	MetadataTimeout time.Duration
	DownloadTimeout time.Duration
	TagTimeout      time.Duration

	// Cleanup
	RetentionAge time.Duration
	CleanupGrace time.Duration

	// R2 archive mirror (optional)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string

	// Paths
	TempDir string
	DataDir string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg := &Config{
		// Server
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// CORS
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),

		// Rate Limiting
		RateLimitRPM:   getEnvInt("RATE_LIMIT_RPM", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 2),
		StatusRPM:      getEnvInt("STATUS_RATE_LIMIT_RPM", 60),
		StatusBurst:    getEnvInt("STATUS_RATE_LIMIT_BURST", 20),

		// Batch jobs
		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 2),

		// External tools
		YtDlpPath:  getEnv("YTDLP_PATH", "yt-dlp"),
		FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),

		// Timeouts
		ResolveTimeout:  getEnvDuration("RESOLVE_TIMEOUT", time.Minute),
		MetadataTimeout: getEnvDuration("METADATA_TIMEOUT", 30*time.Second),
		DownloadTimeout: getEnvDuration("DOWNLOAD_TIMEOUT", 10*time.Minute),
		TagTimeout:      getEnvDuration("TAG_TIMEOUT", 5*time.Minute),

		// Cleanup
		RetentionAge: getEnvDuration("RETENTION_AGE", 2*time.Hour),
		CleanupGrace: getEnvDuration("CLEANUP_GRACE", 10*time.Second),

		// R2
		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),

		// Paths
		TempDir: getEnv("TEMP_DIR", "./tmp"),
		DataDir: getEnv("DATA_DIR", "./data"),
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// R2Configured reports whether the optional archive mirror can be built.
func (c *Config) R2Configured() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" && c.R2BucketName != ""
}

// Helper functions

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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
