// Package config loads application configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Port   string
	AppEnv string

	// JWTSecret guards the upload API. Empty disables auth entirely; tokens
	// are minted by the surrounding platform, this service only verifies.
	JWTSecret string

	// DatabaseURL enables the upload audit log. Empty disables it.
	DatabaseURL string

	// Object storage (S3-compatible: MinIO locally, ArvanCloud/AWS in
	// production). StorageEndpoints is ordered: first entry is the primary
	// region, the rest are failover candidates.
	StorageEndpoints []string
	StorageRegion    string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool
	// StoragePublicBase optionally overrides the endpoint-derived public URL,
	// e.g. "https://cdn.storypress.io/images".
	StoragePublicBase string
	// StorageEnsureBucket creates the bucket with a public-read policy at
	// startup when true.
	StorageEnsureBucket bool

	// Upload pipeline tuning.
	UploadDir            string
	UploadProbeTimeout   time.Duration
	UploadFetchTimeout   time.Duration
	UploadOverallTimeout time.Duration
	UploadMaxAttempts    int
	SignedURLExpiry      time.Duration
}

// Load reads configuration from a .env file (if present) and environment
// variables.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading from environment")
	}

	return &Config{
		Port:      getEnv("PORT", "8080"),
		AppEnv:    getEnv("APP_ENV", "development"),
		JWTSecret: getEnv("JWT_SECRET", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		StorageEndpoints:    splitList(getEnv("STORAGE_ENDPOINTS", "localhost:9000")),
		StorageRegion:       getEnv("STORAGE_REGION", "us-east-1"),
		StorageAccessKey:    getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
		StorageSecretKey:    getEnv("STORAGE_SECRET_KEY", "minioadmin"),
		StorageBucket:       getEnv("STORAGE_BUCKET", "images"),
		StorageUseSSL:       getEnv("STORAGE_USE_SSL", "false") == "true",
		StoragePublicBase:   getEnv("STORAGE_PUBLIC_BASE", ""),
		StorageEnsureBucket: getEnv("STORAGE_ENSURE_BUCKET", "true") == "true",

		UploadDir:            getEnv("UPLOAD_DIR", "public/uploads"),
		UploadProbeTimeout:   getDuration("UPLOAD_PROBE_TIMEOUT", 5*time.Second),
		UploadFetchTimeout:   getDuration("UPLOAD_FETCH_TIMEOUT", 10*time.Second),
		UploadOverallTimeout: getDuration("UPLOAD_OVERALL_TIMEOUT", 15*time.Second),
		UploadMaxAttempts:    getInt("UPLOAD_MAX_ATTEMPTS", 3),
		SignedURLExpiry:      getDuration("SIGNED_URL_EXPIRY", 7*24*time.Hour),
	}
}

// IsProduction returns true when the app is running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config: invalid duration %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: invalid integer %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return n
}

// splitList parses a comma-separated env value into trimmed entries,
// preserving order.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
