package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Host string
	Env  string

	DBType     string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBPath     string

	// Storage configuration
	StorageBackend string // "disk", "memory", "s3"
	StoragePath    string // For disk backend
	TempDir        string // Temp directory for chunked uploads (defaults to system temp)
	S3Endpoint     string // Custom endpoint for S3-compatible services
	S3Region       string
	S3Bucket       string // S3 bucket name (required for s3 backend)
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool // Path-style addressing (required for MinIO and friends)

	// Token configuration
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int

	// Login lockout configuration
	MaxLoginAttempts int
	LockoutDuration  time.Duration

	// Upload configuration
	MaxUploadSize     int64
	MaxFilesPerUpload int

	// Chunked upload configuration
	UploadSessionMaxAge time.Duration // Sessions older than this are reclaimed
	UploadSweepInterval time.Duration // How often the sweeper runs
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Host:                getEnv("HOST", "0.0.0.0"),
		Env:                 getEnv("ENV", "development"),
		DBType:              getEnv("DB_TYPE", "sqlite"),
		DBHost:              getEnv("DB_HOST", "localhost"),
		DBPort:              getEnv("DB_PORT", "5432"),
		DBName:              getEnv("DB_NAME", "docstash"),
		DBUser:              getEnv("DB_USER", "docstash"),
		DBPassword:          getEnv("DB_PASSWORD", ""),
		DBPath:              getEnv("DB_PATH", "./data/docstash.db"),
		StorageBackend:      getEnv("STORAGE_BACKEND", "disk"),
		StoragePath:         getEnv("STORAGE_PATH", "./data/files"),
		TempDir:             getEnv("TEMP_DIR", ""),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),
		S3Region:            getEnv("S3_REGION", "us-east-1"),
		S3Bucket:            getEnv("S3_BUCKET", ""),
		S3AccessKey:         getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:         getEnv("S3_SECRET_KEY", ""),
		S3UsePathStyle:      getEnvBool("S3_USE_PATH_STYLE", false),
		JWTSecret:           getEnv("JWT_SECRET", "change_me_in_production"),
		AccessTokenTTL:      getEnvDuration("ACCESS_TOKEN_TTL", "24h"),
		RefreshTokenTTL:     getEnvDuration("REFRESH_TOKEN_TTL", "168h"),
		BcryptCost:          getEnvInt("BCRYPT_COST", 12),
		MaxLoginAttempts:    getEnvInt("MAX_LOGIN_ATTEMPTS", 5),
		LockoutDuration:     getEnvDuration("LOCKOUT_DURATION", "30m"),
		MaxUploadSize:       getEnvSize("MAX_UPLOAD_SIZE", "5M"),
		MaxFilesPerUpload:   getEnvInt("MAX_FILES_PER_UPLOAD", 10),
		UploadSessionMaxAge: getEnvDuration("UPLOAD_SESSION_MAX_AGE", "1h"),
		UploadSweepInterval: getEnvDuration("UPLOAD_SWEEP_INTERVAL", "1h"),
	}

	if cfg.MaxLoginAttempts < 1 {
		cfg.MaxLoginAttempts = 1
	}
	if cfg.Env == "production" && cfg.JWTSecret == "change_me_in_production" {
		return nil, fmt.Errorf("JWT_SECRET must be set in production")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// parseSize converts human-readable sizes (e.g., "5M", "500K", "1G") to bytes.
// Supports B, K/KB, M/MB, G/GB, T/TB (case-insensitive).
func parseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))

	// Bare number means bytes
	if val, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
		return val, nil
	}

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(sizeStr, "TB") || strings.HasSuffix(sizeStr, "T"):
		multiplier = 1024 * 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(strings.TrimSuffix(sizeStr, "TB"), "T")
	case strings.HasSuffix(sizeStr, "GB") || strings.HasSuffix(sizeStr, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(strings.TrimSuffix(sizeStr, "GB"), "G")
	case strings.HasSuffix(sizeStr, "MB") || strings.HasSuffix(sizeStr, "M"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(strings.TrimSuffix(sizeStr, "MB"), "M")
	case strings.HasSuffix(sizeStr, "KB") || strings.HasSuffix(sizeStr, "K"):
		multiplier = 1024
		numStr = strings.TrimSuffix(strings.TrimSuffix(sizeStr, "KB"), "K")
	case strings.HasSuffix(sizeStr, "B"):
		numStr = strings.TrimSuffix(sizeStr, "B")
	default:
		return 0, fmt.Errorf("invalid size format: %s (use B, K/KB, M/MB, G/GB, T/TB)", sizeStr)
	}

	// Supports decimals like "1.5G"
	val, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %s", sizeStr)
	}

	return int64(val * float64(multiplier)), nil
}

// getEnvSize parses size strings like "5M", "500K" or raw bytes
func getEnvSize(key string, defaultValue string) int64 {
	value := getEnv(key, defaultValue)
	size, err := parseSize(value)
	if err != nil {
		if defaultSize, defaultErr := parseSize(defaultValue); defaultErr == nil {
			return defaultSize
		}
		return 0
	}
	return size
}

// getEnvDuration parses duration strings like "24h", "30m"
func getEnvDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		if defaultDuration, defaultErr := time.ParseDuration(defaultValue); defaultErr == nil {
			return defaultDuration
		}
		return time.Hour
	}
	return duration
}
