// Package config provides application configuration management
// with validation and environment parsing
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	Environment string
	Port        string
	Host        string
	Sheet       SheetConfig
	Form        FormConfig
	Layout      LayoutConfig
	Submission  SubmissionConfig
	Export      ExportConfig
	Storage     StorageConfig
	Cache       CacheConfig
	CORS        CORSConfig
	Logging     *LoggingConfig
	Server      *ServerConfig
}

// SheetConfig describes the published spreadsheet the mosaic is read from
type SheetConfig struct {
	URL             string
	LabelColumn     string
	ColorColumn     string
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
}

// FormConfig describes the form submissions are posted to
type FormConfig struct {
	URL        string
	LabelField string
	ColorField string
	Timeout    time.Duration
}

// LayoutConfig holds mosaic layout settings
type LayoutConfig struct {
	Policy   string
	CellSize int
	MaxDelay time.Duration
}

// SubmissionConfig holds submission gate settings
type SubmissionConfig struct {
	DuplicatePolicy string
	RateLimit       float64
	RateBurst       int
}

// ExportConfig holds card export settings
type ExportConfig struct {
	Capability     string
	ShareURLExpiry time.Duration
	CardWidth      int
	CardHeight     int
	Scale          int
}

// StorageConfig holds object storage configuration for shared cards
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
	Region          string
}

// CacheConfig holds Redis/Valkey configuration for the snapshot mirror
type CacheConfig struct {
	Enabled         bool
	Address         string
	Password        string
	Database        int
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	DefaultTTL      time.Duration
}

// CORSConfig holds allowed origins for the JSON API
type CORSConfig struct {
	AllowedOrigins []string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load creates a new configuration from environment variables with validation
func Load() (*Config, error) {
	storageEnabled, _ := strconv.ParseBool(getEnv("STORAGE_ENABLED", "false"))
	useSSL, _ := strconv.ParseBool(getEnv("STORAGE_USE_SSL", "false"))
	cacheEnabled, _ := strconv.ParseBool(getEnv("CACHE_ENABLED", "false"))

	config := &Config{
		Environment: getEnv("GO_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		Host:        getEnv("HOST", "localhost"),
		Sheet: SheetConfig{
			URL:             getEnv("SHEET_URL", ""),
			LabelColumn:     getEnv("SHEET_LABEL_COLUMN", "name"),
			ColorColumn:     getEnv("SHEET_COLOR_COLUMN", "colorCode"),
			RefreshInterval: parseDuration(getEnv("REFRESH_INTERVAL", "5s")),
			FetchTimeout:    parseDuration(getEnv("FETCH_TIMEOUT", "10s")),
		},
		Form: FormConfig{
			URL:        getEnv("FORM_URL", ""),
			LabelField: getEnv("FORM_LABEL_FIELD", "entry.1208945866"),
			ColorField: getEnv("FORM_COLOR_FIELD", "entry.184357747"),
			Timeout:    parseDuration(getEnv("FORM_TIMEOUT", "10s")),
		},
		Layout: LayoutConfig{
			Policy:   getEnv("LAYOUT_POLICY", "grid"),
			CellSize: parseInt(getEnv("LAYOUT_CELL_SIZE", "15")),
			MaxDelay: parseDuration(getEnv("LAYOUT_MAX_DELAY", "5s")),
		},
		Submission: SubmissionConfig{
			DuplicatePolicy: getEnv("DUPLICATE_POLICY", "show"),
			RateLimit:       parseFloat(getEnv("SUBMIT_RATE_LIMIT", "1")),
			RateBurst:       parseInt(getEnv("SUBMIT_RATE_BURST", "5")),
		},
		Export: ExportConfig{
			Capability:     getEnv("EXPORT_CAPABILITY", "auto"),
			ShareURLExpiry: parseDuration(getEnv("SHARE_URL_EXPIRY", "24h")),
			CardWidth:      parseInt(getEnv("CARD_WIDTH", "300")),
			CardHeight:     parseInt(getEnv("CARD_HEIGHT", "420")),
			Scale:          parseInt(getEnv("CARD_SCALE", "2")),
		},
		Storage: StorageConfig{
			Enabled:         storageEnabled,
			Endpoint:        getEnv("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnv("STORAGE_SECRET_KEY", "minioadmin"),
			BucketName:      getEnv("STORAGE_BUCKET", "color-cards"),
			UseSSL:          useSSL,
			Region:          getEnv("STORAGE_REGION", "us-east-1"),
		},
		Cache: CacheConfig{
			Enabled:         cacheEnabled,
			Address:         getEnv("CACHE_ADDRESS", "localhost:6379"),
			Password:        getEnv("CACHE_PASSWORD", ""),
			Database:        parseInt(getEnv("CACHE_DATABASE", "0")),
			MaxRetries:      parseInt(getEnv("CACHE_MAX_RETRIES", "3")),
			MinRetryBackoff: parseDuration(getEnv("CACHE_MIN_RETRY_BACKOFF", "8ms")),
			MaxRetryBackoff: parseDuration(getEnv("CACHE_MAX_RETRY_BACKOFF", "512ms")),
			DialTimeout:     parseDuration(getEnv("CACHE_DIAL_TIMEOUT", "5s")),
			ReadTimeout:     parseDuration(getEnv("CACHE_READ_TIMEOUT", "3s")),
			WriteTimeout:    parseDuration(getEnv("CACHE_WRITE_TIMEOUT", "3s")),
			PoolSize:        parseInt(getEnv("CACHE_POOL_SIZE", "10")),
			MinIdleConns:    parseInt(getEnv("CACHE_MIN_IDLE_CONNS", "2")),
			PoolTimeout:     parseDuration(getEnv("CACHE_POOL_TIMEOUT", "4s")),
			DefaultTTL:      parseDuration(getEnv("CACHE_DEFAULT_TTL", "24h")),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		},
		Logging: &LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Server: &ServerConfig{
			ReadTimeout:     parseDuration(getEnv("READ_TIMEOUT", "10s")),
			WriteTimeout:    parseDuration(getEnv("WRITE_TIMEOUT", "15s")),
			IdleTimeout:     parseDuration(getEnv("SERVER_TIMEOUT", "60s")),
			ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "30s")),
		},
	}

	// Validate configuration before returning
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	if c.Host == "localhost" || c.Host == "" {
		return ":" + c.Port
	}
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration returns 0 for unparsable values so validation can report them
func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return d
}

// parseInt returns -1 for unparsable values so validation can report them
func parseInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return -1
	}
	return n
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return -1
	}
	return f
}

// parseList parses comma-separated strings into slices
func parseList(listStr string) []string {
	if listStr == "" {
		return []string{}
	}

	items := strings.Split(listStr, ",")
	result := make([]string, 0, len(items))

	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
