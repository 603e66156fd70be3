package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var (
	once sync.Once
	cfg  *Config
)

// Config holds every environment-tunable knob the service recognizes.
type Config struct {
	Port     int
	Debug    bool
	LogLevel string

	MaxUploadSizeMB int64
	DefaultLanguage string
	OCRTimeout      time.Duration
	JBIG2Path       string

	UploadsDir   string
	ProcessedDir string
	TempDir      string

	CleanupInterval time.Duration
	MaxStorageAge   time.Duration
}

// Get loads the configuration once, reading a .env file when present and
// falling back to process environment variables.
func Get() *Config {
	once.Do(func() {
		if err := godotenv.Load(); err != nil {
			log.Printf("Warning: .env file not found, falling back to environment variables")
		}
		cfg = Load()
	})
	return cfg
}

// Load reads the configuration from the current environment. Tests use it
// directly to avoid the singleton.
func Load() *Config {
	return &Config{
		Port:     getNumberEnv("PORT", 8080),
		Debug:    getBoolEnv("DEBUG", false),
		LogLevel: getStringEnv("LOG_LEVEL", "info"),

		MaxUploadSizeMB: int64(getNumberEnv("MAX_UPLOAD_SIZE", 100)),
		DefaultLanguage: getStringEnv("DEFAULT_LANGUAGE", "eng"),
		OCRTimeout:      getMillisEnv("OCR_TIMEOUT", 10*time.Minute),
		JBIG2Path:       getStringEnv("JBIG2_PATH", "/usr/bin/jbig2"),

		UploadsDir:   getStringEnv("UPLOADS_DIR", "./uploads"),
		ProcessedDir: getStringEnv("PROCESSED_DIR", "./processed"),
		TempDir:      getStringEnv("TEMP_DIR", "./tmp"),

		CleanupInterval: getMillisEnv("CLEANUP_INTERVAL", time.Hour),
		MaxStorageAge:   getMillisEnv("MAX_STORAGE_AGE", 72*time.Hour),
	}
}

// Validate returns the list of configuration problems, empty when the
// configuration is usable.
func (c *Config) Validate() []string {
	var errs []string

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid PORT: %d", c.Port))
	}
	if c.MaxUploadSizeMB <= 0 {
		errs = append(errs, fmt.Sprintf("invalid MAX_UPLOAD_SIZE: %d", c.MaxUploadSizeMB))
	}
	if c.OCRTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("invalid OCR_TIMEOUT: %s", c.OCRTimeout))
	}
	if c.CleanupInterval <= 0 {
		errs = append(errs, fmt.Sprintf("invalid CLEANUP_INTERVAL: %s", c.CleanupInterval))
	}
	if c.MaxStorageAge <= 0 {
		errs = append(errs, fmt.Sprintf("invalid MAX_STORAGE_AGE: %s", c.MaxStorageAge))
	}

	return errs
}

// MaxUploadBytes converts the MB limit to bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadSizeMB * 1024 * 1024
}

func getStringEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getNumberEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "y":
		return true
	default:
		return false
	}
}

// getMillisEnv reads a duration expressed in milliseconds.
func getMillisEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return time.Duration(parsed) * time.Millisecond
}
