package config

import (
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	OCREndpoint   string
	OCRTimeout    int // seconds
	Host          string
	Port          string
	ExportDir     string
	MaxUploadMB   int
	LogLevel      string
	DefaultAPIKey string
}

// Load reads configuration from the environment, providing sensible defaults.
func Load() Config {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()
	return Config{
		OCREndpoint:   getEnv("OCR_ENDPOINT", "http://localhost:8000/api/ocr-pdf"),
		OCRTimeout:    getEnvInt("OCR_TIMEOUT_SECONDS", 300),
		Host:          getEnv("HOST", "127.0.0.1"),
		Port:          getEnv("PORT", "8080"),
		ExportDir:     getEnv("EXPORT_DIR", "./exports"),
		MaxUploadMB:   getEnvInt("MAX_UPLOAD_MB", 50),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DefaultAPIKey: os.Getenv("MISTRAL_API_KEY"),
	}
}

// Addr is the host:port the server listens on.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// MaxUploadBytes is the upload limit in bytes.
func (c Config) MaxUploadBytes() int64 {
	if c.MaxUploadMB <= 0 {
		return 50 << 20
	}
	return int64(c.MaxUploadMB) << 20
}

// NewLogger creates the process logger at the configured level.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(ParseLogLevel(level))
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return logger
}

// ParseLogLevel maps a level name to a logrus level, defaulting to info.
func ParseLogLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
