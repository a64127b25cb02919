package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Host               string
	Port               string
	UploadDir          string
	ZipDir             string
	BaseURL            string // empty: derive from each request
	DefaultArchiveName string
	RateLimitRPS       float64
	RateLimitBurst     int
	LogLevel           slog.Level
	ShutdownTimeout    time.Duration
}

// Load reads the configuration from the environment. With nothing set
// the server listens on 0.0.0.0:8113 and writes to ./uploads and ./zips.
func Load() *Config {
	return &Config{
		Host:               getEnv("HOST", "0.0.0.0"),
		Port:               getEnv("PORT", "8113"),
		UploadDir:          getEnv("UPLOAD_DIR", "uploads"),
		ZipDir:             getEnv("ZIP_DIR", "zips"),
		BaseURL:            strings.TrimRight(getEnv("BASE_URL", ""), "/"),
		DefaultArchiveName: getEnv("DEFAULT_ARCHIVE_NAME", "uploaded_files"),
		RateLimitRPS:       getEnvFloat64("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 20),
		LogLevel:           getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		ShutdownTimeout:    getEnvSeconds("SHUTDOWN_TIMEOUT_SECONDS", 30*time.Second),
	}
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat64(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if secs, err := strconv.ParseFloat(val, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return fallback
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	if val := os.Getenv(key); val != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(val)); err == nil {
			return level
		}
	}
	return fallback
}
