// Package config provides configuration for the trace server and viewer.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the crewtrace configuration.
type Config struct {
	// Server settings
	HTTPPort   int
	ViewerPort int

	// Database
	DatabaseURL string

	// Trace server the viewer polls
	TraceServerURL string

	// Polling
	PollInterval time.Duration
	FetchTimeout time.Duration

	// Traces still running after this long are failed by the server
	TraceTimeout time.Duration

	// WebSocket
	WSPingInterval   time.Duration
	WSWriteTimeout   time.Duration
	WSReadTimeout    time.Duration
	WSMaxMessageSize int64

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:         getEnvInt("HTTP_PORT", 8080),
		ViewerPort:       getEnvInt("VIEWER_PORT", 8090),
		DatabaseURL:      getEnv("DATABASE_URL", "file:crewtrace.db?cache=shared&mode=rwc"),
		TraceServerURL:   getEnv("TRACE_SERVER_URL", "http://localhost:8080"),
		PollInterval:     time.Duration(getEnvInt("POLL_INTERVAL_MS", 1000)) * time.Millisecond,
		FetchTimeout:     time.Duration(getEnvInt("FETCH_TIMEOUT_MS", 5000)) * time.Millisecond,
		TraceTimeout:     time.Duration(getEnvInt("TRACE_TIMEOUT_MS", 1800000)) * time.Millisecond,
		WSPingInterval:   time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WSWriteTimeout:   time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		WSReadTimeout:    time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		WSMaxMessageSize: int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 1<<20)),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
