package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the agent gateway.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool
	LogLevel         string
	LogFormat        string

	WSWriteTimeout   time.Duration
	WSReadTimeout    time.Duration
	WSPingInterval   time.Duration
	WSOutboundBuffer int
	WSMaxMessageSize int64

	EngineMode          string
	EngineHTTPURL       string
	EngineHTTPTimeout   time.Duration
	EngineMaxRetries    int
	EngineMockStepDelay time.Duration
	EngineSystemPrompt  string

	DatabaseURL    string
	HistoryEnabled bool
}

func defaults() Config {
	return Config{
		BindAddr:          "0.0.0.0:8765",
		ShutdownTimeout:   15 * time.Second,
		MetricsNamespace:  "agentcore",
		LogLevel:          "info",
		LogFormat:         "text",
		WSWriteTimeout:    10 * time.Second,
		WSReadTimeout:     90 * time.Second,
		WSPingInterval:    30 * time.Second,
		WSOutboundBuffer:  256,
		WSMaxMessageSize:  2 << 20,
		EngineMode:        "auto",
		EngineHTTPTimeout: 5 * time.Minute,
		EngineMaxRetries:  2,
		HistoryEnabled:    true,
	}
}

// Load applies defaults, then the YAML file named by APP_CONFIG_FILE if set,
// then environment variables.
func Load() (Config, error) {
	cfg := defaults()

	if path := stringsTrimSpace("APP_CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.LogLevel = envOrDefault("APP_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOrDefault("APP_LOG_FORMAT", cfg.LogFormat)
	cfg.EngineMode = envOrDefault("ENGINE_MODE", cfg.EngineMode)
	cfg.EngineHTTPURL = envOrDefault("ENGINE_HTTP_URL", cfg.EngineHTTPURL)
	cfg.EngineSystemPrompt = envOrDefault("ENGINE_SYSTEM_PROMPT", cfg.EngineSystemPrompt)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"APP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"WS_WRITE_TIMEOUT", &cfg.WSWriteTimeout},
		{"WS_READ_TIMEOUT", &cfg.WSReadTimeout},
		{"WS_PING_INTERVAL", &cfg.WSPingInterval},
		{"ENGINE_HTTP_TIMEOUT", &cfg.EngineHTTPTimeout},
		{"ENGINE_MOCK_STEP_DELAY", &cfg.EngineMockStepDelay},
	}
	for _, d := range durations {
		*d.dst, err = durationFromEnv(d.key, *d.dst)
		if err != nil {
			return Config{}, err
		}
	}

	cfg.WSOutboundBuffer, err = intFromEnv("WS_OUTBOUND_BUFFER", cfg.WSOutboundBuffer)
	if err != nil {
		return Config{}, err
	}
	maxMessage, err := intFromEnv("WS_MAX_MESSAGE_BYTES", int(cfg.WSMaxMessageSize))
	if err != nil {
		return Config{}, err
	}
	cfg.WSMaxMessageSize = int64(maxMessage)
	cfg.EngineMaxRetries, err = intFromEnv("ENGINE_HTTP_MAX_RETRIES", cfg.EngineMaxRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryEnabled, err = boolFromEnv("HISTORY_ENABLED", cfg.HistoryEnabled)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if trimSpace(c.BindAddr) == "" {
		return fmt.Errorf("APP_BIND_ADDR must not be empty")
	}
	if c.WSWriteTimeout <= 0 {
		return fmt.Errorf("WS_WRITE_TIMEOUT must be positive")
	}
	if c.WSPingInterval <= 0 {
		return fmt.Errorf("WS_PING_INTERVAL must be positive")
	}
	if c.WSReadTimeout <= c.WSPingInterval {
		return fmt.Errorf("WS_READ_TIMEOUT must be greater than WS_PING_INTERVAL")
	}
	if c.WSOutboundBuffer <= 0 {
		return fmt.Errorf("WS_OUTBOUND_BUFFER must be positive")
	}
	if c.WSMaxMessageSize < 1024 {
		return fmt.Errorf("WS_MAX_MESSAGE_BYTES must be at least 1024")
	}
	if c.EngineMaxRetries < 0 {
		return fmt.Errorf("ENGINE_HTTP_MAX_RETRIES must be >= 0")
	}
	if c.EngineMockStepDelay < 0 {
		return fmt.Errorf("ENGINE_MOCK_STEP_DELAY must be >= 0")
	}
	switch strings.ToLower(c.EngineMode) {
	case "auto", "mock":
	case "http":
		if trimSpace(c.EngineHTTPURL) == "" {
			return fmt.Errorf("ENGINE_HTTP_URL is required when ENGINE_MODE=http")
		}
	default:
		return fmt.Errorf("ENGINE_MODE must be one of auto, http, mock")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	return strings.TrimSpace(v)
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v, err := parseBool(stringsTrimSpace(key))
	if err != nil {
		return false, fmt.Errorf("%s parse error: %w", key, err)
	}
	if v == nil {
		return fallback, nil
	}
	return *v, nil
}

// parseBool returns nil for an empty string.
func parseBool(s string) (*bool, error) {
	var b bool
	switch strings.ToLower(s) {
	case "":
		return nil, nil
	case "1", "true", "t", "yes", "y", "on":
		b = true
	case "0", "false", "f", "no", "n", "off":
		b = false
	default:
		return nil, fmt.Errorf("expected bool, got %q", s)
	}
	return &b, nil
}
