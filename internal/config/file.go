package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config as a YAML document. Unset fields keep their
// current value.
type fileConfig struct {
	Server struct {
		BindAddr         string `yaml:"bind_addr"`
		ShutdownTimeout  string `yaml:"shutdown_timeout"`
		MetricsNamespace string `yaml:"metrics_namespace"`
		AllowAnyOrigin   *bool  `yaml:"allow_any_origin"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	WebSocket struct {
		WriteTimeout    string `yaml:"write_timeout"`
		ReadTimeout     string `yaml:"read_timeout"`
		PingInterval    string `yaml:"ping_interval"`
		OutboundBuffer  int    `yaml:"outbound_buffer"`
		MaxMessageBytes int64  `yaml:"max_message_bytes"`
	} `yaml:"websocket"`
	Engine struct {
		Mode          string `yaml:"mode"`
		HTTPURL       string `yaml:"http_url"`
		HTTPTimeout   string `yaml:"http_timeout"`
		MaxRetries    *int   `yaml:"max_retries"`
		MockStepDelay string `yaml:"mock_step_delay"`
		SystemPrompt  string `yaml:"system_prompt"`
	} `yaml:"engine"`
	History struct {
		Enabled     *bool  `yaml:"enabled"`
		DatabaseURL string `yaml:"database_url"`
	} `yaml:"history"`
}

var envRefPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the variable's value, or "" when unset.
func expandEnvVars(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envRefPattern.FindStringSubmatch(match)[1])
	})
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &fc); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	setString(&cfg.BindAddr, fc.Server.BindAddr)
	setString(&cfg.MetricsNamespace, fc.Server.MetricsNamespace)
	setString(&cfg.LogLevel, fc.Logging.Level)
	setString(&cfg.LogFormat, fc.Logging.Format)
	setString(&cfg.EngineMode, fc.Engine.Mode)
	setString(&cfg.EngineHTTPURL, fc.Engine.HTTPURL)
	setString(&cfg.EngineSystemPrompt, fc.Engine.SystemPrompt)
	setString(&cfg.DatabaseURL, fc.History.DatabaseURL)

	if fc.Server.AllowAnyOrigin != nil {
		cfg.AllowAnyOrigin = *fc.Server.AllowAnyOrigin
	}
	if fc.History.Enabled != nil {
		cfg.HistoryEnabled = *fc.History.Enabled
	}
	if fc.Engine.MaxRetries != nil {
		cfg.EngineMaxRetries = *fc.Engine.MaxRetries
	}
	if fc.WebSocket.OutboundBuffer != 0 {
		cfg.WSOutboundBuffer = fc.WebSocket.OutboundBuffer
	}
	if fc.WebSocket.MaxMessageBytes != 0 {
		cfg.WSMaxMessageSize = fc.WebSocket.MaxMessageBytes
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", fc.Server.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"websocket.write_timeout", fc.WebSocket.WriteTimeout, &cfg.WSWriteTimeout},
		{"websocket.read_timeout", fc.WebSocket.ReadTimeout, &cfg.WSReadTimeout},
		{"websocket.ping_interval", fc.WebSocket.PingInterval, &cfg.WSPingInterval},
		{"engine.http_timeout", fc.Engine.HTTPTimeout, &cfg.EngineHTTPTimeout},
		{"engine.mock_step_delay", fc.Engine.MockStepDelay, &cfg.EngineMockStepDelay},
	}
	for _, d := range durations {
		if trimSpace(d.raw) == "" {
			continue
		}
		v, err := time.ParseDuration(trimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", d.name, d.raw, err)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, v string) {
	if v = trimSpace(v); v != "" {
		*dst = v
	}
}
