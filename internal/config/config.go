// Package config loads and validates the Archie agent configuration.
// Configuration is read from ~/.archie/config.yaml and can be overridden by
// ARCHIE_* environment variables. The loaded Config is constructed once and
// injected into the pipeline; nothing in the pipeline reads ambient state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration for the Archie agent.
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Tools   ToolsConfig   `mapstructure:"tools" yaml:"tools"`
	User    UserConfig    `mapstructure:"user" yaml:"user"`
	Traces  TracesConfig  `mapstructure:"traces" yaml:"traces"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// LLMConfig configures the language-model backend used by the reasoning engine.
type LLMConfig struct {
	// Endpoint is the OpenAI-compatible API base URL.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// APIKey authenticates against the endpoint.
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	// Model is the model identifier sent with every request.
	Model string `mapstructure:"model" yaml:"model"`
	// MaxTokens bounds response length.
	MaxTokens int `mapstructure:"max_tokens" yaml:"max_tokens"`
	// Temperature controls sampling randomness (0.0-1.0).
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	// Timeout applies per call to the model backend.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// MaxAttempts bounds transport retries before the request fails.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	// RetryBackoff is the initial delay between transport retries; it doubles
	// after each attempt.
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
}

// BackendConfig configures the external conversation backend.
type BackendConfig struct {
	// Endpoint is the backend service base URL.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// HistoryWindow is the number of recent turns fetched per request.
	HistoryWindow int `mapstructure:"history_window" yaml:"history_window"`
	// Timeout applies per backend call.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// SyncTimeout bounds the detached persistence write after a response
	// has been finalized.
	SyncTimeout time.Duration `mapstructure:"sync_timeout" yaml:"sync_timeout"`
}

// AgentConfig configures pipeline behaviour.
type AgentConfig struct {
	// DefaultPersona is used when a request carries no persona override.
	DefaultPersona string `mapstructure:"default_persona" yaml:"default_persona"`
	// DefaultFormat is the response format when the request has no hint
	// ("plain", "markdown", or "ui").
	DefaultFormat string `mapstructure:"default_format" yaml:"default_format"`
	// ToolConcurrency is the worker ceiling for one tool-dispatch round.
	ToolConcurrency int `mapstructure:"tool_concurrency" yaml:"tool_concurrency"`
	// ToolTimeout applies per tool invocation.
	ToolTimeout time.Duration `mapstructure:"tool_timeout" yaml:"tool_timeout"`
}

// ToolsConfig configures the external tool services. A tool with an empty
// endpoint is not registered.
type ToolsConfig struct {
	// WeatherEndpoint is the base URL of the weather service.
	WeatherEndpoint string `mapstructure:"weather_endpoint" yaml:"weather_endpoint"`
	// CurrencyEndpoint is the base URL of the currency conversion service.
	CurrencyEndpoint string `mapstructure:"currency_endpoint" yaml:"currency_endpoint"`
}

// UserConfig carries the process-wide user facts injected into prompts.
type UserConfig struct {
	DisplayName    string `mapstructure:"display_name" yaml:"display_name"`
	Timezone       string `mapstructure:"timezone" yaml:"timezone"`
	Locale         string `mapstructure:"locale" yaml:"locale"`
	Units          string `mapstructure:"units" yaml:"units"`
	Currency       string `mapstructure:"currency" yaml:"currency"`
	DefaultCity    string `mapstructure:"default_city" yaml:"default_city"`
	DefaultCountry string `mapstructure:"default_country" yaml:"default_country"`
}

// TracesConfig configures the optional local reasoning-trace archive.
type TracesConfig struct {
	// Enabled turns the archive on.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// DBPath is the SQLite database path for archived traces.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `mapstructure:"level" yaml:"level"`
	// Console enables human-readable console output instead of JSON.
	Console bool `mapstructure:"console" yaml:"console"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Endpoint:     "https://api.openai.com/v1",
			Model:        "gpt-4.1",
			MaxTokens:    4096,
			Temperature:  0.7,
			Timeout:      2 * time.Minute,
			MaxAttempts:  3,
			RetryBackoff: 500 * time.Millisecond,
		},
		Backend: BackendConfig{
			Endpoint:      "http://127.0.0.1:8085",
			HistoryWindow: 20,
			Timeout:       10 * time.Second,
			SyncTimeout:   5 * time.Second,
		},
		Agent: AgentConfig{
			DefaultPersona:  "business",
			DefaultFormat:   "plain",
			ToolConcurrency: 4,
			ToolTimeout:     15 * time.Second,
		},
		Tools: ToolsConfig{
			WeatherEndpoint:  "http://127.0.0.1:8090",
			CurrencyEndpoint: "http://127.0.0.1:8091",
		},
		User: UserConfig{
			DisplayName:    "there",
			Timezone:       "UTC",
			Locale:         "en",
			Units:          "metric",
			Currency:       "EUR",
			DefaultCity:    "Berlin",
			DefaultCountry: "Germany",
		},
		Traces: TracesConfig{
			Enabled: false,
			DBPath:  "~/.archie/traces.db",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads configuration from the default location (~/.archie/config.yaml)
// and merges environment variable overrides. If no config file exists, one is
// created with default values.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home directory: %w", err)
	}
	return LoadFromPath(filepath.Join(homeDir, ".archie", "config.yaml"))
}

// LoadFromPath reads configuration from a specific file path.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example override: ARCHIE_LLM_API_KEY
	v.SetEnvPrefix("ARCHIE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Traces.DBPath = expandPath(cfg.Traces.DBPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.LLM.Endpoint == "" {
		return fmt.Errorf("llm.endpoint cannot be empty")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model cannot be empty")
	}
	if c.LLM.MaxAttempts < 1 {
		return fmt.Errorf("llm.max_attempts must be at least 1")
	}
	if c.Backend.Endpoint == "" {
		return fmt.Errorf("backend.endpoint cannot be empty")
	}
	if c.Backend.HistoryWindow < 0 {
		return fmt.Errorf("backend.history_window cannot be negative")
	}
	if c.Agent.DefaultPersona == "" {
		return fmt.Errorf("agent.default_persona cannot be empty")
	}
	switch c.Agent.DefaultFormat {
	case "plain", "markdown", "ui":
	default:
		return fmt.Errorf("invalid agent.default_format %q, must be one of: plain, markdown, ui", c.Agent.DefaultFormat)
	}
	if c.Agent.ToolConcurrency < 1 {
		return fmt.Errorf("agent.tool_concurrency must be at least 1")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}
	if c.Traces.Enabled && c.Traces.DBPath == "" {
		return fmt.Errorf("traces.db_path required when traces.enabled is true")
	}
	return nil
}

func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
