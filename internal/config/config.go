package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr               string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout  time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel           string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat          string        `mapstructure:"log_format" yaml:"log_format"` // console or json
	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	HandshakeTimeout   time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	RateLimitPerSecond float64       `mapstructure:"rate_limit_per_second" yaml:"rate_limit_per_second"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
	AllowedOrigins     []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	JWT      JWTConfig      `mapstructure:"jwt" yaml:"jwt"`
	AI       AIConfig       `mapstructure:"ai" yaml:"ai"`
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // sqlite or postgres
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// JWTConfig must match the REST session layer so one credential works for both.
type JWTConfig struct {
	Secret   string        `mapstructure:"secret" yaml:"secret"`
	Issuer   string        `mapstructure:"issuer" yaml:"issuer"`
	Audience string        `mapstructure:"audience" yaml:"audience"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// AIConfig configures the AI responder.
type AIConfig struct {
	Provider        string        `mapstructure:"provider" yaml:"provider"` // ollama, openai or none
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	Model           string        `mapstructure:"model" yaml:"model"`
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Temperature     float64       `mapstructure:"temperature" yaml:"temperature"`
	SystemPrompt    string        `mapstructure:"system_prompt" yaml:"system_prompt"`
	FallbackMessage string        `mapstructure:"fallback_message" yaml:"fallback_message"`
}

// DefaultFallbackMessage replaces the AI answer when the model fails or times out.
const DefaultFallbackMessage = "I apologize, but I encountered an error processing your request. Please try again."

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		MaxMessageBytes:    1 << 20,
		HandshakeTimeout:   10 * time.Second,
		RateLimitPerSecond: 20,
		RateLimitBurst:     40,
		AllowedOrigins:     []string{"localhost:3000"},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "medchat.db",
		},
		JWT: JWTConfig{
			Secret: "change-me",
			TTL:    24 * time.Hour,
		},
		AI: AIConfig{
			Provider:        "ollama",
			BaseURL:         "http://localhost:11434",
			Model:           "biomistral-7b",
			Timeout:         20 * time.Second,
			Temperature:     0.2,
			SystemPrompt:    "You are a clinical decision support assistant. You do not diagnose. Answer concisely and recommend consulting a medical professional.",
			FallbackMessage: DefaultFallbackMessage,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Database.Driver != "" {
		c.Database.Driver = other.Database.Driver
	}
	if other.Database.DSN != "" {
		c.Database.DSN = other.Database.DSN
	}
	if other.JWT.Secret != "" {
		c.JWT.Secret = other.JWT.Secret
	}
	if other.AI.Provider != "" {
		c.AI.Provider = other.AI.Provider
	}
	if other.AI.Model != "" {
		c.AI.Model = other.AI.Model
	}
	if other.AI.Timeout != 0 {
		c.AI.Timeout = other.AI.Timeout
	}
}
