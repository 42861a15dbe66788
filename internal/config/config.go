// Package config provides configuration management for the message service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure for the service.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Vector    VectorConfig
	LLM       LLMConfig
	RateLimit RateLimitConfig
	ChatActor ChatActorConfig
	Crypto    CryptoConfig
	Inference InferenceConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds Redis connection configuration, backing both the KV
// guard store and the rate limiter.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// VectorConfig holds the Qdrant connection used by the retrieve stage.
type VectorConfig struct {
	QdrantURL    string `mapstructure:"qdrant_url"`
	QdrantAPIKey string `mapstructure:"qdrant_api_key"`
}

// LLMConfig selects and configures the inference provider.
type LLMConfig struct {
	Provider string `mapstructure:"provider"` // "openai" | "ollama"
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
}

// RateLimitConfig controls the outbound send rate limiter.
type RateLimitConfig struct {
	FailOpen bool `mapstructure:"fail_open"`
}

// ChatActorConfig controls per-chat coordinator lifecycle.
type ChatActorConfig struct {
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
}

// CryptoConfig holds the envelope-encryption passphrase for gateway
// credentials at rest.
type CryptoConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

// InferenceConfig holds tunables for the retrieve/infer stages.
type InferenceConfig struct {
	HistoryWindow int `mapstructure:"history_window"`
}

// Load reads configuration from environment variables (MSG_SVC_ prefix)
// and an optional config.yaml, then validates it.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("MSG_SVC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("binding environment variables: %w", err)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/message-service/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", "15m")

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://aihubmix.com/api/v1")

	v.SetDefault("rate_limit.fail_open", true)

	v.SetDefault("chat_actor.idle_ttl", "10m")

	v.SetDefault("inference.history_window", 20)
}

// bindEnv registers every leaf config key with viper so that Unmarshal
// picks it up from the environment. AutomaticEnv alone only affects Get;
// Unmarshal only sees keys already known via SetDefault or BindEnv.
func bindEnv(v *viper.Viper) error {
	keys := []string{
		"server.port", "server.host", "server.read_timeout", "server.write_timeout", "server.shutdown_timeout",
		"database.host", "database.port", "database.name", "database.user", "database.password",
		"database.ssl_mode", "database.max_open_conns", "database.max_idle_conns", "database.conn_max_lifetime",
		"redis.host", "redis.port", "redis.password", "redis.db", "redis.pool_size",
		"vector.qdrant_url", "vector.qdrant_api_key",
		"llm.provider", "llm.base_url", "llm.api_key",
		"rate_limit.fail_open",
		"chat_actor.idle_ttl",
		"crypto.encryption_key",
		"inference.history_window",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

func (cfg *Config) validate() error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if cfg.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if cfg.Database.User == "" {
		return fmt.Errorf("database user is required")
	}

	if cfg.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}
	if cfg.Redis.Port <= 0 || cfg.Redis.Port > 65535 {
		return fmt.Errorf("invalid redis port: %d", cfg.Redis.Port)
	}

	switch cfg.LLM.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("invalid llm provider: %q", cfg.LLM.Provider)
	}
	if cfg.LLM.BaseURL == "" {
		return fmt.Errorf("llm base url is required")
	}

	if cfg.Vector.QdrantURL == "" {
		return fmt.Errorf("vector qdrant url is required")
	}

	if cfg.Crypto.EncryptionKey == "" {
		return fmt.Errorf("crypto encryption key is required")
	}

	if cfg.ChatActor.IdleTTL <= 0 {
		return fmt.Errorf("chat actor idle ttl must be positive")
	}
	if cfg.Inference.HistoryWindow <= 0 {
		return fmt.Errorf("inference history window must be positive")
	}

	return nil
}
