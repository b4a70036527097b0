package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Credits    CreditsConfig
	Enrichment EnrichmentConfig
	SMTP       SMTPConfig
	Encryption EncryptionConfig

	Secrets Secrets
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name" validate:"required"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret" validate:"required,min=32"`
	ExpiryHours int    `mapstructure:"expiry_hours" validate:"required,gt=0"`
}

// CreditsConfig prices the lifecycle. Costs are whole credits.
type CreditsConfig struct {
	PerResult  int64 `mapstructure:"per_result" validate:"required,gt=0"`
	PerContact int64 `mapstructure:"per_contact" validate:"required,gt=0"`
}

type EnrichmentConfig struct {
	ProviderURL       string  `mapstructure:"provider_url"`
	ProviderKey       string  `mapstructure:"provider_key"`
	PollAttempts      int     `mapstructure:"poll_attempts"`
	PollDelaySeconds  int     `mapstructure:"poll_delay_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

func (c EnrichmentConfig) PollDelay() time.Duration {
	if c.PollDelaySeconds <= 0 {
		return time.Second
	}
	return time.Duration(c.PollDelaySeconds) * time.Second
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type EncryptionConfig struct {
	Secret string `mapstructure:"secret" validate:"required,min=16"`
}

// Secrets overlays sensitive values from the environment so they never live
// in config files. An empty value keeps what the file provided.
type Secrets struct {
	DatabasePassword string `envconfig:"DB_PASSWORD"`
	JWTSecret        string `envconfig:"JWT_SECRET"`
	EncryptionSecret string `envconfig:"ENCRYPTION_SECRET"`
	ProviderKey      string `envconfig:"ENRICHMENT_API_KEY"`
	SMTPPassword     string `envconfig:"SMTP_PASSWORD"`
	RedisURL         string `envconfig:"REDIS_URL"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.timeoutSeconds", 30)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("credits.per_result", 1)
	viper.SetDefault("credits.per_contact", 10)
	viper.SetDefault("enrichment.poll_attempts", 30)
	viper.SetDefault("enrichment.poll_delay_seconds", 1)
	viper.SetDefault("enrichment.requests_per_second", 1)
	viper.SetDefault("jwt.expiry_hours", 24)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &config.Secrets); err != nil {
		return nil, fmt.Errorf("failed to read secrets from environment: %w", err)
	}
	config.applySecrets()

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applySecrets() {
	if c.Secrets.DatabasePassword != "" {
		c.Database.Password = c.Secrets.DatabasePassword
	}
	if c.Secrets.JWTSecret != "" {
		c.JWT.Secret = c.Secrets.JWTSecret
	}
	if c.Secrets.EncryptionSecret != "" {
		c.Encryption.Secret = c.Secrets.EncryptionSecret
	}
	if c.Secrets.ProviderKey != "" {
		c.Enrichment.ProviderKey = c.Secrets.ProviderKey
	}
	if c.Secrets.SMTPPassword != "" {
		c.SMTP.Password = c.Secrets.SMTPPassword
	}
	if c.Secrets.RedisURL != "" {
		c.Redis.URL = c.Secrets.RedisURL
	}
}
