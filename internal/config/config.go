package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "veilink/libs/config"
)

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Port string `yaml:"port" env:"READINGS_HTTP_PORT"`
}

// DatabaseConfig holds Postgres settings.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn" env:"READINGS_POSTGRES_DSN"`
	MaxOpenConns int    `yaml:"maxOpenConns" env:"READINGS_POSTGRES_MAX_OPEN"`
	MaxIdleConns int    `yaml:"maxIdleConns" env:"READINGS_POSTGRES_MAX_IDLE"`
}

// RedisConfig holds the active-readings cache settings.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"READINGS_REDIS_ADDR"`
	Password string        `yaml:"password" env:"READINGS_REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"READINGS_REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" env:"READINGS_REDIS_TTL"`
}

// AuthConfig holds token settings.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwtSecret" env:"READINGS_JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"tokenTTL" env:"READINGS_TOKEN_TTL"`
}

// MeteringConfig holds the billing interval.
type MeteringConfig struct {
	TickInterval time.Duration `yaml:"tickInterval" env:"READINGS_TICK_INTERVAL"`
}

// PaymentsConfig points at the card capture provider.
type PaymentsConfig struct {
	BaseURL string        `yaml:"baseURL" env:"READINGS_PAYMENTS_URL"`
	Timeout time.Duration `yaml:"timeout" env:"READINGS_PAYMENTS_TIMEOUT"`
}

// Config defines readings service configuration.
type Config struct {
	LogLevel string         `yaml:"logLevel" env:"LOG_LEVEL"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Metering MeteringConfig `yaml:"metering"`
	Payments PaymentsConfig `yaml:"payments"`
}

// Load reads configuration via the shared helper and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP:     HTTPConfig{Port: "8080"},
		Redis:    RedisConfig{Addr: "localhost:6379", TTL: 24 * time.Hour},
		Auth:     AuthConfig{TokenTTL: 24 * time.Hour},
		Metering: MeteringConfig{TickInterval: 15 * time.Second},
		Payments: PaymentsConfig{Timeout: 10 * time.Second},
	}

	if err := libconfig.Load(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("config: jwt secret required")
	}
	if strings.TrimSpace(cfg.Payments.BaseURL) == "" {
		return nil, errors.New("config: payments base url required")
	}
	if cfg.Metering.TickInterval <= 0 || cfg.Metering.TickInterval > time.Minute {
		return nil, errors.New("config: tick interval must be within (0, 1m]")
	}
	if time.Minute%cfg.Metering.TickInterval != 0 {
		return nil, errors.New("config: tick interval must divide one minute evenly")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
