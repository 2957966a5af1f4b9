package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL        string `env:"DATABASE_URL,required" validate:"required"`
	MerchantConfigPath string `env:"MERCHANT_CONFIG_PATH" envDefault:"merchant.yaml" validate:"required"`

	StripeSecretKey string `env:"STRIPE_SECRET_KEY,required" validate:"required"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis"`

	EncryptionKey string `env:"ENCRYPTION_KEY,required" validate:"required,len=32"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"order-events"`

	QuoteModuleTimeout time.Duration `env:"QUOTE_MODULE_TIMEOUT" envDefault:"10s" validate:"min=1s"`
	QuoteCacheTTL      time.Duration `env:"QUOTE_CACHE_TTL" envDefault:"5m"`
	CaptureInterval    time.Duration `env:"CAPTURE_INTERVAL" envDefault:"1m" validate:"min=1s"`
	RefundWindowDays   int           `env:"REFUND_WINDOW_DAYS" envDefault:"90" validate:"min=1"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	brokers := make([]string, 0, len(c.KafkaBrokers))
	for _, broker := range c.KafkaBrokers {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	c.KafkaBrokers = brokers
	if len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.KafkaTopic) == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}

// RefundWindow converts the configured day count to a duration.
func (c *Config) RefundWindow() time.Duration {
	return time.Duration(c.RefundWindowDays) * 24 * time.Hour
}
