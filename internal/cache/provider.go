package cache

// Package cache provides transient caching for shipping quote results.

import (
	"context"
	"fmt"
	"time"
)

// Provider defines the interface for short-lived key/value caching
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider()
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

// QuoteKey builds the cache key for a shipping quote request. The
// fingerprint must cover everything that changes the quote: packages,
// destination, and order total.
func QuoteKey(merchantID, fingerprint string) string {
	return fmt.Sprintf("quote:%s:%s", merchantID, fingerprint)
}
