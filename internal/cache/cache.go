// Package cache provides the byte caches backing the metadata resolver.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Cache defines the interface for all cache backends
type Cache interface {
	// Get retrieves a value from the cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache. A zero ttl falls back to the configured default;
	// a zero default keeps the value until it is deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache
	Delete(ctx context.Context, key string) error

	// Clear removes all values under the configured prefix
	Clear(ctx context.Context) error

	// Exists checks if a key exists in the cache
	Exists(ctx context.Context, key string) (bool, error)
}

// Config holds common configuration for cache backends
type Config struct {
	DefaultTTL time.Duration
	Prefix     string
}

// DefaultConfig returns the configuration used for metadata caching.
// Entries never expire on their own; invalidation is explicit.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 0,
		Prefix:     "gravitycar:metadata:",
	}
}

// ErrCacheMiss is returned when a key is not found in the cache
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

func missError(key string) error {
	return fmt.Errorf("%w: %s", ErrCacheMiss, key)
}

// GetValue reads key and decodes the msgpack payload into v
func GetValue(ctx context.Context, c Cache, key string, v interface{}) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode cached value %s: %w", key, err)
	}
	return nil
}

// SetValue msgpack-encodes v and stores it under key
func SetValue(ctx context.Context, c Cache, key string, v interface{}, ttl time.Duration) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode value %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}
