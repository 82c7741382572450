package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config represents the Gravitycar configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
	Schema   SchemaConfig   `mapstructure:"schema"`
	Hooks    HooksConfig    `mapstructure:"hooks"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// MetadataConfig points at the entity and relationship metadata
type MetadataConfig struct {
	Dir string `mapstructure:"dir"`
}

// CacheConfig selects the shared metadata cache
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Prefix        string        `mapstructure:"prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// SchemaConfig represents schema synthesis configuration
type SchemaConfig struct {
	Name string `mapstructure:"name"`
}

// HooksConfig sizes the worker pool that runs asynchronous lifecycle hooks
type HooksConfig struct {
	Workers int `mapstructure:"workers"`
	Buffer  int `mapstructure:"buffer"`
}

// Cache backends
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// EnvPrefix prefixes every environment override, e.g. GRAVITYCAR_LOG_LEVEL
const EnvPrefix = "GRAVITYCAR"

// Load reads gravitycar.yml or gravitycar.yaml from the working directory.
// A missing file is not an error; defaults and environment variables apply.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads the configuration from path, or searches the working directory when path is empty
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database.url", "")
	v.SetDefault("metadata.dir", "metadata")
	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.prefix", "gravitycar:metadata:")
	v.SetDefault("cache.ttl", "0s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("schema.name", "public")
	v.SetDefault("hooks.workers", 4)
	v.SetDefault("hooks.buffer", 100)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gravitycar")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// DATABASE_URL is honoured for parity with other tooling
	if err := v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind database url: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// InProject checks if the current directory holds a Gravitycar configuration
func InProject() bool {
	for _, name := range []string{"gravitycar.yml", "gravitycar.yaml"} {
		if _, err := os.Stat(name); err == nil {
			return true
		}
	}
	return false
}

// GetProjectRoot walks up from the working directory to the first gravitycar.yml
func GetProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, name := range []string{"gravitycar.yml", "gravitycar.yaml"} {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not in a Gravitycar project (no gravitycar.yml found)")
		}
		dir = parent
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Cache.Backend {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if cfg.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required when cache.backend is %q", CacheRedis)
		}
	default:
		return fmt.Errorf("cache.backend must be one of none, memory, redis, got: %s", cfg.Cache.Backend)
	}

	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got: %s", cfg.Cache.TTL)
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log.level is invalid: %w", err)
	}

	if cfg.Metadata.Dir == "" {
		return fmt.Errorf("metadata.dir must not be empty")
	}
	if cfg.Schema.Name == "" {
		return fmt.Errorf("schema.name must not be empty")
	}
	if cfg.Hooks.Workers < 0 || cfg.Hooks.Buffer < 0 {
		return fmt.Errorf("hooks.workers and hooks.buffer must not be negative")
	}
	return nil
}
