package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string
	Mongo    MongoConfig
	Redis    RedisConfig

	ProductCacheTTL time.Duration
	CartCacheTTL    time.Duration
	StockLockTTL    time.Duration
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	PoolSize int    `yaml:"pool_size"`
}

// fileConfig carries durations as strings ("30s", "1h") since yaml.v3 has no
// native time.Duration decoding.
type fileConfig struct {
	HTTPAddr string      `yaml:"http_addr"`
	Mongo    MongoConfig `yaml:"mongo"`
	Redis    RedisConfig `yaml:"redis"`

	ProductCacheTTL string `yaml:"product_cache_ttl"`
	CartCacheTTL    string `yaml:"cart_cache_ttl"`
	StockLockTTL    string `yaml:"stock_lock_ttl"`
}

// Load builds the configuration from defaults, an optional YAML file and
// environment overrides, in that order.
func Load(path string) (Config, error) {
	cfg := Config{
		HTTPAddr: ":8080",
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "shop",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 100,
		},
		ProductCacheTTL: time.Hour,
		CartCacheTTL:    30 * time.Minute,
		StockLockTTL:    5 * time.Minute,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		var file fileConfig
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
		if err := cfg.applyFile(file); err != nil {
			return Config{}, err
		}
	}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.Mongo.URI = getEnv("MONGO_URI", cfg.Mongo.URI)
	cfg.Mongo.Database = getEnv("MONGO_DB", cfg.Mongo.Database)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.ProductCacheTTL = getEnvDuration("PRODUCT_CACHE_TTL", cfg.ProductCacheTTL)
	cfg.CartCacheTTL = getEnvDuration("CART_CACHE_TTL", cfg.CartCacheTTL)
	cfg.StockLockTTL = getEnvDuration("STOCK_LOCK_TTL", cfg.StockLockTTL)

	return cfg, nil
}

func (c *Config) applyFile(file fileConfig) error {
	if file.HTTPAddr != "" {
		c.HTTPAddr = file.HTTPAddr
	}
	if file.Mongo.URI != "" {
		c.Mongo.URI = file.Mongo.URI
	}
	if file.Mongo.Database != "" {
		c.Mongo.Database = file.Mongo.Database
	}
	if file.Redis.Addr != "" {
		c.Redis.Addr = file.Redis.Addr
	}
	if file.Redis.PoolSize > 0 {
		c.Redis.PoolSize = file.Redis.PoolSize
	}

	for _, d := range []struct {
		raw string
		dst *time.Duration
		key string
	}{
		{file.ProductCacheTTL, &c.ProductCacheTTL, "product_cache_ttl"},
		{file.CartCacheTTL, &c.CartCacheTTL, "cart_cache_ttl"},
		{file.StockLockTTL, &c.StockLockTTL, "stock_lock_ttl"},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
