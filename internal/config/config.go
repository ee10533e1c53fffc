package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port    string
	DBPath  string
	APIKey  string
	BaseURL string

	GeoIPPath     string
	IPCheck       bool
	FlushInterval time.Duration
	BufferSize    int
	CacheSize     int

	CodeLength   int
	CodeAttempts int
	StoreTimeout time.Duration
	BcryptCost   int
}

func Load() (*Config, error) {
	apiKey := os.Getenv("PEBLY_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("PEBLY_API_KEY is required")
	}

	baseURL := os.Getenv("PEBLY_BASE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("PEBLY_BASE_URL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	cfg := &Config{
		Port:          envOrDefault("PEBLY_PORT", "8080"),
		DBPath:        envOrDefault("PEBLY_DB_PATH", "./pebly.db"),
		APIKey:        apiKey,
		BaseURL:       baseURL,
		GeoIPPath:     os.Getenv("PEBLY_GEOIP_PATH"),
		IPCheck:       os.Getenv("PEBLY_IPCHECK") == "1",
		FlushInterval: parseDuration("PEBLY_FLUSH_INTERVAL", 30*time.Second),
		BufferSize:    parseInt("PEBLY_BUFFER_SIZE", 50000),
		CacheSize:     parseInt("PEBLY_CACHE_SIZE", 10000),
		CodeLength:    parseInt("PEBLY_CODE_LENGTH", 7),
		CodeAttempts:  parseInt("PEBLY_CODE_ATTEMPTS", 10),
		StoreTimeout:  parseDuration("PEBLY_STORE_TIMEOUT", 2*time.Second),
		BcryptCost:    parseInt("PEBLY_BCRYPT_COST", 10),
	}

	if cfg.FlushInterval <= 0 {
		return nil, fmt.Errorf("PEBLY_FLUSH_INTERVAL must be positive")
	}
	if cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("PEBLY_BUFFER_SIZE must be positive")
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("PEBLY_CACHE_SIZE must be positive")
	}
	if cfg.CodeLength < 4 || cfg.CodeLength > 16 {
		return nil, fmt.Errorf("PEBLY_CODE_LENGTH must be between 4 and 16")
	}
	if cfg.CodeAttempts <= 0 {
		return nil, fmt.Errorf("PEBLY_CODE_ATTEMPTS must be positive")
	}
	if cfg.StoreTimeout <= 0 {
		return nil, fmt.Errorf("PEBLY_STORE_TIMEOUT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
