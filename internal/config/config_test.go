package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PEBLY_API_KEY", "PEBLY_BASE_URL", "PEBLY_PORT", "PEBLY_DB_PATH",
		"PEBLY_GEOIP_PATH", "PEBLY_IPCHECK", "PEBLY_FLUSH_INTERVAL",
		"PEBLY_BUFFER_SIZE", "PEBLY_CACHE_SIZE", "PEBLY_CODE_LENGTH",
		"PEBLY_CODE_ATTEMPTS", "PEBLY_STORE_TIMEOUT", "PEBLY_BCRYPT_COST",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_MinimalValid(t *testing.T) {
	clearEnv(t)
	t.Setenv("PEBLY_API_KEY", "secret")
	t.Setenv("PEBLY_BASE_URL", "https://peb.ly")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.DBPath != "./pebly.db" {
		t.Errorf("dbpath = %q, want %q", cfg.DBPath, "./pebly.db")
	}
	if cfg.FlushInterval != 30*time.Second {
		t.Errorf("flush interval = %v, want %v", cfg.FlushInterval, 30*time.Second)
	}
	if cfg.BufferSize != 50000 {
		t.Errorf("buffer size = %d, want %d", cfg.BufferSize, 50000)
	}
	if cfg.CacheSize != 10000 {
		t.Errorf("cache size = %d, want %d", cfg.CacheSize, 10000)
	}
	if cfg.CodeLength != 7 {
		t.Errorf("code length = %d, want 7", cfg.CodeLength)
	}
	if cfg.StoreTimeout != 2*time.Second {
		t.Errorf("store timeout = %v, want %v", cfg.StoreTimeout, 2*time.Second)
	}
}

func TestLoad_AllFieldsOverridden(t *testing.T) {
	clearEnv(t)
	t.Setenv("PEBLY_API_KEY", "s3cret")
	t.Setenv("PEBLY_BASE_URL", "https://peb.ly/")
	t.Setenv("PEBLY_PORT", "9090")
	t.Setenv("PEBLY_DB_PATH", "/tmp/test.db")
	t.Setenv("PEBLY_GEOIP_PATH", "/data/geo.mmdb")
	t.Setenv("PEBLY_IPCHECK", "1")
	t.Setenv("PEBLY_FLUSH_INTERVAL", "10s")
	t.Setenv("PEBLY_BUFFER_SIZE", "500")
	t.Setenv("PEBLY_CACHE_SIZE", "200")
	t.Setenv("PEBLY_CODE_LENGTH", "9")
	t.Setenv("PEBLY_CODE_ATTEMPTS", "3")
	t.Setenv("PEBLY_STORE_TIMEOUT", "500ms")
	t.Setenv("PEBLY_BCRYPT_COST", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("port = %q, want %q", cfg.Port, "9090")
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("dbpath = %q, want %q", cfg.DBPath, "/tmp/test.db")
	}
	if cfg.APIKey != "s3cret" {
		t.Errorf("api key = %q, want %q", cfg.APIKey, "s3cret")
	}
	if cfg.BaseURL != "https://peb.ly" {
		t.Errorf("base url = %q, want trailing slash stripped", cfg.BaseURL)
	}
	if cfg.GeoIPPath != "/data/geo.mmdb" {
		t.Errorf("geoip = %q, want %q", cfg.GeoIPPath, "/data/geo.mmdb")
	}
	if !cfg.IPCheck {
		t.Error("ipcheck = false, want true")
	}
	if cfg.FlushInterval != 10*time.Second {
		t.Errorf("flush = %v, want %v", cfg.FlushInterval, 10*time.Second)
	}
	if cfg.BufferSize != 500 {
		t.Errorf("buffer = %d, want %d", cfg.BufferSize, 500)
	}
	if cfg.CacheSize != 200 {
		t.Errorf("cache = %d, want %d", cfg.CacheSize, 200)
	}
	if cfg.CodeLength != 9 {
		t.Errorf("code length = %d, want 9", cfg.CodeLength)
	}
	if cfg.CodeAttempts != 3 {
		t.Errorf("code attempts = %d, want 3", cfg.CodeAttempts)
	}
	if cfg.StoreTimeout != 500*time.Millisecond {
		t.Errorf("store timeout = %v, want %v", cfg.StoreTimeout, 500*time.Millisecond)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("bcrypt cost = %d, want 12", cfg.BcryptCost)
	}
}

func TestLoad_MissingAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("PEBLY_BASE_URL", "https://peb.ly")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
	if err.Error() != "PEBLY_API_KEY is required" {
		t.Errorf("error = %q, want %q", err.Error(), "PEBLY_API_KEY is required")
	}
}

func TestLoad_MissingBaseURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("PEBLY_API_KEY", "secret")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing base url")
	}
	if err.Error() != "PEBLY_BASE_URL is required" {
		t.Errorf("error = %q, want %q", err.Error(), "PEBLY_BASE_URL is required")
	}
}

func TestLoad_ZeroBufferSize(t *testing.T) {
	clearEnv(t)
	t.Setenv("PEBLY_API_KEY", "secret")
	t.Setenv("PEBLY_BASE_URL", "https://peb.ly")
	t.Setenv("PEBLY_BUFFER_SIZE", "0")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for zero buffer size")
	}
	if err.Error() != "PEBLY_BUFFER_SIZE must be positive" {
		t.Errorf("error = %q, want %q", err.Error(), "PEBLY_BUFFER_SIZE must be positive")
	}
}

func TestLoad_NegativeFlushInterval(t *testing.T) {
	clearEnv(t)
	t.Setenv("PEBLY_API_KEY", "secret")
	t.Setenv("PEBLY_BASE_URL", "https://peb.ly")
	t.Setenv("PEBLY_FLUSH_INTERVAL", "-1s")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for negative flush interval")
	}
	if err.Error() != "PEBLY_FLUSH_INTERVAL must be positive" {
		t.Errorf("error = %q, want %q", err.Error(), "PEBLY_FLUSH_INTERVAL must be positive")
	}
}

func TestLoad_CodeLengthBounds(t *testing.T) {
	clearEnv(t)
	t.Setenv("PEBLY_API_KEY", "secret")
	t.Setenv("PEBLY_BASE_URL", "https://peb.ly")

	t.Setenv("PEBLY_CODE_LENGTH", "3")
	if _, err := Load(); err == nil {
		t.Error("expected error for code length 3")
	}
	t.Setenv("PEBLY_CODE_LENGTH", "17")
	if _, err := Load(); err == nil {
		t.Error("expected error for code length 17")
	}
	t.Setenv("PEBLY_CODE_LENGTH", "4")
	if _, err := Load(); err != nil {
		t.Errorf("unexpected error for code length 4: %v", err)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("PEBLY_API_KEY", "secret")
	t.Setenv("PEBLY_BASE_URL", "https://peb.ly")
	t.Setenv("PEBLY_FLUSH_INTERVAL", "notaduration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.FlushInterval != 30*time.Second {
		t.Errorf("flush = %v, want %v (default)", cfg.FlushInterval, 30*time.Second)
	}
}
