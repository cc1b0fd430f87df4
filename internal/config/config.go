// Package config loads server and CLI settings from the environment, optionally
// layered over a YAML file named by MCP_ACTIVITY_CONFIG.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment keys.
const (
	EnvConfigFile       = "MCP_ACTIVITY_CONFIG"
	EnvLogLevel         = "MCP_ACTIVITY_LOG_LEVEL"
	EnvLogDir           = "MCP_ACTIVITY_LOG_DIR"
	EnvHTTPPort         = "MCP_ACTIVITY_HTTP_PORT"
	EnvGRPCPort         = "MCP_ACTIVITY_GRPC_PORT"
	EnvPoolURL          = "MM_SESSION_POOL_URL"
	EnvConnectionsFile  = "MM_CONNECTIONS_FILE"
	EnvPostgresDSN      = "POSTGRES_DSN"
	EnvClickHouseDSN    = "CLICKHOUSE_DSN"
	EnvAPIKeyHash       = "ACTIVITY_API_KEY_HASH"
	EnvRegistryCacheTTL = "MCP_ACTIVITY_REGISTRY_CACHE_TTL_S"
)

// Config holds every setting. Empty paths mean the package defaults of the
// component that consumes them.
type Config struct {
	LogLevel        string `yaml:"log_level"`
	LogDir          string `yaml:"log_dir"`
	HTTPPort        string `yaml:"http_port"`
	GRPCPort        string `yaml:"grpc_port"`
	PoolURL         string `yaml:"session_pool_url"`
	ConnectionsFile string `yaml:"connections_file"`
	PostgresDSN     string `yaml:"postgres_dsn"`
	ClickHouseDSN   string `yaml:"clickhouse_dsn"`
	APIKeyHash      string `yaml:"api_key_hash"`
	// RegistryCacheTTLSeconds bounds staleness of Postgres registry lookups.
	RegistryCacheTTLSeconds int `yaml:"registry_cache_ttl_s"`
}

// Defaults returns the built-in settings.
func Defaults() *Config {
	return &Config{
		LogLevel:                "info",
		HTTPPort:                "8090",
		GRPCPort:                "50070",
		PoolURL:                 "http://localhost:5200",
		RegistryCacheTTLSeconds: 30,
	}
}

// Load reads the file named by MCP_ACTIVITY_CONFIG, if any, and applies
// environment overrides.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv(EnvConfigFile))
}

// LoadFrom layers defaults, the YAML file at path (skipped when empty) and the
// environment, in that order. ${VAR} references in the file are expanded.
func LoadFrom(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = envOrDefault(EnvLogLevel, c.LogLevel)
	c.LogDir = envOrDefault(EnvLogDir, c.LogDir)
	c.HTTPPort = envOrDefault(EnvHTTPPort, c.HTTPPort)
	c.GRPCPort = envOrDefault(EnvGRPCPort, c.GRPCPort)
	c.PoolURL = envOrDefault(EnvPoolURL, c.PoolURL)
	c.ConnectionsFile = envOrDefault(EnvConnectionsFile, c.ConnectionsFile)
	c.PostgresDSN = envOrDefault(EnvPostgresDSN, c.PostgresDSN)
	c.ClickHouseDSN = envOrDefault(EnvClickHouseDSN, c.ClickHouseDSN)
	c.APIKeyHash = envOrDefault(EnvAPIKeyHash, c.APIKeyHash)
	c.RegistryCacheTTLSeconds = envOrDefaultInt(EnvRegistryCacheTTL, c.RegistryCacheTTLSeconds)
}

// Validate checks ports and durations.
func (c *Config) Validate() error {
	var errs []error
	for name, port := range map[string]string{"http_port": c.HTTPPort, "grpc_port": c.GRPCPort} {
		if p, err := strconv.Atoi(port); err != nil || p <= 0 || p > 65535 {
			errs = append(errs, fmt.Errorf("invalid %s %q", name, port))
		}
	}
	if c.RegistryCacheTTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("invalid registry_cache_ttl_s %d", c.RegistryCacheTTLSeconds))
	}
	if c.PoolURL == "" {
		errs = append(errs, errors.New("session_pool_url is required"))
	}
	return errors.Join(errs...)
}

// RegistryCacheTTL returns the registry cache TTL as a duration.
func (c *Config) RegistryCacheTTL() time.Duration {
	return time.Duration(c.RegistryCacheTTLSeconds) * time.Second
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
