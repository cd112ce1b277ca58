// Package config handles application configuration loading from an optional
// YAML file and environment variables. It provides a centralized Config
// struct used across the application.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends for component lists.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all application configuration values.
type Config struct {
	// Server settings
	Host string
	Port string
	Env  string // "development", "production", "testing"

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (Redis-compatible cache and pub/sub)
	ValkeyEnabled  bool
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string

	// Sync settings
	Store          string        // StorePostgres or StoreMemory
	Seed           bool          // create a demo site on an empty database
	CommandTimeout time.Duration // how long a client waits for a reply
	SyncChannel    string        // Valkey pub/sub channel shared by instances
	HandshakeLimit int           // websocket handshakes per client per minute, 0 disables
	ComponentTypes []string      // extra component types accepted besides the built-in ones
}

// Load reads configuration, applying in order: development defaults, the
// YAML file named by SITEKIT_CONFIG, then environment variables. Returns an
// error if values are invalid or critical values are missing in production.
func Load() (*Config, error) {
	cfg := &Config{
		Host: "0.0.0.0",
		Port: "8080",
		Env:  "development",

		DBHost:     "localhost",
		DBPort:     "5432",
		DBUser:     "sitekit",
		DBPassword: "changeme",
		DBName:     "sitekit",

		ValkeyEnabled: true,
		ValkeyHost:    "localhost",
		ValkeyPort:    "6379",

		Store:          StorePostgres,
		Seed:           true,
		CommandTimeout: 10 * time.Second,
		SyncChannel:    "sitekit:sync",
		HandshakeLimit: 60,
	}

	if path := os.Getenv("SITEKIT_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if cfg.Store != StorePostgres && cfg.Store != StoreMemory {
		return nil, fmt.Errorf("SITEKIT_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, cfg.Store)
	}
	if cfg.CommandTimeout <= 0 {
		return nil, fmt.Errorf("SITEKIT_COMMAND_TIMEOUT must be positive, got %s", cfg.CommandTimeout)
	}

	if cfg.Env == "production" {
		if cfg.Store == StorePostgres && cfg.DBPassword == "changeme" {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
		if cfg.Store == StoreMemory {
			return nil, fmt.Errorf("SITEKIT_STORE=memory is not allowed in production")
		}
	}

	return cfg, nil
}

func (c *Config) loadEnv() error {
	c.Host = envOrDefault("APP_HOST", c.Host)
	c.Port = envOrDefault("APP_PORT", c.Port)
	c.Env = envOrDefault("APP_ENV", c.Env)

	c.DBHost = envOrDefault("POSTGRES_HOST", c.DBHost)
	c.DBPort = envOrDefault("POSTGRES_PORT", c.DBPort)
	c.DBUser = envOrDefault("POSTGRES_USER", c.DBUser)
	c.DBPassword = envOrDefault("POSTGRES_PASSWORD", c.DBPassword)
	c.DBName = envOrDefault("POSTGRES_DB", c.DBName)

	c.ValkeyHost = envOrDefault("VALKEY_HOST", c.ValkeyHost)
	c.ValkeyPort = envOrDefault("VALKEY_PORT", c.ValkeyPort)
	c.ValkeyPassword = envOrDefault("VALKEY_PASSWORD", c.ValkeyPassword)

	c.Store = envOrDefault("SITEKIT_STORE", c.Store)
	c.SyncChannel = envOrDefault("SITEKIT_SYNC_CHANNEL", c.SyncChannel)

	var err error
	if c.ValkeyEnabled, err = envBool("VALKEY_ENABLED", c.ValkeyEnabled); err != nil {
		return err
	}
	if c.Seed, err = envBool("SITEKIT_SEED", c.Seed); err != nil {
		return err
	}
	if v := os.Getenv("SITEKIT_COMMAND_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SITEKIT_COMMAND_TIMEOUT: %w", err)
		}
		c.CommandTimeout = d
	}
	if v := os.Getenv("SITEKIT_COMPONENT_TYPES"); v != "" {
		c.ComponentTypes = splitList(v)
	}
	if v := os.Getenv("SITEKIT_HANDSHAKE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SITEKIT_HANDSHAKE_LIMIT: %w", err)
		}
		c.HandshakeLimit = n
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// envBool parses a boolean environment variable, returning fallback if unset or empty.
func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
