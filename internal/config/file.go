package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the structure of the optional YAML configuration file.
// Every field is optional; unset fields keep their defaults.
type FileConfig struct {
	Server struct {
		Host string `yaml:"host"`
		Port string `yaml:"port"`
		Env  string `yaml:"env"`
	} `yaml:"server"`

	Postgres struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DB       string `yaml:"db"`
	} `yaml:"postgres"`

	Valkey struct {
		Enabled  *bool  `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		Password string `yaml:"password"`
	} `yaml:"valkey"`

	Sync struct {
		Store          string `yaml:"store"`
		Seed           *bool  `yaml:"seed"`
		CommandTimeout string `yaml:"command_timeout"`
		Channel        string `yaml:"channel"`
		HandshakeLimit *int     `yaml:"handshake_limit"`
		ComponentTypes []string `yaml:"component_types"`
	} `yaml:"sync"`
}

// loadFile overlays the values set in the YAML file at path onto c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Host, fc.Server.Host)
	setString(&c.Port, fc.Server.Port)
	setString(&c.Env, fc.Server.Env)

	setString(&c.DBHost, fc.Postgres.Host)
	setString(&c.DBPort, fc.Postgres.Port)
	setString(&c.DBUser, fc.Postgres.User)
	setString(&c.DBPassword, fc.Postgres.Password)
	setString(&c.DBName, fc.Postgres.DB)

	if fc.Valkey.Enabled != nil {
		c.ValkeyEnabled = *fc.Valkey.Enabled
	}
	setString(&c.ValkeyHost, fc.Valkey.Host)
	setString(&c.ValkeyPort, fc.Valkey.Port)
	setString(&c.ValkeyPassword, fc.Valkey.Password)

	setString(&c.Store, fc.Sync.Store)
	setString(&c.SyncChannel, fc.Sync.Channel)
	if fc.Sync.Seed != nil {
		c.Seed = *fc.Sync.Seed
	}
	if len(fc.Sync.ComponentTypes) > 0 {
		c.ComponentTypes = fc.Sync.ComponentTypes
	}
	if fc.Sync.HandshakeLimit != nil {
		c.HandshakeLimit = *fc.Sync.HandshakeLimit
	}
	if fc.Sync.CommandTimeout != "" {
		d, err := time.ParseDuration(fc.Sync.CommandTimeout)
		if err != nil {
			return fmt.Errorf("config file sync.command_timeout: %w", err)
		}
		c.CommandTimeout = d
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
