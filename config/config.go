// Package config loads process settings from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	ballots "github.com/jicksta/case-ballots"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds the settings shared by the CLI and the HTTP server.
type Config struct {
	Backend     string   `env:"BALLOTS_BACKEND" envDefault:"sqlite"`
	SQLitePath  string   `env:"BALLOTS_SQLITE_PATH" envDefault:"ballots.db"`
	RedisAddr   string   `env:"BALLOTS_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix string   `env:"BALLOTS_REDIS_PREFIX" envDefault:"ballots"`
	IDPolicy    string   `env:"BALLOTS_ID_POLICY" envDefault:"sequential"`
	HTTPAddr    string   `env:"BALLOTS_HTTP_ADDR" envDefault:":8080"`
	CodeHashes  []string `env:"BALLOTS_CODE_HASHES" envSeparator:","`
}

// Load parses the environment into a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes the backend name and checks every setting that can be checked offline.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case BackendMemory, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if _, err := c.TrustedCodeHashes(); err != nil {
		return err
	}
	return nil
}

func (c *Config) Policy() (ballots.IDPolicy, error) {
	return ballots.ParseIDPolicy(c.IDPolicy)
}

// TrustedCodeHashes parses BALLOTS_CODE_HASHES, skipping blank entries.
func (c *Config) TrustedCodeHashes() ([]ballots.CodeHash, error) {
	var hashes []ballots.CodeHash
	for _, raw := range c.CodeHashes {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		hash, err := ballots.ParseCodeHash(raw)
		if err != nil {
			return nil, fmt.Errorf("BALLOTS_CODE_HASHES: %w", err)
		}
		hashes = append(hashes, hash)
	}
	return hashes, nil
}
