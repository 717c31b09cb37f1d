// Package config loads server settings from YAML.
//
// Precedence: Default, then the file given to Load, then command-line flags
// the caller applies on top. Validate runs last.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bankserver/internal/ledger"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds every setting of a serve run.
type Config struct {
	Workers         int           `yaml:"workers"`
	Accounts        int           `yaml:"accounts"`
	Latency         time.Duration `yaml:"latency"`
	LockMode        string        `yaml:"lock_mode"`
	Store           StoreConfig   `yaml:"store"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	Echo            bool          `yaml:"echo"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects the account storage medium.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	// Path is the SQLite database file; ":memory:" keeps it in RAM.
	Path string `yaml:"path"`
	// DSN is the Postgres connection string.
	DSN string `yaml:"dsn"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Workers:         10,
		Accounts:        1000,
		Latency:         ledger.DefaultLatency,
		LockMode:        string(ledger.LockFine),
		Store:           StoreConfig{Driver: DriverMemory, Path: ":memory:"},
		Echo:            true,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load reads path over Default. Unknown keys are an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default. An empty document yields Default.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error

	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.Accounts < 1 {
		errs = append(errs, fmt.Errorf("accounts must be at least 1, got %d", c.Accounts))
	}
	if c.Latency < 0 {
		errs = append(errs, fmt.Errorf("latency must not be negative, got %s", c.Latency))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must be positive, got %s", c.ShutdownTimeout))
	}
	switch ledger.LockMode(c.LockMode) {
	case ledger.LockFine, ledger.LockCoarse:
	default:
		errs = append(errs, fmt.Errorf("unknown lock_mode %q (want fine or coarse)", c.LockMode))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for sqlite"))
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	return errors.Join(errs...)
}
