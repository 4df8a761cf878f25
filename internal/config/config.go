//-------------------------------------------------------------------------
//
// pgEdge Stock ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for pgedge-stocketl.
// Connection parameters come from the environment (optionally seeded from a
// .env file), with an optional YAML config file underneath. CLI flags take
// precedence over both.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingParameter is returned when a required connection parameter is
// absent.
var ErrMissingParameter = errors.New("missing required connection parameter")

// Environment variable prefixes for the two stores.
const (
	TransactionalEnvPrefix = "DB_TRANS"
	StarEnvPrefix          = "DB_STAR"
)

// Config holds all configuration for pgedge-stocketl.
type Config struct {
	// Source is the transactional (relational) store the ETL reads from.
	Source DBConfig `mapstructure:"transactional"`

	// Star is the dimensional store the ETL rebuilds.
	Star DBConfig `mapstructure:"star"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// ETL holds configuration for the run command.
	ETL ETLConfig `mapstructure:"etl"`

	// Seed holds configuration for the seed command.
	Seed SeedConfig `mapstructure:"seed"`
}

// DBConfig holds the connection parameters of one PostgreSQL database.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	// SSLMode is passed through to libpq-style sslmode.
	SSLMode string `mapstructure:"sslmode"`

	// ConnectTimeout is the connection timeout in seconds.
	ConnectTimeout int `mapstructure:"connect_timeout"`
}

// ETLConfig holds configuration for the star schema rebuild.
type ETLConfig struct {
	// RecomputeStock derives dim_producto.stock_actual from the loaded
	// stock facts instead of copying the source column.
	RecomputeStock bool `mapstructure:"recompute_stock"`

	// Verify runs the referential integrity checks before commit.
	Verify bool `mapstructure:"verify"`
}

// SeedConfig holds configuration for generating source test data.
type SeedConfig struct {
	// Customers is the number of customers to create.
	Customers int `mapstructure:"customers"`

	// Products is the number of products to create.
	Products int `mapstructure:"products"`

	// Months is how many months of sales history to simulate.
	Months int `mapstructure:"months"`

	// DeletedRatio is the fraction of products that end up soft-deleted.
	DeletedRatio float64 `mapstructure:"deleted_ratio"`

	// Seed makes generation reproducible when non-zero.
	Seed uint64 `mapstructure:"seed"`
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"log_level":           "STOCKETL_LOG_LEVEL",
	"etl.recompute_stock": "STOCKETL_RECOMPUTE_STOCK",
	"etl.verify":          "STOCKETL_VERIFY",
}

func init() {
	for section, prefix := range map[string]string{
		"transactional": TransactionalEnvPrefix,
		"star":          StarEnvPrefix,
	} {
		envBindings[section+".host"] = prefix + "_HOST"
		envBindings[section+".port"] = prefix + "_PORT"
		envBindings[section+".name"] = prefix + "_NAME"
		envBindings[section+".user"] = prefix + "_USER"
		envBindings[section+".password"] = prefix + "_PASS"
		envBindings[section+".sslmode"] = prefix + "_SSLMODE"
		envBindings[section+".connect_timeout"] = prefix + "_CONNECT_TIMEOUT"
	}
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Source: DBConfig{
			SSLMode:        "prefer",
			ConnectTimeout: 10,
		},
		Star: DBConfig{
			SSLMode:        "prefer",
			ConnectTimeout: 10,
		},
		ETL: ETLConfig{
			RecomputeStock: true,
			Verify:         true,
		},
		Seed: SeedConfig{
			Customers:    150,
			Products:     200,
			Months:       36,
			DeletedRatio: 0.05,
		},
	}
}

// Load reads configuration from the environment and config files.
// Sources (later ones win):
// 1. defaults
// 2. ./pgedge-stocketl.yaml, ~/.config/pgedge-stocketl/config.yaml, or configFile
// 3. ./.env (never overrides variables already set in the process)
// 4. environment variables
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("pgedge-stocketl")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "pgedge-stocketl"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// Missing returns the names of the environment variables whose required
// parameter is unset, using prefix to build the names.
func (d DBConfig) Missing(prefix string) []string {
	var missing []string
	if d.Host == "" {
		missing = append(missing, prefix+"_HOST")
	}
	if d.Port == 0 {
		missing = append(missing, prefix+"_PORT")
	}
	if d.Name == "" {
		missing = append(missing, prefix+"_NAME")
	}
	if d.User == "" {
		missing = append(missing, prefix+"_USER")
	}
	if d.Password == "" {
		missing = append(missing, prefix+"_PASS")
	}
	return missing
}

// ConnString renders the parameters as a postgres:// URL understood by pgx.
func (d DBConfig) ConnString() string {
	return d.url("postgres").String()
}

// MigrateURL renders the parameters for golang-migrate's pgx/v5 driver,
// recording applied versions in migrationsTable.
func (d DBConfig) MigrateURL(migrationsTable string) string {
	u := d.url("pgx5")
	q := u.Query()
	q.Set("x-migrations-table", migrationsTable)
	u.RawQuery = q.Encode()
	return u.String()
}

func (d DBConfig) url(scheme string) *url.URL {
	u := &url.URL{
		Scheme: scheme,
		User:   url.UserPassword(d.User, d.Password),
		Host:   d.Host + ":" + strconv.Itoa(d.Port),
		Path:   "/" + d.Name,
	}
	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	if d.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(d.ConnectTimeout))
	}
	u.RawQuery = q.Encode()
	return u
}

// Validate checks that both stores are fully configured. It is called
// before any connection is attempted.
func (c *Config) Validate() error {
	missing := append(c.Source.Missing(TransactionalEnvPrefix), c.Star.Missing(StarEnvPrefix)...)
	return missingError(missing)
}

// ValidateSource checks configuration required to touch only the
// transactional store.
func (c *Config) ValidateSource() error {
	return missingError(c.Source.Missing(TransactionalEnvPrefix))
}

// ValidateStar checks configuration required to touch only the star store.
func (c *Config) ValidateStar() error {
	return missingError(c.Star.Missing(StarEnvPrefix))
}

// ValidateSeed checks configuration required for the seed command.
func (c *Config) ValidateSeed() error {
	if err := c.ValidateSource(); err != nil {
		return err
	}
	if c.Seed.Customers < 1 {
		return fmt.Errorf("seed.customers must be at least 1")
	}
	if c.Seed.Products < 1 {
		return fmt.Errorf("seed.products must be at least 1")
	}
	if c.Seed.Months < 1 {
		return fmt.Errorf("seed.months must be at least 1")
	}
	if c.Seed.DeletedRatio < 0 || c.Seed.DeletedRatio >= 1 {
		return fmt.Errorf("seed.deleted_ratio must be in [0, 1)")
	}
	return nil
}

func missingError(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingParameter, strings.Join(missing, ", "))
}
