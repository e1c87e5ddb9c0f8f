package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/snowflakedb/gosnowflake"
)

const defaultBatchSize = 10000

// Config holds the TOML-driven connection configuration. Schema names and
// per-run modifiers come from the command line, never from here; the
// migration engine itself only ever sees opened connection handles.
type Config struct {
	Snowflake SnowflakeConfig `toml:"snowflake"`
	Postgres  PostgresConfig  `toml:"postgres"`
	BatchSize int             `toml:"batch_size"`
}

// SnowflakeConfig identifies the source account and credentials.
type SnowflakeConfig struct {
	Account   string `toml:"account"`
	User      string `toml:"user"`
	Password  string `toml:"password"`
	Database  string `toml:"database"`
	Warehouse string `toml:"warehouse"`
	Role      string `toml:"role"`
}

type PostgresConfig struct {
	DSN string `toml:"dsn"`
}

// loadConfig reads a TOML config file and returns a Config with defaults applied.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Config{
		BatchSize: defaultBatchSize,
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch_size must be positive")
	}

	if cfg.Snowflake.Account == "" {
		return nil, fmt.Errorf("snowflake.account is required")
	}
	if cfg.Snowflake.User == "" {
		return nil, fmt.Errorf("snowflake.user is required")
	}
	if cfg.Snowflake.Password == "" {
		return nil, fmt.Errorf("snowflake.password is required")
	}
	if cfg.Snowflake.Database == "" {
		return nil, fmt.Errorf("snowflake.database is required")
	}

	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}

	return &cfg, nil
}

// snowflakeDSN builds a gosnowflake DSN from the config.
func snowflakeDSN(cfg SnowflakeConfig) (string, error) {
	sc := gosnowflake.Config{
		Account:      cfg.Account,
		User:         cfg.User,
		Password:     cfg.Password,
		Database:     cfg.Database,
		Warehouse:    cfg.Warehouse,
		Role:         cfg.Role,
		LoginTimeout: 30 * time.Second,
	}
	dsn, err := gosnowflake.DSN(&sc)
	if err != nil {
		return "", fmt.Errorf("build snowflake dsn: %w", err)
	}
	return dsn, nil
}
