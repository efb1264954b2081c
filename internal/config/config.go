// Package config loads server configuration from an optional TOML file
// layered under environment variables. Environment always wins, so a config
// file can carry site defaults while deployment overrides stay in the
// process environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/pgentity/entity-mcp/internal/database"
)

// PostgresConfig holds the connection settings for the target database.
type PostgresConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Database       string `toml:"database"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	SSLMode        string `toml:"ssl_mode"`
	PoolSize       int    `toml:"pool_size"`
	MaxOverflow    int    `toml:"max_overflow"`
	ConnectTimeout int    `toml:"connect_timeout"` // seconds
}

// DockerConfig controls the optional PostgreSQL container bootstrap.
type DockerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Image    string `toml:"image"`
	Database string `toml:"database"`
	Password string `toml:"password"`
}

// SessionConfig selects the schema-change session store.
type SessionConfig struct {
	Backend    string `toml:"backend"`     // "memory" (default) or "sqlite"
	SQLitePath string `toml:"sqlite_path"` // path for the sqlite backend
}

// Config is the complete server configuration.
type Config struct {
	LogLevel      string         `toml:"log_level"`
	LogDir        string         `toml:"log_dir"`
	ProtocolDebug bool           `toml:"protocol_debug"`
	Postgres      PostgresConfig `toml:"postgres"`
	Docker        DockerConfig   `toml:"docker"`
	Session       SessionConfig  `toml:"session"`
}

// Default returns the baseline configuration before file and environment
// layering.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Postgres: PostgresConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "postgres",
			Username:       "postgres",
			SSLMode:        "prefer",
			PoolSize:       5,
			MaxOverflow:    10,
			ConnectTimeout: 30,
		},
		Docker: DockerConfig{
			Image:    "postgres:16-alpine",
			Database: "postgres",
			Password: "postgres",
		},
		Session: SessionConfig{
			Backend: "memory",
		},
	}
}

// Load builds the configuration from defaults, an optional TOML file at path
// (missing file is not an error), and environment variables. Returns an error
// when a required setting ends up empty or an environment value fails to
// parse.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setStr := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) error {
		v, ok := os.LookupEnv(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", key, v)
		}
		*dst = n
		return nil
	}
	setBool := func(dst *bool, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.EqualFold(v, "true") || v == "1"
		}
	}

	setStr(&c.LogLevel, "MCP_LOG_LEVEL")
	setStr(&c.LogDir, "MCP_LOG_DIR")
	setBool(&c.ProtocolDebug, "MCP_PROTOCOL_DEBUG")

	setStr(&c.Postgres.Host, "POSTGRES_HOST")
	setStr(&c.Postgres.Database, "POSTGRES_DATABASE")
	setStr(&c.Postgres.Username, "POSTGRES_USERNAME")
	setStr(&c.Postgres.Password, "POSTGRES_PASSWORD")
	setStr(&c.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	for key, dst := range map[string]*int{
		"POSTGRES_PORT":            &c.Postgres.Port,
		"POSTGRES_POOL_SIZE":       &c.Postgres.PoolSize,
		"POSTGRES_MAX_OVERFLOW":    &c.Postgres.MaxOverflow,
		"POSTGRES_CONNECT_TIMEOUT": &c.Postgres.ConnectTimeout,
	} {
		if err := setInt(dst, key); err != nil {
			return err
		}
	}

	setBool(&c.Docker.Enabled, "MCP_DOCKER_AUTO_SETUP")
	setStr(&c.Docker.Image, "MCP_DOCKER_IMAGE")
	setStr(&c.Docker.Database, "MCP_DOCKER_DATABASE")
	setStr(&c.Docker.Password, "MCP_DOCKER_PASSWORD")

	setStr(&c.Session.Backend, "MCP_SESSION_BACKEND")
	setStr(&c.Session.SQLitePath, "MCP_SESSION_SQLITE_PATH")
	return nil
}

func (c *Config) validate() error {
	if c.Postgres.Host == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.Postgres.Database == "" {
		return fmt.Errorf("POSTGRES_DATABASE is required")
	}
	if c.Postgres.Username == "" {
		return fmt.Errorf("POSTGRES_USERNAME is required")
	}
	switch c.Session.Backend {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("unknown session backend: %q (expected 'memory' or 'sqlite')", c.Session.Backend)
	}
	return nil
}

// DatabaseConfig converts the postgres section into the database layer's
// connection config.
func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Host:           c.Postgres.Host,
		Port:           c.Postgres.Port,
		Database:       c.Postgres.Database,
		Username:       c.Postgres.Username,
		Password:       c.Postgres.Password,
		SSLMode:        c.Postgres.SSLMode,
		PoolSize:       c.Postgres.PoolSize,
		MaxOverflow:    c.Postgres.MaxOverflow,
		ConnectTimeout: time.Duration(c.Postgres.ConnectTimeout) * time.Second,
	}
}

// SessionStorePath resolves the sqlite session store path, defaulting to
// <log dir or cwd>/entity_mcp_sessions.db.
func (c *Config) SessionStorePath() string {
	if c.Session.SQLitePath != "" {
		return c.Session.SQLitePath
	}
	dir := c.LogDir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "entity_mcp_sessions.db")
}
