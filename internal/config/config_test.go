package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearConfigEnv unsets every variable the loader reads so tests see only
// what they set themselves.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MCP_LOG_LEVEL", "MCP_LOG_DIR", "MCP_PROTOCOL_DEBUG",
		"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_DATABASE",
		"POSTGRES_USERNAME", "POSTGRES_PASSWORD", "POSTGRES_SSL_MODE",
		"POSTGRES_POOL_SIZE", "POSTGRES_MAX_OVERFLOW", "POSTGRES_CONNECT_TIMEOUT",
		"MCP_DOCKER_AUTO_SETUP", "MCP_DOCKER_IMAGE", "MCP_DOCKER_DATABASE",
		"MCP_DOCKER_PASSWORD", "MCP_SESSION_BACKEND", "MCP_SESSION_SQLITE_PATH",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Postgres.Host != "localhost" || cfg.Postgres.Port != 5432 {
		t.Errorf("postgres defaults = %s:%d, want localhost:5432", cfg.Postgres.Host, cfg.Postgres.Port)
	}
	if cfg.Postgres.PoolSize != 5 || cfg.Postgres.MaxOverflow != 10 {
		t.Errorf("pool defaults = %d/%d, want 5/10", cfg.Postgres.PoolSize, cfg.Postgres.MaxOverflow)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q, want info", cfg.LogLevel)
	}
	if cfg.Docker.Enabled {
		t.Error("docker bootstrap enabled by default, want disabled")
	}
	if cfg.Session.Backend != "memory" {
		t.Errorf("session backend = %q, want memory", cfg.Session.Backend)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	clearConfigEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err != nil {
		t.Fatalf("Load with missing file = %v, want nil", err)
	}
}

func TestLoadTOMLFile(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
log_level = "debug"
protocol_debug = true

[postgres]
host = "db.internal"
port = 6432
database = "appdb"
pool_size = 20

[session]
backend = "sqlite"
sqlite_path = "/tmp/sessions.db"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "debug" || !cfg.ProtocolDebug {
		t.Errorf("log settings = %q/%v, want debug/true", cfg.LogLevel, cfg.ProtocolDebug)
	}
	if cfg.Postgres.Host != "db.internal" || cfg.Postgres.Port != 6432 {
		t.Errorf("postgres = %s:%d, want db.internal:6432", cfg.Postgres.Host, cfg.Postgres.Port)
	}
	if cfg.Postgres.PoolSize != 20 {
		t.Errorf("pool size = %d, want 20", cfg.Postgres.PoolSize)
	}
	// Fields the file omits keep their defaults.
	if cfg.Postgres.Username != "postgres" {
		t.Errorf("username = %q, want default postgres", cfg.Postgres.Username)
	}
	if cfg.Session.Backend != "sqlite" || cfg.SessionStorePath() != "/tmp/sessions.db" {
		t.Errorf("session = %q/%q", cfg.Session.Backend, cfg.SessionStorePath())
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[postgres]
host = "from-file"
port = 6432
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("POSTGRES_HOST", "from-env")
	t.Setenv("POSTGRES_PORT", "7432")
	t.Setenv("POSTGRES_PASSWORD", "hunter2")
	t.Setenv("MCP_DOCKER_AUTO_SETUP", "true")
	t.Setenv("MCP_PROTOCOL_DEBUG", "1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Postgres.Host != "from-env" || cfg.Postgres.Port != 7432 {
		t.Errorf("postgres = %s:%d, want env values", cfg.Postgres.Host, cfg.Postgres.Port)
	}
	if cfg.Postgres.Password != "hunter2" {
		t.Errorf("password = %q, want env value", cfg.Postgres.Password)
	}
	if !cfg.Docker.Enabled || !cfg.ProtocolDebug {
		t.Error("boolean env overrides not applied")
	}
}

func TestLoadErrors(t *testing.T) {
	clearConfigEnv(t)

	t.Run("invalid int env", func(t *testing.T) {
		t.Setenv("POSTGRES_PORT", "not-a-number")
		if _, err := Load(""); err == nil {
			t.Error("Load with bad POSTGRES_PORT succeeded, want error")
		}
	})

	t.Run("empty required field", func(t *testing.T) {
		t.Setenv("POSTGRES_DATABASE", "")
		if _, err := Load(""); err == nil {
			t.Error("Load with empty database succeeded, want error")
		}
	})

	t.Run("unknown session backend", func(t *testing.T) {
		t.Setenv("MCP_SESSION_BACKEND", "redis")
		if _, err := Load(""); err == nil {
			t.Error("Load with unknown session backend succeeded, want error")
		}
	})

	t.Run("malformed toml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.toml")
		if err := os.WriteFile(path, []byte("log_level = [unclosed"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("Load with malformed TOML succeeded, want error")
		}
	})
}

func TestDatabaseConfigConversion(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	db := cfg.DatabaseConfig()
	if db.Host != cfg.Postgres.Host || db.Database != cfg.Postgres.Database {
		t.Error("database config lost connection settings")
	}
	if db.ConnectTimeout != 30*time.Second {
		t.Errorf("connect timeout = %v, want 30s", db.ConnectTimeout)
	}
}

func TestSessionStorePathDefaults(t *testing.T) {
	cfg := Default()

	if got := cfg.SessionStorePath(); got != filepath.Join(".", "entity_mcp_sessions.db") {
		t.Errorf("default path = %q", got)
	}

	cfg.LogDir = "/var/log/entity-mcp"
	if got := cfg.SessionStorePath(); got != "/var/log/entity-mcp/entity_mcp_sessions.db" {
		t.Errorf("log-dir path = %q", got)
	}

	cfg.Session.SQLitePath = "/data/sessions.db"
	if got := cfg.SessionStorePath(); got != "/data/sessions.db" {
		t.Errorf("explicit path = %q", got)
	}
}
