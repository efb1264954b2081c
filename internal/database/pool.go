package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Config holds all settings needed to connect to and pool the database.
// It is created once at startup from the environment and never mutated.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	// URL, when set, is used verbatim as the connection string and the
	// discrete fields above are ignored. The Docker bootstrap uses this to
	// point the pool at a container listening on a dynamic port.
	URL string

	PoolSize       int           // base number of pooled connections
	MaxOverflow    int           // extra connections allowed beyond PoolSize
	ConnectTimeout time.Duration // time limit for establishing a connection
}

// ConnString builds the postgres connection URL for this config.
func (c Config) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	s := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		c.Username, c.Password, c.Host, c.Port, c.Database)
	if c.SSLMode != "" {
		s += "?sslmode=" + c.SSLMode
	}
	return s
}

// maxConns returns the hard bound on concurrently checked-out connections.
func (c Config) maxConns() int32 {
	n := c.PoolSize + c.MaxOverflow
	if n <= 0 {
		n = 10
	}
	return int32(n)
}

// Pool owns a bounded set of live database connections. Operations acquire a
// connection for exactly one statement batch and release it afterwards;
// acquisition beyond pool_size + max_overflow blocks until a connection is
// returned. Pool is safe for concurrent use.
type Pool struct {
	cfg Config
	log zerolog.Logger

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// NewPool creates an unconnected Pool for the given config.
func NewPool(cfg Config, log zerolog.Logger) *Pool {
	return &Pool{cfg: cfg, log: log}
}

// Connect establishes the underlying pgx pool. Calling Connect when a pool
// already exists is a no-op.
func (p *Pool) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool != nil {
		return nil
	}

	poolCfg, err := pgxpool.ParseConfig(p.cfg.ConnString())
	if err != nil {
		return WrapError(ErrKindConfiguration, err, "invalid connection settings")
	}
	poolCfg.MaxConns = p.cfg.maxConns()
	poolCfg.MinConns = int32(p.cfg.PoolSize)
	if p.cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = p.cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return WrapError(ErrKindConnection, err, "database connection failed")
	}

	p.pool = pool
	p.log.Info().
		Str("host", p.cfg.Host).
		Str("database", p.cfg.Database).
		Int32("max_conns", poolCfg.MaxConns).
		Msg("connection pool established")
	return nil
}

// Acquire hands out one pooled connection, connecting first if needed.
// The returned connection must be released with conn.Release after the
// statement batch completes.
func (p *Pool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	if err := p.Connect(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	pool := p.pool
	p.mu.Unlock()
	if pool == nil {
		return nil, NewError(ErrKindConnection, "connection pool is closed")
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, WrapError(ErrKindConnection, err, "failed to acquire connection")
	}
	return conn, nil
}

// TestConnection acquires a connection, runs a trivial liveness query and
// reports boolean health. Used for startup validation and the health check
// tool.
func (p *Pool) TestConnection(ctx context.Context) bool {
	conn, err := p.Acquire(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("connection test failed")
		return false
	}
	defer conn.Release()

	var version string
	if err := conn.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		p.log.Error().Err(err).Msg("connection test query failed")
		return false
	}
	p.log.Debug().Str("version", version).Msg("connection test succeeded")
	return true
}

// Disconnect closes all pooled connections. Idempotent; safe to call during
// shutdown even if Connect was never called.
func (p *Pool) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool == nil {
		return
	}
	p.pool.Close()
	p.pool = nil
	p.log.Info().Msg("connection pool closed")
}
