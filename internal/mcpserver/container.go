package mcpserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/pgentity/entity-mcp/internal/config"
	"github.com/pgentity/entity-mcp/internal/dispatch"
)

const (
	defaultContainerUser = "postgres"
	containerLabel       = "entity-mcp-postgres"
)

// ContainerManager owns at most one bootstrap PostgreSQL container started
// through testcontainers. The mutex guards container bookkeeping only, never
// query execution.
type ContainerManager struct {
	cfg config.DockerConfig
	log zerolog.Logger

	mu        sync.Mutex
	container *postgres.PostgresContainer
	connStr   string
	startedAt time.Time
}

// NewContainerManager creates a manager with no running container.
func NewContainerManager(cfg config.DockerConfig, log zerolog.Logger) *ContainerManager {
	return &ContainerManager{cfg: cfg, log: log}
}

// ConnStr returns the current container connection string, or empty when no
// container is running.
func (m *ContainerManager) ConnStr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connStr
}

// Bootstrap starts a container at server startup and returns its connection
// string. Failure here is reported to the caller, which continues with the
// configured connection.
func (m *ContainerManager) Bootstrap(ctx context.Context) (string, error) {
	return m.start(ctx, m.cfg.Image, m.cfg.Database, m.cfg.Password)
}

func (m *ContainerManager) start(ctx context.Context, image, dbName, password string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.container != nil {
		return m.connStr, nil
	}

	if image == "" {
		image = m.cfg.Image
	}
	if dbName == "" {
		dbName = m.cfg.Database
	}
	if password == "" {
		password = m.cfg.Password
	}

	pgContainer, err := postgres.Run(ctx,
		image,
		postgres.WithDatabase(dbName),
		postgres.WithUsername(defaultContainerUser),
		postgres.WithPassword(password),
		postgres.BasicWaitStrategies(),
		testcontainers.WithLabels(map[string]string{
			"managed-by": containerLabel,
		}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = testcontainers.TerminateContainer(pgContainer)
		return "", fmt.Errorf("failed to get connection string: %w", err)
	}

	m.container = pgContainer
	m.connStr = connStr
	m.startedAt = time.Now()
	m.log.Info().Str("image", image).Msg("postgres container started")
	return connStr, nil
}

// Terminate stops the managed container if one is running. Safe to call
// repeatedly and during shutdown.
func (m *ContainerManager) Terminate(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.container == nil {
		return
	}
	if err := testcontainers.TerminateContainer(m.container); err != nil {
		m.log.Error().Err(err).Msg("failed to terminate postgres container")
		return
	}
	m.container = nil
	m.connStr = ""
	m.startedAt = time.Time{}
	m.log.Info().Msg("postgres container terminated")
}

type startPostgresRequest struct {
	Image    string `json:"image"`
	Database string `json:"database"`
	Password string `json:"password"`
}

// registerContainerTools adds container lifecycle tools to the dispatcher.
func (s *Server) registerContainerTools() error {
	registrations := []dispatch.Registration{
		{
			Tool: mcp.NewTool("start_postgres",
				mcp.WithDescription("Start a disposable PostgreSQL container for development. Returns the connection string; no-op when a managed container is already running."),
				mcp.WithString("image",
					mcp.Description("Docker image to run (default: postgres:16-alpine)")),
				mcp.WithString("database",
					mcp.Description("Database name to create (default: postgres)")),
				mcp.WithString("password",
					mcp.Description("Password for the postgres user")),
			),
			Handler: s.handleStartPostgres,
		},
		{
			Tool: mcp.NewTool("stop_postgres",
				mcp.WithDescription("Stop and remove the managed PostgreSQL container."),
			),
			Handler: s.handleStopPostgres,
		},
		{
			Tool: mcp.NewTool("postgres_status",
				mcp.WithDescription("Report the state of the managed PostgreSQL container."),
			),
			Handler: s.handlePostgresStatus,
		},
	}

	for _, reg := range registrations {
		if err := s.dispatcher.Register(reg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleStartPostgres(ctx context.Context, args map[string]any) (map[string]any, error) {
	var req startPostgresRequest
	if err := dispatch.DecodeArgs(args, &req); err != nil {
		return nil, err
	}

	connStr, err := s.containers.start(ctx, req.Image, req.Database, req.Password)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"connection_string": connStr,
		"message":           "PostgreSQL container started successfully",
	}, nil
}

func (s *Server) handleStopPostgres(ctx context.Context, args map[string]any) (map[string]any, error) {
	if s.containers.ConnStr() == "" {
		return nil, fmt.Errorf("no PostgreSQL container is running")
	}
	s.containers.Terminate(ctx)
	return map[string]any{
		"message": "PostgreSQL container stopped and removed",
	}, nil
}

func (s *Server) handlePostgresStatus(ctx context.Context, args map[string]any) (map[string]any, error) {
	s.containers.mu.Lock()
	container := s.containers.container
	connStr := s.containers.connStr
	startedAt := s.containers.startedAt
	s.containers.mu.Unlock()

	if container == nil {
		return map[string]any{
			"running": false,
			"message": "No managed PostgreSQL container",
		}, nil
	}

	state, err := container.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container state: %w", err)
	}

	containerID := container.GetContainerID()
	if len(containerID) > 12 {
		containerID = containerID[:12]
	}

	return map[string]any{
		"running":           state.Running,
		"container_id":      containerID,
		"connection_string": connStr,
		"uptime":            time.Since(startedAt).Round(time.Second).String(),
	}, nil
}
