// Package mcpserver wires the tool dispatcher, database layer and session
// manager into an MCP stdio server.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/pgentity/entity-mcp/internal/config"
	"github.com/pgentity/entity-mcp/internal/database"
	"github.com/pgentity/entity-mcp/internal/dispatch"
	"github.com/pgentity/entity-mcp/internal/logging"
	"github.com/pgentity/entity-mcp/internal/session"
)

const (
	serverName    = "entity-mcp"
	serverVersion = "1.0.0"

	shutdownTimeout = 10 * time.Second
)

// Server owns the long-lived pieces of the process: the shared connection
// pool, the dispatcher, the session manager and the optional bootstrap
// container.
type Server struct {
	cfg        *config.Config
	log        zerolog.Logger
	pool       *database.Pool
	dispatcher *dispatch.Dispatcher
	sessions   *session.Manager
	containers *ContainerManager
	mcp        *server.MCPServer
}

// New builds a fully wired Server. The connection pool is created here and
// injected into every component that needs database access; when Docker
// bootstrap is enabled, a reachable endpoint is established before the pool's
// first connect. Bootstrap failure is non-fatal: the server starts anyway and
// the health check reports the database as unhealthy.
func New(ctx context.Context, cfg *config.Config, loggers *logging.Loggers) (*Server, error) {
	log := loggers.General

	containers := NewContainerManager(cfg.Docker, log)

	dbCfg := cfg.DatabaseConfig()
	if cfg.Docker.Enabled {
		if connStr, err := containers.Bootstrap(ctx); err != nil {
			log.Warn().Err(err).Msg("docker bootstrap failed, using configured connection")
		} else {
			dbCfg.URL = connStr
		}
	}

	pool := database.NewPool(dbCfg, log)
	dispatcher := dispatch.New(pool, log, loggers.Protocol, cfg.ProtocolDebug)

	store, err := session.NewStore(cfg.Session.Backend, cfg.SessionStorePath())
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	sessions := session.NewManager(store, database.NewSharedManager(pool, log), log)

	s := &Server{
		cfg:        cfg,
		log:        log,
		pool:       pool,
		dispatcher: dispatcher,
		sessions:   sessions,
		containers: containers,
	}

	for _, register := range []func() error{
		s.registerCRUDTools,
		s.registerTableTools,
		s.registerSessionTools,
		s.registerContainerTools,
	} {
		if err := register(); err != nil {
			return nil, err
		}
	}

	mcpSrv := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithPromptCapabilities(true),
		server.WithResourceCapabilities(false, true),
	)
	for _, tool := range dispatcher.Tools() {
		mcpSrv.AddTool(tool, s.toolHandler(tool.Name))
	}
	s.registerPrompts(mcpSrv)
	s.registerResources(mcpSrv)
	s.mcp = mcpSrv

	return s, nil
}

// manager returns a fresh manager borrowing the shared pool.
func (s *Server) manager() *database.Manager {
	return database.NewSharedManager(s.pool, s.log)
}

// MCP exposes the underlying MCP server for the stdio transport.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Dispatcher exposes the tool dispatcher, mainly for tests.
func (s *Server) Dispatcher() *dispatch.Dispatcher { return s.dispatcher }

// VerifyConnection runs a startup connectivity probe against the pool.
func (s *Server) VerifyConnection(ctx context.Context) bool {
	return s.pool.TestConnection(ctx)
}

// Shutdown rejects new tool calls, waits up to shutdownTimeout for in-flight
// operations, then closes the pool and terminates any bootstrap container.
// Handlers still running past the timeout observe a connection error from the
// closed pool rather than being killed.
func (s *Server) Shutdown(ctx context.Context) {
	s.log.Info().Msg("starting graceful shutdown")

	if s.dispatcher.Drain(shutdownTimeout) {
		s.log.Info().Msg("all in-flight operations completed")
	}
	s.pool.Disconnect()
	s.containers.Terminate(ctx)
	s.log.Info().Msg("graceful shutdown completed")
}

// toolHandler adapts a dispatcher call to the MCP tool handler contract. The
// result envelope is serialized as JSON text; failures are carried inside the
// envelope, never as transport-level errors.
func (s *Server) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		envelope := s.dispatcher.Call(ctx, name, request.GetArguments())
		data, err := json.Marshal(envelope)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to serialize result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}
