// Package main implements an MCP server exposing CRUD and schema tools over a
// PostgreSQL database.
//
// Communicates via stdio JSON-RPC (Model Context Protocol); all logging goes
// to files so stdout stays clean for the transport.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/pgentity/entity-mcp/internal/config"
	"github.com/pgentity/entity-mcp/internal/logging"
	"github.com/pgentity/entity-mcp/internal/mcpserver"
)

const startupProbeTimeout = 10 * time.Second

func run() int {
	errLogger := log.New(os.Stderr, "[entity-mcp] ", log.LstdFlags)

	configPath := flag.String("config", os.Getenv("MCP_CONFIG_FILE"), "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		errLogger.Printf("Failed to load configuration: %v", err)
		return 1
	}

	loggers, err := logging.Setup(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		errLogger.Printf("Failed to set up logging: %v", err)
		return 1
	}
	defer loggers.Close()

	ctx := context.Background()
	srv, err := mcpserver.New(ctx, cfg, loggers)
	if err != nil {
		errLogger.Printf("Failed to create MCP server: %v", err)
		loggers.General.Error().Err(err).Msg("server construction failed")
		return 1
	}

	probeCtx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
	if !srv.VerifyConnection(probeCtx) {
		// The server still starts; health_check keeps reporting the state and
		// a later tool call reconnects once the database is reachable.
		loggers.General.Warn().Msg("database not reachable at startup")
	}
	cancel()

	loggers.General.Info().Msg("serving on stdio")
	serveErr := server.ServeStdio(srv.MCP(), server.WithErrorLogger(errLogger))

	srv.Shutdown(ctx)

	if serveErr != nil {
		errLogger.Printf("Server error: %v", serveErr)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
