// Package dispatch routes named tool invocations to registered handlers and
// converts every outcome, success or failure, into the uniform result
// envelope. Nothing raised by a handler crosses the dispatcher boundary.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/pgentity/entity-mcp/internal/database"
	"github.com/pgentity/entity-mcp/internal/logging"
)

// methodNotFoundCode mirrors the JSON-RPC 2.0 "method not found" error code.
const methodNotFoundCode = -32601

// Handler performs one tool's logic. The raw argument map has already passed
// JSON decoding; handlers decode it into a typed request via DecodeArgs
// before doing any work. The returned map is the success payload merged into
// the envelope.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// Registration binds a tool schema to its handler.
type Registration struct {
	Tool    mcp.Tool
	Handler Handler
}

// Dispatcher is the name-to-handler registry. Registrations happen once at
// startup; after that the registry is read-only and safe for concurrent Call.
type Dispatcher struct {
	pool     *database.Pool
	log      zerolog.Logger
	protocol zerolog.Logger
	debug    bool

	handlers map[string]Registration
	order    []string

	shuttingDown atomic.Bool
	inflight     sync.WaitGroup
}

// New creates a Dispatcher bound to the shared connection pool.
func New(pool *database.Pool, log, protocol zerolog.Logger, debug bool) *Dispatcher {
	return &Dispatcher{
		pool:     pool,
		log:      log,
		protocol: protocol,
		debug:    debug,
		handlers: make(map[string]Registration),
	}
}

// Register adds a tool to the registry. Names must be unique across all
// registered tool sets; health_check is reserved for the dispatcher itself.
func (d *Dispatcher) Register(reg Registration) error {
	name := reg.Tool.Name
	if name == "" || reg.Handler == nil {
		return fmt.Errorf("registration requires a tool name and handler")
	}
	if name == "health_check" {
		return fmt.Errorf("tool name %q is reserved", name)
	}
	if _, exists := d.handlers[name]; exists {
		return fmt.Errorf("duplicate tool name: %q", name)
	}
	d.handlers[name] = reg
	d.order = append(d.order, name)
	return nil
}

// Tools returns every registered tool schema in registration order, followed
// by the built-in health_check tool.
func (d *Dispatcher) Tools() []mcp.Tool {
	tools := make([]mcp.Tool, 0, len(d.order)+1)
	for _, name := range d.order {
		tools = append(tools, d.handlers[name].Tool)
	}
	tools = append(tools, mcp.NewTool("health_check",
		mcp.WithDescription("Check the health status of the server and its database connection."),
	))
	return tools
}

// Names returns the callable tool names, health_check included.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.order)+1)
	names = append(names, d.order...)
	return append(names, "health_check")
}

// Call routes one (name, arguments) invocation and always returns a result
// envelope: {"success": true, ...payload} or {"success": false, "error": ...}.
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]any) (envelope map[string]any) {
	if d.shuttingDown.Load() {
		return Failure("server is shutting down")
	}
	d.inflight.Add(1)
	defer d.inflight.Done()

	d.protocol.Info().Str("tool", name).Interface("arguments", logging.Sanitize(args)).
		Msg("tool call")

	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("tool", name).Interface("panic", r).Msg("handler panic")
			envelope = Failure(fmt.Sprintf("Internal server error: %v", r))
		}
	}()

	// The reserved health check short-circuits the registry lookup.
	if name == "health_check" {
		envelope = d.healthCheck(ctx)
		d.logResult(name, envelope)
		return envelope
	}

	reg, ok := d.handlers[name]
	if !ok {
		d.log.Error().Str("tool", name).Msg("unknown tool")
		return map[string]any{
			"success": false,
			"error": map[string]any{
				"code":    methodNotFoundCode,
				"message": fmt.Sprintf("Method not found: %s", name),
				"data": map[string]any{
					"available_methods": d.Names(),
					"server_type":       "PostgreSQL MCP Server",
				},
			},
		}
	}

	if d.debug {
		d.log.Debug().Str("tool", name).Msg("executing handler")
	}

	result, err := reg.Handler(ctx, args)
	if err != nil {
		d.log.Error().Str("tool", name).Err(err).Msg("tool failed")
		envelope = Failure(err.Error())
		d.logResult(name, envelope)
		return envelope
	}

	envelope = Success(result)
	if d.debug {
		keys := make([]string, 0, len(envelope))
		for k := range envelope {
			keys = append(keys, k)
		}
		d.log.Debug().Str("tool", name).Strs("result_keys", keys).Msg("handler completed")
	}
	d.logResult(name, envelope)
	return envelope
}

func (d *Dispatcher) logResult(name string, envelope map[string]any) {
	d.protocol.Info().Str("tool", name).
		Interface("result", logging.Sanitize(envelope)).Msg("tool result")
}

// healthCheck reports pool connectivity status plus a timestamp.
func (d *Dispatcher) healthCheck(ctx context.Context) map[string]any {
	healthy := false
	if d.pool != nil {
		healthy = d.pool.TestConnection(ctx)
	}
	status := "healthy"
	dbStatus := "healthy"
	if !healthy {
		status = "unhealthy"
		dbStatus = "unhealthy"
	}
	return map[string]any{
		"success":   true,
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"components": map[string]any{
			"database": map[string]any{
				"status":          dbStatus,
				"connection_test": healthy,
			},
		},
	}
}

// Drain rejects new calls and waits up to timeout for in-flight calls to
// finish. Returns true when everything completed within the timeout. Calls
// still running afterwards are not killed; closing the pool surfaces a
// connection error to them.
func (d *Dispatcher) Drain(timeout time.Duration) bool {
	d.shuttingDown.Store(true)

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		d.log.Warn().Msg("timeout waiting for in-flight tool calls")
		return false
	}
}

// Success merges a handler payload into a success envelope.
func Success(payload map[string]any) map[string]any {
	envelope := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		envelope[k] = v
	}
	envelope["success"] = true
	return envelope
}

// Failure builds a failure envelope with a string error description.
func Failure(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}

// DecodeArgs decodes a raw argument map into a typed request struct via a
// JSON round trip, so every tool validates its input shape before the handler
// body runs.
func DecodeArgs(args map[string]any, dst any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
