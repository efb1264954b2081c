// Package logging configures the server's zerolog loggers. Stdout belongs to
// the MCP stdio transport, so all diagnostics go to files: a general log and
// a separate protocol log recording every tool call and its sanitized result.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const (
	generalLogFile  = "entity_mcp.log"
	protocolLogFile = "entity_mcp_protocol.log"
)

// Loggers bundles the two file-backed loggers used by the server.
type Loggers struct {
	General  zerolog.Logger
	Protocol zerolog.Logger

	files []*os.File
}

// Setup opens the log files under dir (created if missing; defaults to the
// working directory) and returns configured loggers. On file errors the
// loggers fall back to stderr rather than failing startup.
func Setup(level, dir string) (*Loggers, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	lv := parseLevel(level)
	l := &Loggers{}

	general := openOrStderr(l, dir, generalLogFile)
	protocol := openOrStderr(l, dir, protocolLogFile)

	l.General = zerolog.New(general).Level(lv).With().Timestamp().Logger()
	l.Protocol = zerolog.New(protocol).Level(lv).With().Timestamp().Logger()
	return l, nil
}

// Close flushes and closes the underlying log files.
func (l *Loggers) Close() {
	for _, f := range l.files {
		_ = f.Close()
	}
}

func openOrStderr(l *Loggers, dir, name string) io.Writer {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return os.Stderr
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return os.Stderr
	}
	l.files = append(l.files, f)
	return f
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// sensitiveKeys are masked by Sanitize before results reach the protocol log.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"passwd":        {},
	"secret":        {},
	"token":         {},
	"api_key":       {},
	"access_token":  {},
	"refresh_token": {},
}

// Sanitize returns a copy of v with values under sensitive keys replaced by
// "***". Maps and slices are walked recursively; other values pass through.
func Sanitize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
				out[k] = "***"
				continue
			}
			out[k] = Sanitize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Sanitize(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Sanitize(item)
		}
		return out
	default:
		return v
	}
}
