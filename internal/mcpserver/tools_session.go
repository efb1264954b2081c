package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pgentity/entity-mcp/internal/dispatch"
	"github.com/pgentity/entity-mcp/internal/session"
)

type beginSessionRequest struct {
	Description string `json:"session_description"`
}

type applyChangesRequest struct {
	SessionID     string   `json:"session_id"`
	DDLStatements []string `json:"ddl_statements"`
}

type sessionIDRequest struct {
	SessionID string `json:"session_id"`
}

// registerSessionTools adds the schema-change session tools to the
// dispatcher.
func (s *Server) registerSessionTools() error {
	registrations := []dispatch.Registration{
		{
			Tool: mcp.NewTool("begin_change_session",
				mcp.WithDescription("Begin a schema change session that records applied DDL until committed or rolled back."),
				mcp.WithString("session_description",
					mcp.Description("Description of the planned changes")),
			),
			Handler: s.handleBeginSession,
		},
		{
			Tool: mcp.NewTool("apply_schema_changes",
				mcp.WithDescription("Apply DDL statements in order within an active change session. The first failing statement aborts the call."),
				mcp.WithString("session_id",
					mcp.Required(),
					mcp.Description("Session ID from begin_change_session")),
				mcp.WithArray("ddl_statements",
					mcp.Required(),
					mcp.Description("DDL statements to execute")),
			),
			Handler: s.handleApplyChanges,
		},
		{
			Tool: mcp.NewTool("commit_change_session",
				mcp.WithDescription("Mark an active change session as committed."),
				mcp.WithString("session_id",
					mcp.Required(),
					mcp.Description("Session ID to commit")),
			),
			Handler: s.handleCommitSession,
		},
		{
			Tool: mcp.NewTool("rollback_change_session",
				mcp.WithDescription("Mark an active change session as rolled back. Applied DDL is not reversed automatically; the recorded change list shows what to undo."),
				mcp.WithString("session_id",
					mcp.Required(),
					mcp.Description("Session ID to roll back")),
			),
			Handler: s.handleRollbackSession,
		},
		{
			Tool: mcp.NewTool("list_change_sessions",
				mcp.WithDescription("List all schema change sessions with their status and applied changes."),
			),
			Handler: s.handleListSessions,
		},
	}

	for _, reg := range registrations {
		if err := s.dispatcher.Register(reg); err != nil {
			return err
		}
	}
	return nil
}

func sessionPayload(cs session.ChangeSession) map[string]any {
	return map[string]any{
		"session_id":  cs.ID,
		"description": cs.Description,
		"created_at":  cs.CreatedAt,
		"status":      string(cs.Status),
		"changes":     cs.Changes,
	}
}

func (s *Server) handleBeginSession(ctx context.Context, args map[string]any) (map[string]any, error) {
	var req beginSessionRequest
	if err := dispatch.DecodeArgs(args, &req); err != nil {
		return nil, err
	}

	cs, err := s.sessions.Begin(req.Description)
	if err != nil {
		return nil, err
	}
	return sessionPayload(cs), nil
}

func (s *Server) handleApplyChanges(ctx context.Context, args map[string]any) (map[string]any, error) {
	var req applyChangesRequest
	if err := dispatch.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		return nil, fmt.Errorf("missing required parameter: session_id")
	}

	cs, err := s.sessions.Apply(ctx, req.SessionID, req.DDLStatements)
	if err != nil {
		return nil, err
	}
	payload := sessionPayload(cs)
	payload["applied"] = len(req.DDLStatements)
	return payload, nil
}

func (s *Server) handleCommitSession(ctx context.Context, args map[string]any) (map[string]any, error) {
	var req sessionIDRequest
	if err := dispatch.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		return nil, fmt.Errorf("missing required parameter: session_id")
	}

	cs, err := s.sessions.Commit(req.SessionID)
	if err != nil {
		return nil, err
	}
	return sessionPayload(cs), nil
}

func (s *Server) handleRollbackSession(ctx context.Context, args map[string]any) (map[string]any, error) {
	var req sessionIDRequest
	if err := dispatch.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		return nil, fmt.Errorf("missing required parameter: session_id")
	}

	cs, err := s.sessions.Rollback(req.SessionID)
	if err != nil {
		return nil, err
	}
	return sessionPayload(cs), nil
}

func (s *Server) handleListSessions(ctx context.Context, args map[string]any) (map[string]any, error) {
	sessions, err := s.sessions.List()
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, len(sessions))
	for i, cs := range sessions {
		payloads[i] = sessionPayload(cs)
	}
	return map[string]any{"sessions": payloads, "count": len(payloads)}, nil
}
