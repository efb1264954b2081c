package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const crudUsageGuide = `This server exposes CRUD tools over a single PostgreSQL database.

Reading data:
- read_entity selects rows with optional conditions, ordering and pagination.
  Conditions are exact-match column/value pairs combined with AND.
- Pass an aggregate expression such as COUNT(*) or SUM(amount) together with
  group_by to compute summaries instead of fetching rows.
- Results are capped at 100 rows unless you pass an explicit limit.

Writing data:
- create_entity inserts one row and returns it, including generated columns.
- update_entity and delete_entity require conditions; they refuse to touch a
  whole table by accident.
- batch_create_entities inserts up to 1000 rows sharing one column set and
  stops at the first failure. batch_update_entities and batch_delete_entities
  take up to 100 element-wise condition sets and report partial success.

All table and column names must be plain identifiers (letters, digits and
underscores, not starting with a digit). Values are passed as query parameters
so string values never need escaping.`

const schemaDesignGuide = `Guidelines for managing schema through this server:

- Inspect before changing: list_tables shows what exists, describe_table shows
  columns, defaults and indexes for %s.
- create_table takes a column list; mark primary keys and unique columns in the
  column spec rather than issuing separate constraints.
- alter_table applies add_column, drop_column, alter_column and rename_column
  operations in order and stops at the first failure, so put risky operations
  last.
- Group related DDL in a change session (begin_change_session,
  apply_schema_changes) so every applied statement is recorded and reviewable.
- Prefer TEXT over VARCHAR(n) unless a length limit is a real business rule,
  TIMESTAMPTZ over TIMESTAMP, and BIGINT GENERATED ALWAYS AS IDENTITY for
  surrogate keys.`

// registerPrompts adds the usage-guidance prompts.
func (s *Server) registerPrompts(srv *server.MCPServer) {
	srv.AddPrompt(mcp.NewPrompt("crud_usage",
		mcp.WithPromptDescription("How to use the entity CRUD tools effectively"),
	), s.handleCRUDUsagePrompt)

	srv.AddPrompt(mcp.NewPrompt("schema_design",
		mcp.WithPromptDescription("Guidance for designing and evolving table schemas"),
		mcp.WithArgument("table_name",
			mcp.ArgumentDescription("Table to focus the guidance on")),
	), s.handleSchemaDesignPrompt)
}

func (s *Server) handleCRUDUsagePrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return mcp.NewGetPromptResult(
		"How to use the entity CRUD tools effectively",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(crudUsageGuide)),
		},
	), nil
}

func (s *Server) handleSchemaDesignPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	table := request.Params.Arguments["table_name"]
	if table == "" {
		table = "each table"
	}
	return mcp.NewGetPromptResult(
		"Guidance for designing and evolving table schemas",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(fmt.Sprintf(schemaDesignGuide, table))),
		},
	), nil
}
