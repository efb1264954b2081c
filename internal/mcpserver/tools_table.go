package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pgentity/entity-mcp/internal/database"
	"github.com/pgentity/entity-mcp/internal/dispatch"
)

type createTableRequest struct {
	TableName   string                `json:"table_name"`
	Columns     []database.ColumnSpec `json:"columns"`
	IfNotExists *bool                 `json:"if_not_exists"`
}

type alterTableRequest struct {
	TableName  string                    `json:"table_name"`
	Operations []database.AlterOperation `json:"operations"`
}

type dropTableRequest struct {
	TableName string `json:"table_name"`
	Cascade   bool   `json:"cascade"`
	IfExists  *bool  `json:"if_exists"`
}

type describeTableRequest struct {
	TableName string `json:"table_name"`
}

// registerTableTools adds the schema-management tools to the dispatcher.
func (s *Server) registerTableTools() error {
	registrations := []dispatch.Registration{
		{
			Tool: mcp.NewTool("list_tables",
				mcp.WithDescription("List all base tables in the public schema, ordered by name."),
			),
			Handler: s.handleListTables,
		},
		{
			Tool: mcp.NewTool("describe_table",
				mcp.WithDescription("Describe the structure of a table, including columns, types, nullability, defaults and indexes."),
				mcp.WithString("table_name",
					mcp.Required(),
					mcp.Description("Name of the table to describe")),
			),
			Handler: s.handleDescribeTable,
		},
		{
			Tool: mcp.NewTool("create_table",
				mcp.WithDescription("Create a new table. Each column spec has name, type and optional nullable, primary_key, unique and default."),
				mcp.WithString("table_name",
					mcp.Required(),
					mcp.Description("Name of the table to create")),
				mcp.WithArray("columns",
					mcp.Required(),
					mcp.Description("Column definitions")),
				mcp.WithBoolean("if_not_exists",
					mcp.Description("Create the table only if it does not exist (default: true)")),
			),
			Handler: s.handleCreateTable,
		},
		{
			Tool: mcp.NewTool("alter_table",
				mcp.WithDescription("Modify table structure with add_column, drop_column, alter_column and rename_column operations, applied in order."),
				mcp.WithString("table_name",
					mcp.Required(),
					mcp.Description("Name of the table to modify")),
				mcp.WithArray("operations",
					mcp.Required(),
					mcp.Description("Operations to perform")),
			),
			Handler: s.handleAlterTable,
		},
		{
			Tool: mcp.NewTool("drop_table",
				mcp.WithDescription("Delete a table from the database."),
				mcp.WithString("table_name",
					mcp.Required(),
					mcp.Description("Name of the table to drop")),
				mcp.WithBoolean("cascade",
					mcp.Description("Also drop objects that depend on this table (default: false)")),
				mcp.WithBoolean("if_exists",
					mcp.Description("Do not error when the table does not exist (default: true)")),
			),
			Handler: s.handleDropTable,
		},
	}

	for _, reg := range registrations {
		if err := s.dispatcher.Register(reg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleListTables(ctx context.Context, args map[string]any) (map[string]any, error) {
	tables, err := s.manager().ListTables(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tables": tables}, nil
}

func (s *Server) handleDescribeTable(ctx context.Context, args map[string]any) (map[string]any, error) {
	var req describeTableRequest
	if err := dispatch.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	if err := requireTable(req.TableName); err != nil {
		return nil, err
	}

	desc, err := s.manager().DescribeTable(ctx, req.TableName)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"table":   desc.Table,
		"columns": desc.Columns,
		"indexes": desc.Indexes,
	}, nil
}

func (s *Server) handleCreateTable(ctx context.Context, args map[string]any) (map[string]any, error) {
	var req createTableRequest
	if err := dispatch.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	if err := requireTable(req.TableName); err != nil {
		return nil, err
	}

	ifNotExists := true
	if req.IfNotExists != nil {
		ifNotExists = *req.IfNotExists
	}

	if err := s.manager().CreateTable(ctx, req.TableName, req.Columns, ifNotExists); err != nil {
		return nil, err
	}
	return map[string]any{
		"message": fmt.Sprintf("Table %s created successfully", req.TableName),
	}, nil
}

func (s *Server) handleAlterTable(ctx context.Context, args map[string]any) (map[string]any, error) {
	var req alterTableRequest
	if err := dispatch.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	if err := requireTable(req.TableName); err != nil {
		return nil, err
	}

	if err := s.manager().AlterTable(ctx, req.TableName, req.Operations); err != nil {
		return nil, err
	}
	return map[string]any{
		"message": fmt.Sprintf("Table %s altered successfully", req.TableName),
	}, nil
}

func (s *Server) handleDropTable(ctx context.Context, args map[string]any) (map[string]any, error) {
	var req dropTableRequest
	if err := dispatch.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	if err := requireTable(req.TableName); err != nil {
		return nil, err
	}

	ifExists := true
	if req.IfExists != nil {
		ifExists = *req.IfExists
	}

	if err := s.manager().DropTable(ctx, req.TableName, req.Cascade, ifExists); err != nil {
		return nil, err
	}
	return map[string]any{
		"message": fmt.Sprintf("Table %s dropped successfully", req.TableName),
	}, nil
}
