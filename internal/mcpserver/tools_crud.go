package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pgentity/entity-mcp/internal/database"
	"github.com/pgentity/entity-mcp/internal/dispatch"
)

// Request types for the CRUD tool set. Every tool decodes the raw argument
// bag into one of these before its handler body runs, so required-field
// violations surface as validation errors rather than handler panics.

type createEntityRequest struct {
	TableName string         `json:"table_name"`
	Data      map[string]any `json:"data"`
}

type readEntityRequest struct {
	TableName      string         `json:"table_name"`
	Conditions     map[string]any `json:"conditions"`
	Limit          *int           `json:"limit"`
	Offset         int            `json:"offset"`
	OrderBy        string         `json:"order_by"`
	OrderDirection string         `json:"order_direction"`
	Aggregate      string         `json:"aggregate"`
	GroupBy        string         `json:"group_by"`
}

type updateEntityRequest struct {
	TableName  string         `json:"table_name"`
	Conditions map[string]any `json:"conditions"`
	Updates    map[string]any `json:"updates"`
}

type deleteEntityRequest struct {
	TableName  string         `json:"table_name"`
	Conditions map[string]any `json:"conditions"`
}

type batchCreateRequest struct {
	TableName string           `json:"table_name"`
	DataList  []map[string]any `json:"data_list"`
}

type batchUpdateRequest struct {
	TableName      string           `json:"table_name"`
	ConditionsList []map[string]any `json:"conditions_list"`
	UpdatesList    []map[string]any `json:"updates_list"`
}

type batchDeleteRequest struct {
	TableName      string           `json:"table_name"`
	ConditionsList []map[string]any `json:"conditions_list"`
}

func requireTable(name string) error {
	if name == "" {
		return fmt.Errorf("missing required parameter: table_name")
	}
	return nil
}

// registerCRUDTools adds the entity CRUD and batch tools to the dispatcher.
func (s *Server) registerCRUDTools() error {
	registrations := []dispatch.Registration{
		{
			Tool: mcp.NewTool("create_entity",
				mcp.WithDescription("Create a new entity (row) in a PostgreSQL table."),
				mcp.WithString("table_name",
					mcp.Required(),
					mcp.Description("Name of the table to insert into")),
				mcp.WithObject("data",
					mcp.Required(),
					mcp.Description("Column names and values to insert")),
			),
			Handler: s.handleCreateEntity,
		},
		{
			Tool: mcp.NewTool("read_entity",
				mcp.WithDescription("Read entities from a PostgreSQL table with optional conditions, ordering, aggregation and pagination."),
				mcp.WithString("table_name",
					mcp.Required(),
					mcp.Description("Name of the table to query")),
				mcp.WithObject("conditions",
					mcp.Description("Optional WHERE conditions as column-value pairs")),
				mcp.WithNumber("limit",
					mcp.Description("Maximum number of rows to return, 1 to 1000 (default: 100)")),
				mcp.WithNumber("offset",
					mcp.Description("Number of rows to skip for pagination (default: 0)")),
				mcp.WithString("order_by",
					mcp.Description("Column name to order by")),
				mcp.WithString("order_direction",
					mcp.Description("Order direction (ASC or DESC, default: ASC)"),
					mcp.Enum("ASC", "DESC")),
				mcp.WithString("aggregate",
					mcp.Description("Aggregate expression, e.g. COUNT(*), SUM(amount)")),
				mcp.WithString("group_by",
					mcp.Description("Column name to group by")),
			),
			Handler: s.handleReadEntity,
		},
		{
			Tool: mcp.NewTool("update_entity",
				mcp.WithDescription("Update entities in a PostgreSQL table."),
				mcp.WithString("table_name",
					mcp.Required(),
					mcp.Description("Name of the table to update")),
				mcp.WithObject("conditions",
					mcp.Required(),
					mcp.Description("WHERE conditions identifying the rows to update")),
				mcp.WithObject("updates",
					mcp.Required(),
					mcp.Description("Columns and values to update")),
			),
			Handler: s.handleUpdateEntity,
		},
		{
			Tool: mcp.NewTool("delete_entity",
				mcp.WithDescription("Delete entities from a PostgreSQL table."),
				mcp.WithString("table_name",
					mcp.Required(),
					mcp.Description("Name of the table to delete from")),
				mcp.WithObject("conditions",
					mcp.Required(),
					mcp.Description("WHERE conditions identifying the rows to delete")),
			),
			Handler: s.handleDeleteEntity,
		},
		{
			Tool: mcp.NewTool("batch_create_entities",
				mcp.WithDescription("Create multiple entities in a single operation. All rows must share the same column set; limited to 1000 rows."),
				mcp.WithString("table_name",
					mcp.Required(),
					mcp.Description("Name of the table to insert into")),
				mcp.WithArray("data_list",
					mcp.Required(),
					mcp.Description("List of objects containing column names and values")),
			),
			Handler: s.handleBatchCreate,
		},
		{
			Tool: mcp.NewTool("batch_update_entities",
				mcp.WithDescription("Update multiple entities with element-wise conditions and updates. Lists must have equal length; limited to 100 pairs."),
				mcp.WithString("table_name",
					mcp.Required(),
					mcp.Description("Name of the table to update")),
				mcp.WithArray("conditions_list",
					mcp.Required(),
					mcp.Description("List of WHERE conditions, one per entity")),
				mcp.WithArray("updates_list",
					mcp.Required(),
					mcp.Description("List of updates, one per entity")),
			),
			Handler: s.handleBatchUpdate,
		},
		{
			Tool: mcp.NewTool("batch_delete_entities",
				mcp.WithDescription("Delete multiple entities with element-wise conditions. Limited to 100 condition sets."),
				mcp.WithString("table_name",
					mcp.Required(),
					mcp.Description("Name of the table to delete from")),
				mcp.WithArray("conditions_list",
					mcp.Required(),
					mcp.Description("List of WHERE conditions, one per entity")),
			),
			Handler: s.handleBatchDelete,
		},
	}

	for _, reg := range registrations {
		if err := s.dispatcher.Register(reg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleCreateEntity(ctx context.Context, args map[string]any) (map[string]any, error) {
	var req createEntityRequest
	if err := dispatch.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	if err := requireTable(req.TableName); err != nil {
		return nil, err
	}

	result, err := s.manager().Create(ctx, req.TableName, req.Data)
	if err != nil {
		return nil, err
	}
	return map[string]any{"created": result.Created}, nil
}

func (s *Server) handleReadEntity(ctx context.Context, args map[string]any) (map[string]any, error) {
	var req readEntityRequest
	if err := dispatch.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	if err := requireTable(req.TableName); err != nil {
		return nil, err
	}

	// A missing limit falls back to 100; an explicit zero or negative limit
	// deliberately removes the cap.
	limit := 100
	if req.Limit != nil {
		limit = *req.Limit
	}

	result, err := s.manager().Read(ctx, req.TableName, database.ReadOptions{
		Conditions:     req.Conditions,
		Limit:          limit,
		Offset:         req.Offset,
		OrderBy:        req.OrderBy,
		OrderDirection: req.OrderDirection,
		Aggregate:      req.Aggregate,
		GroupBy:        req.GroupBy,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"results": result.Results, "count": result.Count}, nil
}

func (s *Server) handleUpdateEntity(ctx context.Context, args map[string]any) (map[string]any, error) {
	var req updateEntityRequest
	if err := dispatch.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	if err := requireTable(req.TableName); err != nil {
		return nil, err
	}
	if len(req.Conditions) == 0 {
		return nil, fmt.Errorf("missing required parameter: conditions")
	}

	result, err := s.manager().Update(ctx, req.TableName, req.Conditions, req.Updates)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"updated":       result.Updated,
		"affected_rows": result.AffectedRows,
	}, nil
}

func (s *Server) handleDeleteEntity(ctx context.Context, args map[string]any) (map[string]any, error) {
	var req deleteEntityRequest
	if err := dispatch.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	if err := requireTable(req.TableName); err != nil {
		return nil, err
	}
	if len(req.Conditions) == 0 {
		return nil, fmt.Errorf("missing required parameter: conditions")
	}

	result, err := s.manager().Delete(ctx, req.TableName, req.Conditions)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"deleted":       result.Deleted,
		"affected_rows": result.AffectedRows,
	}, nil
}

func (s *Server) handleBatchCreate(ctx context.Context, args map[string]any) (map[string]any, error) {
	var req batchCreateRequest
	if err := dispatch.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	if err := requireTable(req.TableName); err != nil {
		return nil, err
	}

	result, err := s.manager().BatchCreate(ctx, req.TableName, req.DataList)
	if err != nil {
		return nil, err
	}
	return map[string]any{"created": result.Created, "count": result.Count}, nil
}

func (s *Server) handleBatchUpdate(ctx context.Context, args map[string]any) (map[string]any, error) {
	var req batchUpdateRequest
	if err := dispatch.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	if err := requireTable(req.TableName); err != nil {
		return nil, err
	}

	result, err := s.manager().BatchUpdate(ctx, req.TableName, req.ConditionsList, req.UpdatesList)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"updated":       result.Updated,
		"affected_rows": result.AffectedRows,
		"count":         result.Count,
	}, nil
}

func (s *Server) handleBatchDelete(ctx context.Context, args map[string]any) (map[string]any, error) {
	var req batchDeleteRequest
	if err := dispatch.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	if err := requireTable(req.TableName); err != nil {
		return nil, err
	}

	result, err := s.manager().BatchDelete(ctx, req.TableName, req.ConditionsList)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"deleted":       result.Deleted,
		"affected_rows": result.AffectedRows,
		"count":         result.Count,
	}, nil
}
