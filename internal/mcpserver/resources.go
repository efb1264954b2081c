package mcpserver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pgentity/entity-mcp/internal/database"
)

const (
	tablesResourceURI = "database://tables"
	schemaURIPrefix   = "database://schema/"
)

// registerResources adds the table listing resource and the per-table schema
// resource template.
func (s *Server) registerResources(srv *server.MCPServer) {
	srv.AddResource(mcp.NewResource(
		tablesResourceURI,
		"Database tables",
		mcp.WithResourceDescription("Names of all base tables in the public schema"),
		mcp.WithMIMEType("text/markdown"),
	), s.handleTablesResource)

	srv.AddResourceTemplate(mcp.NewResourceTemplate(
		schemaURIPrefix+"{table}",
		"Table schema",
		mcp.WithTemplateDescription("Column definitions and indexes for a table"),
		mcp.WithTemplateMIMEType("text/markdown"),
	), s.handleSchemaResource)
}

func (s *Server) handleTablesResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	tables, err := s.manager().ListTables(ctx)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("# Tables\n\n")
	if len(tables) == 0 {
		b.WriteString("No tables in the public schema.\n")
	}
	for _, t := range tables {
		fmt.Fprintf(&b, "- %s (%s%s)\n", t, schemaURIPrefix, t)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "text/markdown",
			Text:     b.String(),
		},
	}, nil
}

func (s *Server) handleSchemaResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	table := strings.TrimPrefix(request.Params.URI, schemaURIPrefix)
	if err := database.CheckIdentifier("table", table); err != nil {
		return nil, err
	}

	desc, err := s.manager().DescribeTable(ctx, table)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "text/markdown",
			Text:     renderTableSchema(*desc),
		},
	}, nil
}

func renderTableSchema(desc database.TableDescription) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Table: %s\n\n", desc.Table)

	b.WriteString("| Column | Type | Nullable | Default |\n")
	b.WriteString("|--------|------|----------|---------|\n")
	for _, col := range desc.Columns {
		def := ""
		if col.Default != nil {
			def = fmt.Sprintf("%v", col.Default)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", col.Name, col.Type, col.Nullable, def)
	}

	if len(desc.Indexes) > 0 {
		b.WriteString("\n## Indexes\n\n")
		names := make([]string, 0, len(desc.Indexes))
		for name := range desc.Indexes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "- %s: `%s`\n", name, desc.Indexes[name])
		}
	}
	return b.String()
}
