package database

import (
	"context"
	"fmt"
	"strings"
)

// ColumnSpec describes one column of a CREATE TABLE request. Nullable
// defaults to true when omitted.
type ColumnSpec struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Nullable   *bool   `json:"nullable,omitempty"`
	PrimaryKey bool    `json:"primary_key,omitempty"`
	Unique     bool    `json:"unique,omitempty"`
	Default    *string `json:"default,omitempty"`
}

// AlterOperation describes one sub-operation of an ALTER TABLE request.
type AlterOperation struct {
	Type          string  `json:"type"` // add_column, drop_column, alter_column, rename_column
	ColumnName    string  `json:"column_name"`
	DataType      string  `json:"data_type,omitempty"`
	Nullable      *bool   `json:"nullable,omitempty"`
	Default       *string `json:"default,omitempty"` // empty string clears the default
	NewColumnName string  `json:"new_column_name,omitempty"`
}

// TableColumn describes one column in a DescribeTable result.
type TableColumn struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable string `json:"nullable"`
	Default  any    `json:"default"`
}

// TableDescription is the outcome of a DescribeTable call.
type TableDescription struct {
	Table   string            `json:"table"`
	Columns []TableColumn     `json:"columns"`
	Indexes map[string]string `json:"indexes"`
}

// ListTables returns the names of base tables in the public schema, ordered
// by name.
func (m *Manager) ListTables(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	results, _, err := m.execute(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(results))
	for _, row := range results {
		if name, ok := row["table_name"].(string); ok {
			tables = append(tables, name)
		}
	}
	return tables, nil
}

// buildColumnDefinition renders one column clause of a CREATE TABLE
// statement. Type and default expressions cannot be bound as parameters, so
// both pass the allow-listed grammar checks before interpolation.
func buildColumnDefinition(col ColumnSpec) (string, error) {
	if err := CheckIdentifier("column", col.Name); err != nil {
		return "", err
	}
	if err := CheckTypeExpr(col.Type); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(col.Name)
	b.WriteString(" ")
	b.WriteString(col.Type)

	if col.Nullable != nil && !*col.Nullable {
		b.WriteString(" NOT NULL")
	}
	if col.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	if col.Unique {
		b.WriteString(" UNIQUE")
	}
	if col.Default != nil {
		if err := CheckDefaultExpr(*col.Default); err != nil {
			return "", err
		}
		b.WriteString(" DEFAULT ")
		b.WriteString(*col.Default)
	}
	return b.String(), nil
}

// CreateTable builds and executes a single CREATE TABLE statement.
func (m *Manager) CreateTable(ctx context.Context, table string, columns []ColumnSpec, ifNotExists bool) error {
	if err := CheckIdentifier("table", table); err != nil {
		return err
	}
	if len(columns) == 0 {
		return NewError(ErrKindValidation, "no columns provided for table creation")
	}

	definitions := make([]string, len(columns))
	for i, col := range columns {
		def, err := buildColumnDefinition(col)
		if err != nil {
			return err
		}
		definitions[i] = def
	}

	exists := ""
	if ifNotExists {
		exists = "IF NOT EXISTS "
	}
	query := fmt.Sprintf("CREATE TABLE %s%s (%s)", exists, table, strings.Join(definitions, ", "))

	_, _, err := m.execute(ctx, query, nil)
	return err
}

// AlterTable sequentially applies add/drop/alter/rename column operations.
// Each sub-operation validates every identifier it touches and the first
// invalid operation aborts the call.
func (m *Manager) AlterTable(ctx context.Context, table string, operations []AlterOperation) error {
	if err := CheckIdentifier("table", table); err != nil {
		return err
	}
	if len(operations) == 0 {
		return NewError(ErrKindValidation, "no operations provided for table alteration")
	}

	for _, op := range operations {
		if err := CheckIdentifier("column", op.ColumnName); err != nil {
			return err
		}

		switch op.Type {
		case "add_column":
			if err := CheckTypeExpr(op.DataType); err != nil {
				return err
			}
			var b strings.Builder
			fmt.Fprintf(&b, "ALTER TABLE %s ADD COLUMN %s %s", table, op.ColumnName, op.DataType)
			if op.Nullable != nil && !*op.Nullable {
				b.WriteString(" NOT NULL")
			}
			if op.Default != nil && *op.Default != "" {
				if err := CheckDefaultExpr(*op.Default); err != nil {
					return err
				}
				b.WriteString(" DEFAULT " + *op.Default)
			}
			if _, _, err := m.execute(ctx, b.String(), nil); err != nil {
				return err
			}

		case "drop_column":
			query := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, op.ColumnName)
			if _, _, err := m.execute(ctx, query, nil); err != nil {
				return err
			}

		case "alter_column":
			if op.DataType != "" {
				if err := CheckTypeExpr(op.DataType); err != nil {
					return err
				}
				query := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s",
					table, op.ColumnName, op.DataType)
				if _, _, err := m.execute(ctx, query, nil); err != nil {
					return err
				}
			}
			if op.Nullable != nil {
				action := "SET NOT NULL"
				if *op.Nullable {
					action = "DROP NOT NULL"
				}
				query := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s",
					table, op.ColumnName, action)
				if _, _, err := m.execute(ctx, query, nil); err != nil {
					return err
				}
			}
			if op.Default != nil {
				var query string
				if *op.Default == "" {
					query = fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT",
						table, op.ColumnName)
				} else {
					if err := CheckDefaultExpr(*op.Default); err != nil {
						return err
					}
					query = fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s",
						table, op.ColumnName, *op.Default)
				}
				if _, _, err := m.execute(ctx, query, nil); err != nil {
					return err
				}
			}

		case "rename_column":
			if err := CheckIdentifier("column", op.NewColumnName); err != nil {
				return err
			}
			query := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
				table, op.ColumnName, op.NewColumnName)
			if _, _, err := m.execute(ctx, query, nil); err != nil {
				return err
			}

		default:
			return NewError(ErrKindValidation, "unknown alter operation: %q", op.Type)
		}
	}
	return nil
}

// DropTable builds and executes DROP TABLE [IF EXISTS] <table> [CASCADE].
func (m *Manager) DropTable(ctx context.Context, table string, cascade, ifExists bool) error {
	if err := CheckIdentifier("table", table); err != nil {
		return err
	}

	exists := ""
	if ifExists {
		exists = "IF EXISTS "
	}
	suffix := ""
	if cascade {
		suffix = " CASCADE"
	}
	query := fmt.Sprintf("DROP TABLE %s%s%s", exists, table, suffix)

	_, _, err := m.execute(ctx, query, nil)
	return err
}

// DescribeTable reports column definitions and indexes for a table in the
// public schema.
func (m *Manager) DescribeTable(ctx context.Context, table string) (*TableDescription, error) {
	if err := CheckIdentifier("table", table); err != nil {
		return nil, err
	}

	columnQuery := `
		SELECT
			column_name,
			CASE
				WHEN data_type = 'character varying' THEN 'varchar(' || character_maximum_length || ')'
				WHEN data_type = 'character' THEN 'char(' || character_maximum_length || ')'
				ELSE data_type
			END AS data_type,
			is_nullable,
			column_default
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`
	rows, _, err := m.execute(ctx, columnQuery, []any{table})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, NewError(ErrKindExecution, "table %q not found", table)
	}

	desc := &TableDescription{Table: table, Indexes: map[string]string{}}
	for _, row := range rows {
		col := TableColumn{Default: row["column_default"]}
		col.Name, _ = row["column_name"].(string)
		col.Type, _ = row["data_type"].(string)
		col.Nullable, _ = row["is_nullable"].(string)
		desc.Columns = append(desc.Columns, col)
	}

	indexQuery := `
		SELECT indexname, indexdef
		FROM pg_indexes
		WHERE schemaname = 'public' AND tablename = $1
		ORDER BY indexname
	`
	indexRows, _, err := m.execute(ctx, indexQuery, []any{table})
	if err != nil {
		return nil, err
	}
	for _, row := range indexRows {
		name, _ := row["indexname"].(string)
		def, _ := row["indexdef"].(string)
		desc.Indexes[name] = def
	}
	return desc, nil
}

// ExecuteDDL runs one raw DDL statement through the standard execution
// discipline. Used by schema-change sessions, which accept explicit DDL text.
func (m *Manager) ExecuteDDL(ctx context.Context, statement string) (int64, error) {
	if strings.TrimSpace(statement) == "" {
		return 0, NewError(ErrKindValidation, "empty DDL statement")
	}
	_, affected, err := m.execute(ctx, statement, nil)
	return affected, err
}
