package database_test

import (
	"context"
	"fmt"
	"os/exec"
	"testing"

	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/pgentity/entity-mcp/internal/database"
)

// dockerAvailable checks whether the Docker daemon is reachable.
// testcontainers-go panics (rather than returning an error) when Docker
// is not installed, so we probe for it up-front.
func dockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// newTestManager spins up a PostgreSQL 16 container via testcontainers-go and
// returns a Manager connected to it. If Docker is not available the test is
// skipped.
func newTestManager(t *testing.T) *database.Manager {
	t.Helper()

	if !dockerAvailable() {
		t.Skip("Docker not available, skipping PostgreSQL integration tests")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("failed to start PostgreSQL container: %v", err)
	}

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	mgr := database.NewManager(database.Config{URL: connStr}, zerolog.Nop())
	t.Cleanup(mgr.Close)

	if !mgr.Pool().TestConnection(ctx) {
		t.Fatal("connection test failed against fresh container")
	}
	return mgr
}

// makeItemsTable creates a simple table used by most CRUD tests.
func makeItemsTable(t *testing.T, mgr *database.Manager) {
	t.Helper()

	err := mgr.CreateTable(context.Background(), "items", []database.ColumnSpec{
		{Name: "id", Type: "serial", PrimaryKey: true},
		{Name: "name", Type: "text", Nullable: boolFalse()},
		{Name: "qty", Type: "integer"},
	}, true)
	if err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
}

func boolFalse() *bool { b := false; return &b }

// ---------------------------------------------------------------------------
// CRUD round trips
// ---------------------------------------------------------------------------

func TestIntegration_CreateReadRoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	makeItemsTable(t, mgr)
	ctx := context.Background()

	created, err := mgr.Create(ctx, "items", map[string]any{"name": "widget", "qty": 3})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Created["name"] != "widget" {
		t.Errorf("created name = %v, want widget", created.Created["name"])
	}
	if created.Created["id"] == nil {
		t.Error("created row missing generated id")
	}

	read, err := mgr.Read(ctx, "items", database.ReadOptions{
		Conditions: map[string]any{"name": "widget"},
	})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if read.Count != 1 {
		t.Fatalf("Read count = %d, want 1", read.Count)
	}
	if read.Results[0]["qty"] != int32(3) && read.Results[0]["qty"] != int64(3) {
		t.Errorf("qty = %v (%T), want 3", read.Results[0]["qty"], read.Results[0]["qty"])
	}
}

func TestIntegration_ReadOrderingAndPagination(t *testing.T) {
	mgr := newTestManager(t)
	makeItemsTable(t, mgr)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if _, err := mgr.Create(ctx, "items", map[string]any{
			"name": fmt.Sprintf("item-%d", i), "qty": i,
		}); err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}

	read, err := mgr.Read(ctx, "items", database.ReadOptions{
		OrderBy:        "qty",
		OrderDirection: "DESC",
		Limit:          2,
		Offset:         1,
	})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if read.Count != 2 {
		t.Fatalf("count = %d, want 2", read.Count)
	}
	if read.Results[0]["name"] != "item-4" || read.Results[1]["name"] != "item-3" {
		t.Errorf("unexpected page: %v", read.Results)
	}

	// Limit zero removes the cap entirely.
	all, err := mgr.Read(ctx, "items", database.ReadOptions{Limit: 0})
	if err != nil {
		t.Fatalf("uncapped Read failed: %v", err)
	}
	if all.Count != 5 {
		t.Errorf("uncapped count = %d, want 5", all.Count)
	}
}

func TestIntegration_ReadAggregate(t *testing.T) {
	mgr := newTestManager(t)
	makeItemsTable(t, mgr)
	ctx := context.Background()

	for _, row := range []map[string]any{
		{"name": "a", "qty": 1},
		{"name": "a", "qty": 2},
		{"name": "b", "qty": 10},
	} {
		if _, err := mgr.Create(ctx, "items", row); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	read, err := mgr.Read(ctx, "items", database.ReadOptions{
		Aggregate: "COUNT(*)",
	})
	if err != nil {
		t.Fatalf("aggregate Read failed: %v", err)
	}
	if read.Count != 1 {
		t.Fatalf("aggregate row count = %d, want 1", read.Count)
	}
	if read.Results[0]["count"] != int64(3) {
		t.Errorf("count = %v, want 3", read.Results[0]["count"])
	}

	grouped, err := mgr.Read(ctx, "items", database.ReadOptions{
		Aggregate: "SUM(qty)",
		GroupBy:   "name",
		Conditions: map[string]any{
			"name": "a",
		},
	})
	if err != nil {
		t.Fatalf("grouped Read failed: %v", err)
	}
	if grouped.Count != 1 {
		t.Fatalf("grouped row count = %d, want 1", grouped.Count)
	}
}

func TestIntegration_UpdateAndDelete(t *testing.T) {
	mgr := newTestManager(t)
	makeItemsTable(t, mgr)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := mgr.Create(ctx, "items", map[string]any{"name": "bulk", "qty": i}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	updated, err := mgr.Update(ctx, "items",
		map[string]any{"name": "bulk"},
		map[string]any{"qty": 99})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.AffectedRows != 3 {
		t.Errorf("affected rows = %d, want 3", updated.AffectedRows)
	}
	if updated.Updated["qty"] != int32(99) && updated.Updated["qty"] != int64(99) {
		t.Errorf("updated qty = %v, want 99", updated.Updated["qty"])
	}

	deleted, err := mgr.Delete(ctx, "items", map[string]any{"name": "bulk"})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if deleted.AffectedRows != 3 || len(deleted.Deleted) != 3 {
		t.Errorf("deleted = %d rows, want 3", deleted.AffectedRows)
	}

	remaining, err := mgr.Read(ctx, "items", database.ReadOptions{})
	if err != nil {
		t.Fatalf("Read after delete failed: %v", err)
	}
	if remaining.Count != 0 {
		t.Errorf("rows left after delete = %d, want 0", remaining.Count)
	}
}

func TestIntegration_UpdateSameColumnInSetAndWhere(t *testing.T) {
	mgr := newTestManager(t)
	makeItemsTable(t, mgr)
	ctx := context.Background()

	if _, err := mgr.Create(ctx, "items", map[string]any{"name": "x", "qty": 1}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := mgr.Update(ctx, "items",
		map[string]any{"qty": 1},
		map[string]any{"qty": 2})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.AffectedRows != 1 {
		t.Errorf("affected rows = %d, want 1", updated.AffectedRows)
	}
}

// ---------------------------------------------------------------------------
// Batch operations
// ---------------------------------------------------------------------------

func TestIntegration_BatchCreate(t *testing.T) {
	mgr := newTestManager(t)
	makeItemsTable(t, mgr)
	ctx := context.Background()

	rows := make([]map[string]any, 10)
	for i := range rows {
		rows[i] = map[string]any{"name": fmt.Sprintf("batch-%d", i), "qty": i}
	}

	result, err := mgr.BatchCreate(ctx, "items", rows)
	if err != nil {
		t.Fatalf("BatchCreate failed: %v", err)
	}
	if result.Count != 10 {
		t.Errorf("count = %d, want 10", result.Count)
	}
}

func TestIntegration_BatchCreateFailFast(t *testing.T) {
	mgr := newTestManager(t)
	makeItemsTable(t, mgr)
	ctx := context.Background()

	// Second row violates NOT NULL on name; the batch aborts there and the
	// third row is never attempted.
	rows := []map[string]any{
		{"name": "ok", "qty": 1},
		{"name": nil, "qty": 2},
		{"name": "never", "qty": 3},
	}
	if _, err := mgr.BatchCreate(ctx, "items", rows); err == nil {
		t.Fatal("BatchCreate with constraint violation succeeded, want error")
	}

	read, err := mgr.Read(ctx, "items", database.ReadOptions{})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if read.Count != 1 {
		t.Errorf("rows after aborted batch = %d, want 1", read.Count)
	}
}

func TestIntegration_BatchUpdatePartialSuccess(t *testing.T) {
	mgr := newTestManager(t)
	makeItemsTable(t, mgr)
	ctx := context.Background()

	if _, err := mgr.Create(ctx, "items", map[string]any{"name": "a", "qty": 1}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := mgr.Create(ctx, "items", map[string]any{"name": "b", "qty": 2}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// The middle pair references a column that does not exist; that pair is
	// skipped while the others go through.
	result, err := mgr.BatchUpdate(ctx, "items",
		[]map[string]any{
			{"name": "a"},
			{"missing_col": 1},
			{"name": "b"},
		},
		[]map[string]any{
			{"qty": 10},
			{"qty": 20},
			{"qty": 30},
		})
	if err != nil {
		t.Fatalf("BatchUpdate failed: %v", err)
	}
	if result.Count != 2 {
		t.Errorf("successful pairs = %d, want 2", result.Count)
	}
	if result.AffectedRows != 2 {
		t.Errorf("affected rows = %d, want 2", result.AffectedRows)
	}
}

func TestIntegration_BatchDelete(t *testing.T) {
	mgr := newTestManager(t)
	makeItemsTable(t, mgr)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := mgr.Create(ctx, "items", map[string]any{
			"name": fmt.Sprintf("d-%d", i), "qty": i,
		}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	result, err := mgr.BatchDelete(ctx, "items", []map[string]any{
		{"name": "d-0"},
		{"name": "d-2"},
	})
	if err != nil {
		t.Fatalf("BatchDelete failed: %v", err)
	}
	if result.AffectedRows != 2 {
		t.Errorf("affected rows = %d, want 2", result.AffectedRows)
	}

	read, err := mgr.Read(ctx, "items", database.ReadOptions{})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if read.Count != 2 {
		t.Errorf("remaining rows = %d, want 2", read.Count)
	}
}

// ---------------------------------------------------------------------------
// Schema management
// ---------------------------------------------------------------------------

func TestIntegration_ListAndDescribeTables(t *testing.T) {
	mgr := newTestManager(t)
	makeItemsTable(t, mgr)
	ctx := context.Background()

	tables, err := mgr.ListTables(ctx)
	if err != nil {
		t.Fatalf("ListTables failed: %v", err)
	}
	found := false
	for _, name := range tables {
		if name == "items" {
			found = true
		}
	}
	if !found {
		t.Fatalf("ListTables = %v, want to contain items", tables)
	}

	desc, err := mgr.DescribeTable(ctx, "items")
	if err != nil {
		t.Fatalf("DescribeTable failed: %v", err)
	}
	if len(desc.Columns) != 3 {
		t.Errorf("column count = %d, want 3", len(desc.Columns))
	}
	if desc.Columns[0].Name != "id" {
		t.Errorf("first column = %s, want id (ordinal order)", desc.Columns[0].Name)
	}
	if len(desc.Indexes) == 0 {
		t.Error("primary key index missing from description")
	}

	if _, err := mgr.DescribeTable(ctx, "no_such_table"); err == nil {
		t.Error("DescribeTable on missing table succeeded, want error")
	}
}

func TestIntegration_AlterTable(t *testing.T) {
	mgr := newTestManager(t)
	makeItemsTable(t, mgr)
	ctx := context.Background()

	nullable := true
	err := mgr.AlterTable(ctx, "items", []database.AlterOperation{
		{Type: "add_column", ColumnName: "price", DataType: "numeric(10, 2)"},
		{Type: "rename_column", ColumnName: "qty", NewColumnName: "quantity"},
		{Type: "alter_column", ColumnName: "name", Nullable: &nullable},
		{Type: "drop_column", ColumnName: "price"},
	})
	if err != nil {
		t.Fatalf("AlterTable failed: %v", err)
	}

	desc, err := mgr.DescribeTable(ctx, "items")
	if err != nil {
		t.Fatalf("DescribeTable failed: %v", err)
	}
	names := make(map[string]string)
	for _, col := range desc.Columns {
		names[col.Name] = col.Nullable
	}
	if _, ok := names["quantity"]; !ok {
		t.Errorf("quantity column missing after rename: %v", names)
	}
	if _, ok := names["price"]; ok {
		t.Error("price column still present after drop")
	}
	if names["name"] != "YES" {
		t.Errorf("name nullable = %q, want YES", names["name"])
	}
}

func TestIntegration_DropTable(t *testing.T) {
	mgr := newTestManager(t)
	makeItemsTable(t, mgr)
	ctx := context.Background()

	if err := mgr.DropTable(ctx, "items", false, true); err != nil {
		t.Fatalf("DropTable failed: %v", err)
	}
	// IF EXISTS makes the second drop a no-op.
	if err := mgr.DropTable(ctx, "items", false, true); err != nil {
		t.Fatalf("repeated DropTable failed: %v", err)
	}

	tables, err := mgr.ListTables(ctx)
	if err != nil {
		t.Fatalf("ListTables failed: %v", err)
	}
	for _, name := range tables {
		if name == "items" {
			t.Error("items still listed after drop")
		}
	}
}

func TestIntegration_ExecuteDDL(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	affected, err := mgr.ExecuteDDL(ctx, "CREATE TABLE raw_ddl (id serial PRIMARY KEY)")
	if err != nil {
		t.Fatalf("ExecuteDDL failed: %v", err)
	}
	if affected != 0 {
		t.Errorf("affected = %d, want 0 for DDL", affected)
	}

	if _, err := mgr.ExecuteDDL(ctx, "this is not sql"); err == nil {
		t.Error("ExecuteDDL with invalid SQL succeeded, want error")
	}

	tables, err := mgr.ListTables(ctx)
	if err != nil {
		t.Fatalf("ListTables failed: %v", err)
	}
	found := false
	for _, name := range tables {
		if name == "raw_ddl" {
			found = true
		}
	}
	if !found {
		t.Errorf("raw_ddl missing from %v", tables)
	}
}

// ---------------------------------------------------------------------------
// Value round trips
// ---------------------------------------------------------------------------

func TestIntegration_ValueRoundTrips(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	err := mgr.CreateTable(ctx, "payloads", []database.ColumnSpec{
		{Name: "id", Type: "serial", PrimaryKey: true},
		{Name: "meta", Type: "jsonb"},
		{Name: "due", Type: "timestamptz"},
		{Name: "amount", Type: "numeric(12, 2)"},
	}, true)
	if err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	created, err := mgr.Create(ctx, "payloads", map[string]any{
		"meta":   map[string]any{"tags": []any{"x", "y"}},
		"due":    "2024-06-15T10:30:00Z",
		"amount": 12.5,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	meta, ok := created.Created["meta"].(map[string]any)
	if !ok {
		t.Fatalf("meta = %T, want map", created.Created["meta"])
	}
	if _, ok := meta["tags"]; !ok {
		t.Errorf("meta lost tags: %v", meta)
	}

	due, ok := created.Created["due"].(string)
	if !ok {
		t.Fatalf("due = %T, want ISO string", created.Created["due"])
	}
	if due != "2024-06-15T10:30:00Z" {
		t.Errorf("due = %q, want round-tripped timestamp", due)
	}

	if _, ok := created.Created["amount"].(float64); !ok {
		t.Errorf("amount = %T, want float64", created.Created["amount"])
	}
}
