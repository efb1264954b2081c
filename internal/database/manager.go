package database

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// MaxBatchCreate caps the number of rows accepted by BatchCreate.
	MaxBatchCreate = 1000
	// MaxBatchModify caps the number of pairs accepted by BatchUpdate and
	// BatchDelete.
	MaxBatchModify = 100
)

// Manager translates structured CRUD and DDL requests into parameterized SQL,
// executes it through a pooled connection, and normalizes row data for JSON
// serialization.
//
// A Manager either owns its pool (opened and closed with the manager's
// lifetime) or borrows a shared pool injected at construction. A borrowing
// manager never closes the shared pool.
type Manager struct {
	pool  *Pool
	owned bool
	log   zerolog.Logger
}

// NewManager creates a Manager that owns a dedicated pool for cfg.
func NewManager(cfg Config, log zerolog.Logger) *Manager {
	return &Manager{pool: NewPool(cfg, log), owned: true, log: log}
}

// NewSharedManager creates a Manager that borrows pool. Closing the returned
// manager leaves the pool untouched.
func NewSharedManager(pool *Pool, log zerolog.Logger) *Manager {
	return &Manager{pool: pool, owned: false, log: log}
}

// Pool exposes the underlying pool, shared or owned.
func (m *Manager) Pool() *Pool { return m.pool }

// Close releases the pool if this manager owns it.
func (m *Manager) Close() {
	if m.owned {
		m.pool.Disconnect()
	}
}

// CreateResult is the outcome of a single-row insert.
type CreateResult struct {
	Created map[string]any `json:"created"`
}

// ReadResult is the outcome of a Read call.
type ReadResult struct {
	Results []map[string]any `json:"results"`
	Count   int              `json:"count"`
}

// UpdateResult is the outcome of an Update call.
type UpdateResult struct {
	Updated      map[string]any `json:"updated"`
	AffectedRows int            `json:"affected_rows"`
}

// DeleteResult is the outcome of a Delete call.
type DeleteResult struct {
	Deleted      []map[string]any `json:"deleted"`
	AffectedRows int              `json:"affected_rows"`
}

// BatchCreateResult is the outcome of a BatchCreate call.
type BatchCreateResult struct {
	Created []map[string]any `json:"created"`
	Count   int              `json:"count"`
}

// BatchUpdateResult reports partial-success batch updates. Only rows whose
// individual update succeeded appear in Updated.
type BatchUpdateResult struct {
	Updated      []map[string]any `json:"updated"`
	AffectedRows int              `json:"affected_rows"`
	Count        int              `json:"count"`
}

// BatchDeleteResult reports partial-success batch deletes.
type BatchDeleteResult struct {
	Deleted      []map[string]any `json:"deleted"`
	AffectedRows int              `json:"affected_rows"`
	Count        int              `json:"count"`
}

// ReadOptions carries the optional clauses of a Read call.
type ReadOptions struct {
	Conditions     map[string]any
	Limit          int
	Offset         int
	OrderBy        string
	OrderDirection string
	Aggregate      string
	GroupBy        string
}

// execute runs one statement inside its own transaction, following the
// per-statement discipline: SELECT-shaped statements fetch rows and roll back
// (no mutation to commit); statements carrying RETURNING fetch rows then
// commit; anything else commits and reports only the affected-row count.
// Driver errors roll the transaction back before being surfaced.
func (m *Manager) execute(ctx context.Context, query string, args []any) ([]map[string]any, int64, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, 0, WrapError(ErrKindConnection, err, "failed to begin transaction")
	}

	upper := strings.ToUpper(strings.TrimSpace(query))
	returnsRows := isSelectShaped(upper) || strings.Contains(upper, "RETURNING")

	if !returnsRows {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			_ = tx.Rollback(ctx)
			return nil, 0, WrapError(ErrKindExecution, err, "query execution failed")
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, 0, WrapError(ErrKindExecution, err, "commit failed")
		}
		return nil, tag.RowsAffected(), nil
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, 0, WrapError(ErrKindExecution, err, "query execution failed")
	}
	results, err := RowsToMaps(rows)
	rows.Close()
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, 0, WrapError(ErrKindExecution, err, "query execution failed")
	}

	if isSelectShaped(upper) {
		// Read-only statement batch, nothing to commit.
		_ = tx.Rollback(ctx)
	} else if err := tx.Commit(ctx); err != nil {
		return nil, 0, WrapError(ErrKindExecution, err, "commit failed")
	}
	return results, int64(len(results)), nil
}

func isSelectShaped(upper string) bool {
	for _, prefix := range []string{"SELECT", "WITH", "TABLE", "VALUES", "SHOW", "EXPLAIN"} {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}

// sortedKeys returns map keys in deterministic order so generated SQL is
// stable across calls.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Create inserts one row and returns it via RETURNING *. Column values are
// always bound as parameters, never interpolated.
func (m *Manager) Create(ctx context.Context, table string, data map[string]any) (*CreateResult, error) {
	if err := CheckIdentifier("table", table); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, NewError(ErrKindValidation, "no data provided for creation")
	}

	columns := sortedKeys(data)
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		if err := CheckIdentifier("column", col); err != nil {
			return nil, err
		}
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = ToDatabase(data[col])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	results, _, err := m.execute(ctx, query, args)
	if err != nil {
		return nil, err
	}
	created := map[string]any{}
	if len(results) > 0 {
		created = results[0]
	}
	return &CreateResult{Created: created}, nil
}

// Read selects rows with optional conditions, grouping, ordering and
// pagination. A limit or offset of zero or below omits the corresponding
// clause entirely, so Read with Limit 0 returns every matching row.
func (m *Manager) Read(ctx context.Context, table string, opts ReadOptions) (*ReadResult, error) {
	if err := CheckIdentifier("table", table); err != nil {
		return nil, err
	}

	var b strings.Builder
	if opts.Aggregate != "" {
		if err := CheckAggregateExpr(opts.Aggregate); err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "SELECT %s FROM %s", opts.Aggregate, table)
	} else {
		fmt.Fprintf(&b, "SELECT * FROM %s", table)
	}

	var args []any
	if len(opts.Conditions) > 0 {
		clauses := make([]string, 0, len(opts.Conditions))
		for _, col := range sortedKeys(opts.Conditions) {
			if err := CheckIdentifier("column", col); err != nil {
				return nil, err
			}
			args = append(args, ToDatabase(opts.Conditions[col]))
			clauses = append(clauses, fmt.Sprintf("%s = $%d", col, len(args)))
		}
		b.WriteString(" WHERE " + strings.Join(clauses, " AND "))
	}

	if opts.GroupBy != "" {
		if err := CheckIdentifier("column", opts.GroupBy); err != nil {
			return nil, err
		}
		b.WriteString(" GROUP BY " + opts.GroupBy)
	}

	if opts.OrderBy != "" {
		if err := CheckIdentifier("column", opts.OrderBy); err != nil {
			return nil, err
		}
		direction := strings.ToUpper(opts.OrderDirection)
		if direction != "ASC" && direction != "DESC" {
			direction = "ASC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", opts.OrderBy, direction)
	}

	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", opts.Offset)
	}

	results, _, err := m.execute(ctx, b.String(), args)
	if err != nil {
		return nil, err
	}
	return &ReadResult{Results: results, Count: len(results)}, nil
}

// Update modifies rows matching conditions and returns the first updated row
// plus the affected-row count. SET and WHERE values occupy distinct parameter
// ranges so a column appearing in both never collides.
func (m *Manager) Update(ctx context.Context, table string, conditions, updates map[string]any) (*UpdateResult, error) {
	if err := CheckIdentifier("table", table); err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, NewError(ErrKindValidation, "no updates provided")
	}

	var args []any
	setClauses := make([]string, 0, len(updates))
	for _, col := range sortedKeys(updates) {
		if err := CheckIdentifier("column", col); err != nil {
			return nil, err
		}
		args = append(args, ToDatabase(updates[col]))
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	whereClauses := make([]string, 0, len(conditions))
	for _, col := range sortedKeys(conditions) {
		if err := CheckIdentifier("column", col); err != nil {
			return nil, err
		}
		args = append(args, ToDatabase(conditions[col]))
		whereClauses = append(whereClauses, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING *",
		table, strings.Join(setClauses, ", "), strings.Join(whereClauses, " AND "))

	results, _, err := m.execute(ctx, query, args)
	if err != nil {
		return nil, err
	}
	updated := map[string]any{}
	if len(results) > 0 {
		updated = results[0]
	}
	return &UpdateResult{Updated: updated, AffectedRows: len(results)}, nil
}

// Delete removes rows matching conditions and returns every deleted row.
func (m *Manager) Delete(ctx context.Context, table string, conditions map[string]any) (*DeleteResult, error) {
	if err := CheckIdentifier("table", table); err != nil {
		return nil, err
	}

	var args []any
	whereClauses := make([]string, 0, len(conditions))
	for _, col := range sortedKeys(conditions) {
		if err := CheckIdentifier("column", col); err != nil {
			return nil, err
		}
		args = append(args, ToDatabase(conditions[col]))
		whereClauses = append(whereClauses, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if len(whereClauses) == 0 {
		return nil, NewError(ErrKindValidation, "no conditions provided for deletion")
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s RETURNING *",
		table, strings.Join(whereClauses, " AND "))

	results, _, err := m.execute(ctx, query, args)
	if err != nil {
		return nil, err
	}
	return &DeleteResult{Deleted: results, AffectedRows: len(results)}, nil
}

// BatchCreate inserts up to MaxBatchCreate rows, one statement per row. The
// first row's column set is fixed for every statement: all rows in one batch
// must share the same key set, otherwise missing keys insert NULL. The first
// failing row aborts the batch.
func (m *Manager) BatchCreate(ctx context.Context, table string, rows []map[string]any) (*BatchCreateResult, error) {
	if err := CheckIdentifier("table", table); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, NewError(ErrKindValidation, "no data provided for batch creation")
	}
	if len(rows) > MaxBatchCreate {
		return nil, NewError(ErrKindValidation,
			"batch creation limited to %d entities per operation", MaxBatchCreate)
	}

	columns := sortedKeys(rows[0])
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		if err := CheckIdentifier("column", col); err != nil {
			return nil, err
		}
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	created := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		args := make([]any, len(columns))
		for i, col := range columns {
			args[i] = ToDatabase(row[col])
		}
		results, _, err := m.execute(ctx, query, args)
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			created = append(created, results[0])
		}
	}
	return &BatchCreateResult{Created: created, Count: len(created)}, nil
}

// BatchUpdate applies element-wise condition/update pairs, up to
// MaxBatchModify. Individual execution failures are skipped rather than
// aborting the batch; only rows that succeeded appear in the result.
// Validation failures still abort, since they indicate a malformed request.
func (m *Manager) BatchUpdate(ctx context.Context, table string, conditionsList, updatesList []map[string]any) (*BatchUpdateResult, error) {
	if err := CheckIdentifier("table", table); err != nil {
		return nil, err
	}
	if len(conditionsList) != len(updatesList) {
		return nil, NewError(ErrKindValidation,
			"conditions list and updates list must have the same length")
	}
	if len(conditionsList) > MaxBatchModify {
		return nil, NewError(ErrKindValidation,
			"batch update limited to %d entities per operation", MaxBatchModify)
	}

	updated := make([]map[string]any, 0, len(conditionsList))
	affected := 0
	for i := range conditionsList {
		result, err := m.Update(ctx, table, conditionsList[i], updatesList[i])
		if err != nil {
			if IsValidation(err) {
				return nil, err
			}
			m.log.Warn().Err(err).Int("index", i).Str("table", table).
				Msg("batch update pair failed")
			continue
		}
		updated = append(updated, result.Updated)
		affected += result.AffectedRows
	}
	return &BatchUpdateResult{Updated: updated, AffectedRows: affected, Count: len(updated)}, nil
}

// BatchDelete deletes element-wise condition sets with the same cap and
// partial-success policy as BatchUpdate.
func (m *Manager) BatchDelete(ctx context.Context, table string, conditionsList []map[string]any) (*BatchDeleteResult, error) {
	if err := CheckIdentifier("table", table); err != nil {
		return nil, err
	}
	if len(conditionsList) > MaxBatchModify {
		return nil, NewError(ErrKindValidation,
			"batch delete limited to %d entities per operation", MaxBatchModify)
	}

	deleted := make([]map[string]any, 0, len(conditionsList))
	affected := 0
	for i, conditions := range conditionsList {
		result, err := m.Delete(ctx, table, conditions)
		if err != nil {
			if IsValidation(err) {
				return nil, err
			}
			m.log.Warn().Err(err).Int("index", i).Str("table", table).
				Msg("batch delete pair failed")
			continue
		}
		deleted = append(deleted, result.Deleted...)
		affected += result.AffectedRows
	}
	return &BatchDeleteResult{Deleted: deleted, AffectedRows: affected, Count: len(deleted)}, nil
}
