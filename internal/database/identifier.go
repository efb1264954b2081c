package database

import (
	"regexp"
	"strings"
)

// identifierRegex validates SQL identifiers (table and column names).
// Only allows alphanumeric characters and underscores, must start with a
// letter or underscore. Identifiers cannot be bound as parameters, so this
// check is the sole injection defense for names interpolated into SQL text.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdentifier reports whether name is a safe SQL identifier.
func ValidIdentifier(name string) bool {
	return identifierRegex.MatchString(name)
}

// CheckIdentifier returns a validation error naming the identifier when it
// does not match the safe grammar.
func CheckIdentifier(kind, name string) error {
	if !ValidIdentifier(name) {
		return NewError(ErrKindValidation, "invalid %s name: %q", kind, name)
	}
	return nil
}

// typeExprRegex allow-lists column type expressions used in DDL. Covers plain
// type names plus parenthesised precision and array suffixes, e.g.
// "varchar(255)", "numeric(10, 2)", "timestamp with time zone", "int[]".
var typeExprRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_ ]*(\(\s*\d+\s*(,\s*\d+\s*)?\))?(\[\])?$`)

// CheckTypeExpr validates a column data type for interpolation into DDL.
// Type names cannot be bound as parameters, so anything outside the
// allow-listed grammar is rejected before it reaches the database.
func CheckTypeExpr(expr string) error {
	if !typeExprRegex.MatchString(strings.TrimSpace(expr)) {
		return NewError(ErrKindValidation, "invalid column type: %q", expr)
	}
	return nil
}

// aggregateExprRegex allow-lists aggregate expressions for SELECT clauses:
// a single function call over * or a column name, e.g. "COUNT(*)",
// "SUM(amount)", "AVG(price)".
var aggregateExprRegex = regexp.MustCompile(`^[a-zA-Z_]+\(\s*(\*|[a-zA-Z_][a-zA-Z0-9_]*)\s*\)$`)

// CheckAggregateExpr validates an aggregate expression for interpolation into
// a SELECT clause.
func CheckAggregateExpr(expr string) error {
	if !aggregateExprRegex.MatchString(strings.TrimSpace(expr)) {
		return NewError(ErrKindValidation, "invalid aggregate expression: %q", expr)
	}
	return nil
}

// defaultExprRegex allow-lists DEFAULT expressions: numeric literals, single
// quoted strings without embedded quotes, bare keywords and simple function
// calls such as now() or gen_random_uuid().
var defaultExprRegex = regexp.MustCompile(`^(-?\d+(\.\d+)?|'[^']*'|[a-zA-Z_][a-zA-Z0-9_]*(\(\))?|TRUE|FALSE|NULL|CURRENT_TIMESTAMP|CURRENT_DATE)$`)

// CheckDefaultExpr validates a DEFAULT expression for interpolation into DDL.
func CheckDefaultExpr(expr string) error {
	if !defaultExprRegex.MatchString(strings.TrimSpace(expr)) {
		return NewError(ErrKindValidation, "invalid default expression: %q", expr)
	}
	return nil
}
