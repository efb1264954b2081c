package database

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ToDatabase converts a JSON-decoded value into a form the pgx driver can
// bind as a statement parameter.
//
// Temporal values, decimals and UUIDs pass through natively. Maps and slices
// are serialized to their canonical JSON text so they can be stored in
// json/jsonb columns. Strings that parse as ISO-8601 dates or date-times are
// opportunistically converted to time.Time before being sent to the database.
// That last rule is a heuristic: a genuinely textual value shaped like a date
// (a product code such as "2024-01-02") is silently reinterpreted. Unsupported
// types pass through unchanged.
func ToDatabase(v any) any {
	switch val := v.(type) {
	case time.Time, uuid.UUID, pgtype.Numeric:
		return val
	case map[string]any:
		if b, err := json.Marshal(val); err == nil {
			return string(b)
		}
		return val
	case []any:
		if b, err := json.Marshal(val); err == nil {
			return string(b)
		}
		return val
	case string:
		if t, ok := parseISOString(val); ok {
			return t
		}
		return val
	default:
		return v
	}
}

// parseISOString attempts to interpret s as an ISO-8601 date-time or date.
func parseISOString(s string) (time.Time, bool) {
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ToJSON converts a driver-returned value into a JSON-serializable form.
//
// Dates and times become ISO-8601 strings, numerics become float64, UUIDs
// become their canonical string form, and maps and slices are converted
// recursively. The conversion is total: unsupported types pass through
// unchanged and are left to encoding/json.
func ToJSON(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.Format(time.RFC3339)
	case pgtype.Numeric:
		return numericToFloat(val)
	case uuid.UUID:
		return val.String()
	case [16]byte:
		return uuid.UUID(val).String()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = ToJSON(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = ToJSON(item)
		}
		return out
	default:
		return v
	}
}

// numericToFloat converts a pgtype.Numeric to float64, mirroring the decimal
// to float conversion callers expect in JSON output.
func numericToFloat(n pgtype.Numeric) any {
	if !n.Valid {
		return nil
	}
	if n.NaN {
		return "NaN"
	}
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		// Fall back to exact text via big.Float for out-of-range values.
		if n.Int != nil {
			bf := new(big.Float).SetInt(n.Int)
			approx, _ := bf.Float64()
			return approx
		}
		return nil
	}
	return f.Float64
}

// RowsToMaps drains rows into a slice of column-name keyed maps with every
// value normalized through ToJSON. The caller retains responsibility for
// closing rows.
func RowsToMaps(rows pgx.Rows) ([]map[string]any, error) {
	fields := rows.FieldDescriptions()
	results := make([]map[string]any, 0)

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, field := range fields {
			row[string(field.Name)] = ToJSON(values[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
