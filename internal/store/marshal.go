package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/prova/internal/graph"
)

// marshalValues converts a JSON-like map to canonical JSON TEXT for storage.
// A nil map is stored as "{}".
func marshalValues(field string, values map[string]any) (string, error) {
	if values == nil {
		return "{}", nil
	}
	data, err := graph.MarshalCanonical(values)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", field, err)
	}
	return string(data), nil
}

// unmarshalValues parses canonical JSON TEXT, keeping numbers as
// json.Number to avoid float64 precision loss.
func unmarshalValues(field, data string) (map[string]any, error) {
	values, err := graph.UnmarshalValues([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", field, err)
	}
	return values, nil
}

// nullString maps "" to SQL NULL for optional foreign keys.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
