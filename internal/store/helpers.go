package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// timeToNullString converts a time to a nullable RFC3339 string. Times
// are stored in UTC so lexicographic order matches chronological order.
func timeToNullString(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// nullStringToTime parses a nullable RFC3339 string, returning the zero
// time for NULL or unparseable values.
func nullStringToTime(ns sql.NullString) time.Time {
	if !ns.Valid || ns.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// idsToJSON serializes an ID list to a JSON array string. Nil and empty
// slices both encode as "[]" so the column never holds SQL NULL.
func idsToJSON(ids []int64) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("failed to marshal ids: %w", err)
	}
	return string(data), nil
}

// jsonToIDs parses a JSON array column back into an ID list
func jsonToIDs(s string) ([]int64, error) {
	if s == "" || s == "[]" || s == "null" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ids: %w", err)
	}
	return ids, nil
}

// stringsToJSON serializes a string list to a JSON array string
func stringsToJSON(vals []string) (string, error) {
	if len(vals) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(vals)
	if err != nil {
		return "", fmt.Errorf("failed to marshal strings: %w", err)
	}
	return string(data), nil
}

// jsonToStrings parses a JSON array column back into a string list
func jsonToStrings(s string) ([]string, error) {
	if s == "" || s == "[]" || s == "null" {
		return nil, nil
	}
	var vals []string
	if err := json.Unmarshal([]byte(s), &vals); err != nil {
		return nil, fmt.Errorf("failed to unmarshal strings: %w", err)
	}
	return vals, nil
}

// placeholders returns n comma-separated SQL placeholders, e.g. "?, ?, ?"
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// int64Args widens an ID list for use as variadic query arguments
func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
