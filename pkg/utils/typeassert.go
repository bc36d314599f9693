package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SafeAssert performs a type assertion without panicking.
func SafeAssert[T any](value any) (T, bool) {
	v, ok := value.(T)
	return v, ok
}

// GetMapField returns m[key] asserted to T.
func GetMapField[T any](m map[string]any, key string) (T, error) {
	var zero T
	value, exists := m[key]
	if !exists {
		return zero, fmt.Errorf("field '%s' not found", key)
	}
	if v, ok := value.(T); ok {
		return v, nil
	}
	return zero, fmt.Errorf("field '%s' expected type %T, got %T", key, zero, value)
}

// GetMapFieldOr returns m[key] asserted to T, or def.
func GetMapFieldOr[T any](m map[string]any, key string, def T) T {
	if v, err := GetMapField[T](m, key); err == nil {
		return v
	}
	return def
}

// StringArg reads a string argument. Numbers and bools are formatted.
func StringArg(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// IntArg reads an integer argument. JSON numbers and numeric strings are accepted.
func IntArg(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// BoolArg reads a boolean argument. "true"/"1"/"yes" strings are accepted.
func BoolArg(m map[string]any, key string, def bool) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	case float64:
		return v != 0
	}
	return def
}

// StringsArg reads a list of strings. A single string becomes a one-element list.
func StringsArg(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
