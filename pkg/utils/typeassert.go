// Package utils provides type-assertion helpers for decoded JSON arguments.
package utils

import (
	"errors"
	"fmt"
)

// ErrFieldMissing is returned when none of the requested keys is present.
var ErrFieldMissing = errors.New("field missing")

// ErrFieldType is returned when a present field has the wrong type.
var ErrFieldType = errors.New("field has wrong type")

// GetMapField gets the first present key from m and asserts its type. Later keys
// are aliases consulted only when earlier ones are absent.
func GetMapField[T any](m map[string]any, keys ...string) (T, error) {
	var zero T
	for _, key := range keys {
		value, exists := m[key]
		if !exists {
			continue
		}
		if typedValue, ok := value.(T); ok {
			return typedValue, nil
		}
		return zero, fmt.Errorf("%w: '%s' expected %T, got %T", ErrFieldType, key, zero, value)
	}
	if len(keys) == 0 {
		return zero, ErrFieldMissing
	}
	return zero, fmt.Errorf("%w: '%s'", ErrFieldMissing, keys[0])
}

// StringSlice converts a decoded JSON array ([]any of strings) or []string into
// []string. A nil value yields a nil slice.
func StringSlice(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: element %d expected string, got %T", ErrFieldType, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: expected array of strings, got %T", ErrFieldType, value)
	}
}
