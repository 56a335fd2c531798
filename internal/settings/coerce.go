package settings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidValue is returned when a value cannot be coerced to the declared kind.
var ErrInvalidValue = errors.New("invalid value")

// Coerce converts raw into the declared kind.
//
// Numbers given as strings are parsed as base-10 integers; unparsable strings are
// rejected rather than stored verbatim. Comma-separated strings become string arrays
// with trimmed, non-empty segments. Other kinds pass through. Null is always accepted
// and means "no override".
func Coerce(kind Kind, raw Value) (Value, error) {
	if raw.IsNull() {
		return raw, nil
	}

	switch kind {
	case KindNumber:
		if s, ok := raw.AsString(); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return Null(), fmt.Errorf("%w: %q is not a base-10 integer", ErrInvalidValue, s)
			}
			return Int(n), nil
		}
	case KindStringArray:
		if s, ok := raw.AsString(); ok {
			return StringArray(splitCSV(s)...), nil
		}
		if items, ok := raw.AsList(); ok {
			strs := make([]string, 0, len(items))
			for _, item := range items {
				s, ok := item.AsString()
				if !ok {
					return Null(), fmt.Errorf("%w: expected array of strings", ErrInvalidValue)
				}
				strs = append(strs, s)
			}
			return StringArray(strs...), nil
		}
	}

	if raw.Kind() != kind {
		return Null(), fmt.Errorf("%w: expected %s, got %s", ErrInvalidValue, kind, raw.Kind())
	}
	return raw, nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
