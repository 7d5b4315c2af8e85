package enums

import (
	"fmt"
	"slices"
)

// member reports whether v is one of the allowed values.
func member[T ~string](v T, allowed []T) bool {
	return slices.Contains(allowed, v)
}

// parse maps raw onto one of allowed, naming kind in the error.
func parse[T ~string](kind, raw string, allowed []T) (T, error) {
	if v := T(raw); member(v, allowed) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
