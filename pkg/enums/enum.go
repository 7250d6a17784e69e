package enums

import (
	"fmt"
	"slices"
	"strings"
)

func member[T ~string](set []T, v T) bool {
	return slices.Contains(set, v)
}

// lookup matches raw against set. Input is trimmed; fold also lowercases it
// for values that come from people rather than other services.
func lookup[T ~string](set []T, kind, raw string, fold bool) (T, error) {
	v := strings.TrimSpace(raw)
	if fold {
		v = strings.ToLower(v)
	}
	if i := slices.Index(set, T(v)); i >= 0 {
		return set[i], nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
