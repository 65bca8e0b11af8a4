// Package enums holds the closed string sets persisted by marketcore.
package enums

import (
	"fmt"
	"slices"
)

// set is an ordered list of the legal values of a string enum.
type set[T ~string] struct {
	kind   string
	values []T
}

func newSet[T ~string](kind string, values ...T) set[T] {
	return set[T]{kind: kind, values: values}
}

func (s set[T]) contains(v T) bool {
	return slices.Contains(s.values, v)
}

func (s set[T]) parse(raw string) (T, error) {
	v := T(raw)
	if !s.contains(v) {
		var zero T
		return zero, fmt.Errorf("invalid %s %q", s.kind, raw)
	}
	return v, nil
}

// Values returns a copy of the legal values in declaration order.
func (s set[T]) Values() []T {
	return slices.Clone(s.values)
}
