package internal

import (
	"cmp"
	"slices"
)

// SortedKeys returns the keys of m in ascending order. The result is never nil.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
