package watcher

import (
	"reflect"
	"sort"
)

// ValueChange is one changed key in a map diff.
type ValueChange struct {
	Old any
	New any
}

// MapDiff classifies per-key differences between two (normalized) maps.
type MapDiff struct {
	Added   map[string]any
	Removed map[string]any
	Changed map[string]ValueChange
}

func (d MapDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffMaps compares two maps key by key. Callers normalize first; DiffMaps
// itself is a plain structural comparison.
func DiffMaps(oldM, newM map[string]any) MapDiff {
	d := MapDiff{
		Added:   map[string]any{},
		Removed: map[string]any{},
		Changed: map[string]ValueChange{},
	}
	for k, nv := range newM {
		ov, ok := oldM[k]
		switch {
		case !ok:
			d.Added[k] = nv
		case !reflect.DeepEqual(ov, nv):
			d.Changed[k] = ValueChange{Old: ov, New: nv}
		}
	}
	for k, ov := range oldM {
		if _, ok := newM[k]; !ok {
			d.Removed[k] = ov
		}
	}
	return d
}

// sortedKeys returns m's keys in lexicographic order, for deterministic output.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
