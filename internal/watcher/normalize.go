package watcher

import (
	"net/url"
	"reflect"
	"strings"
)

// NormalizeSnapshot returns a copy of s with volatile noise removed so two
// snapshots can be compared for a meaningful change: every URL-valued string
// loses its query and fragment (signed tokens and rotating parameters rotate
// on every fetch and must not look like a change). RemoteError fields are
// compared literally and pass through untouched.
//
// Normalization is idempotent: normalize(normalize(x)) == normalize(x).
func NormalizeSnapshot(s Snapshot) Snapshot {
	if s.Fields == nil {
		return s
	}
	out := s
	out.Fields = normalizeValue(s.Fields).(map[string]any)
	return out
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[k] = normalizeValue(val)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, val := range x {
			s[i] = normalizeValue(val)
		}
		return s
	case string:
		if strings.HasPrefix(x, "http://") || strings.HasPrefix(x, "https://") {
			return stripURLQuery(x)
		}
		return x
	default:
		return v
	}
}

func stripURLQuery(s string) string {
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	return u.String()
}

// SnapshotsEqual reports deep equality of the normalized forms.
func SnapshotsEqual(a, b Snapshot) bool {
	na, nb := NormalizeSnapshot(a), NormalizeSnapshot(b)
	if na.Shape != nb.Shape {
		// The zero Snapshot and an explicit empty one mean the same thing.
		if na.IsEmpty() && nb.IsEmpty() {
			return true
		}
		return false
	}
	if na.Shape == ShapeError {
		if na.Err == nil || nb.Err == nil {
			return na.Err == nb.Err
		}
		return *na.Err == *nb.Err
	}
	// A nil map and an empty map are the same value; reloaded snapshots may
	// carry either.
	if len(na.Fields) == 0 && len(nb.Fields) == 0 {
		return true
	}
	return reflect.DeepEqual(na.Fields, nb.Fields)
}
