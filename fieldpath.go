package embeddb

import "strings"

// getPath resolves a (possibly dotted) field path against a record. A
// missing intermediate object, or a path segment applied to a non-object
// value, yields (nil, false), treated as null by sparse/unique handling.
func getPath(r Record, path string) (any, bool) {
	if i := strings.IndexByte(path, '.'); i < 0 {
		v, ok := r[path]
		return v, ok
	}

	var cur any = r
	for _, seg := range strings.Split(path, ".") {
		m, ok := asRecord(cur)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func asRecord(v any) (Record, bool) {
	switch vv := v.(type) {
	case Record:
		return vv, true
	case map[string]any:
		return Record(vv), true
	default:
		return nil, false
	}
}
