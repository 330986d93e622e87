package bucket

import "strings"

// Lookup resolves a dotted field path ("event.created") through nested maps.
// It returns nil when any segment is missing or not an object.
func Lookup(source map[string]any, path string) any {
	if source == nil || path == "" {
		return nil
	}
	if v, ok := source[path]; ok {
		return v
	}

	var cur any = source
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}
