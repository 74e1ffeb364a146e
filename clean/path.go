// Package clean implements the per-field cleaning pipeline that runs
// after extraction: regex-replace, trim and date-reformat, applied over
// dotted field paths with array broadcast.
package clean

import "strings"

// Get walks a dotted path into doc and returns the value found there (or
// nil, false if any segment is missing). A path segment addressing an
// array broadcasts: when an intermediate value is a slice, Get returns
// the slice of sub-values obtained by resolving the remaining path
// against every element.
func Get(doc map[string]interface{}, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	return getSegments(doc, segments)
}

func getSegments(node interface{}, segments []string) (interface{}, bool) {
	if len(segments) == 0 {
		return node, true
	}

	switch v := node.(type) {
	case map[string]interface{}:
		child, ok := v[segments[0]]
		if !ok {
			return nil, false
		}
		return getSegments(child, segments[1:])
	case []interface{}:
		results := make([]interface{}, 0, len(v))
		for _, elem := range v {
			value, ok := getSegments(elem, segments)
			if ok {
				results = append(results, value)
			}
		}
		return results, true
	default:
		return nil, false
	}
}

// Set writes value at a dotted path into doc, creating intermediate maps
// as needed. When an intermediate value is a slice, Set broadcasts:
// value must itself be a slice of equal length, and element i of value
// is written to element i's sub-path. When both the existing value and
// the incoming value are maps, Set deep-merges instead of overwriting.
func Set(doc map[string]interface{}, path string, value interface{}) {
	segments := strings.Split(path, ".")
	setSegments(doc, segments, value)
}

func setSegments(node map[string]interface{}, segments []string, value interface{}) {
	if len(segments) == 1 {
		key := segments[0]
		if existing, ok := node[key].(map[string]interface{}); ok {
			if incoming, ok := value.(map[string]interface{}); ok {
				node[key] = deepMerge(existing, incoming)
				return
			}
		}
		node[key] = value
		return
	}

	key := segments[0]
	switch existing := node[key].(type) {
	case []interface{}:
		values, ok := value.([]interface{})
		if !ok || len(values) != len(existing) {
			return
		}
		for i, elem := range existing {
			if m, ok := elem.(map[string]interface{}); ok {
				setSegments(m, segments[1:], values[i])
			}
		}
	case map[string]interface{}:
		setSegments(existing, segments[1:], value)
	default:
		child := make(map[string]interface{})
		node[key] = child
		setSegments(child, segments[1:], value)
	}
}

func deepMerge(dst, src map[string]interface{}) map[string]interface{} {
	for k, v := range src {
		if existing, ok := dst[k].(map[string]interface{}); ok {
			if incoming, ok := v.(map[string]interface{}); ok {
				dst[k] = deepMerge(existing, incoming)
				continue
			}
		}
		dst[k] = v
	}
	return dst
}
