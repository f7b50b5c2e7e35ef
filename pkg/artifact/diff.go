package artifact

import (
	"encoding/json"
	"reflect"
	"strings"
)

// ToMap round-trips a Document through JSON to get the plain
// map[string]interface{} shape mk_update_set operates on.
func ToMap(d *Document) (map[string]interface{}, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// pathsPackArray enumerates dotted paths of v, stopping descent at arrays
// (treated as opaque leaves) and at empty objects, per §4.7.1 step 1.
func pathsPackArray(v interface{}) map[string]interface{} {
	paths := map[string]interface{}{}
	var walk func(prefix string, val interface{})
	walk = func(prefix string, val interface{}) {
		switch t := val.(type) {
		case map[string]interface{}:
			if len(t) == 0 {
				if prefix != "" {
					paths[prefix] = t
				}
				return
			}
			for k, vv := range t {
				p := k
				if prefix != "" {
					p = prefix + "." + k
				}
				walk(p, vv)
			}
		default:
			if prefix != "" {
				paths[prefix] = t
			}
		}
	}
	walk("", v)
	return paths
}

func isArray(v interface{}) bool {
	_, ok := v.([]interface{})
	return ok
}

// MkUpdateSet computes the minimal $set that makes current semantically
// equal to computed, per §4.7.1:
//   - arrays at a shared path always win (never compared element-wise);
//   - scalars are emitted only when they differ from the current value;
//   - null/absent new values never overwrite anything.
func MkUpdateSet(current, computed map[string]interface{}) map[string]interface{} {
	newPaths := pathsPackArray(computed)
	curPaths := pathsPackArray(current)

	for p, v := range newPaths {
		if v == nil {
			delete(newPaths, p)
		}
	}
	for p, v := range curPaths {
		if v == nil {
			delete(curPaths, p)
		}
	}

	updateSet := map[string]interface{}{}
	for p, v := range newPaths {
		if isArray(v) {
			updateSet[p] = v
			continue
		}
		cv, ok := curPaths[p]
		if ok && reflect.DeepEqual(v, cv) {
			continue
		}
		updateSet[p] = v
	}
	return updateSet
}

// BracketPath converts a dotted path ("states.0.kai_state") to the
// bracketed form ("states[0].kai_state") some in-process lookups expect.
func BracketPath(dotted string) string {
	segs := strings.Split(dotted, ".")
	var b strings.Builder
	for i, s := range segs {
		if isDigits(s) {
			b.WriteString("[" + s + "]")
			continue
		}
		if i > 0 {
			b.WriteString(".")
		}
		b.WriteString(s)
	}
	return b.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
