package dispatch

import "regexp"

// Transform extracts the canonical payload from an envelope body for one
// version of a handler's wire format.
type Transform func(body map[string]interface{}) (map[string]interface{}, error)

type transformEntry struct {
	re *regexp.Regexp
	fn Transform
}

// TransformRegistry is the per-handler version→transform registry (§4.5):
// first regex matching the message's version wins. A catch-all `^.*$` →
// V1 transform is the conventional default entry.
type TransformRegistry struct {
	entries []transformEntry
}

// NewTransformRegistry returns an empty registry.
func NewTransformRegistry() *TransformRegistry {
	return &TransformRegistry{}
}

// Register appends a (version pattern, transform) pair.
func (t *TransformRegistry) Register(versionPattern string, fn Transform) {
	t.entries = append(t.entries, transformEntry{re: regexp.MustCompile(versionPattern), fn: fn})
}

// Lookup returns the transform for the first pattern matching version.
// Callers should always register a `^.*$` catch-all last.
func (t *TransformRegistry) Lookup(version string) (Transform, bool) {
	for _, e := range t.entries {
		if e.re.MatchString(version) {
			return e.fn, true
		}
	}
	return nil, false
}
