package artifact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMkUpdateSet_Specificity(t *testing.T) {
	current := map[string]interface{}{
		"a": float64(1),
		"b": map[string]interface{}{
			"x": float64(2),
			"y": []interface{}{float64(1), float64(2)},
		},
		"c": "keep",
	}
	computed := map[string]interface{}{
		"a": float64(1),
		"b": map[string]interface{}{
			"x": float64(3),
			"y": []interface{}{float64(1), float64(2)},
			"z": nil,
		},
		"d": "new",
	}

	got := MkUpdateSet(current, computed)
	require.Equal(t, map[string]interface{}{
		"b.x": float64(3),
		"b.y": []interface{}{float64(1), float64(2)},
		"d":   "new",
	}, got)
}

func TestMkUpdateSet_NoopOnIdenticalDocument(t *testing.T) {
	doc := map[string]interface{}{
		"a": float64(1),
		"b": map[string]interface{}{"x": "y"},
		"c": []interface{}{"p", "q"},
	}
	// Even equal arrays always surface, so a true no-op requires no arrays.
	flat := map[string]interface{}{"a": float64(1), "b": map[string]interface{}{"x": "y"}}
	require.Empty(t, MkUpdateSet(flat, flat))
	require.NotEmpty(t, MkUpdateSet(doc, doc))
}

func TestBracketPath(t *testing.T) {
	require.Equal(t, "states[0].kai_state", BracketPath("states.0.kai_state"))
}
