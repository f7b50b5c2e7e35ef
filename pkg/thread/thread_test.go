package thread

import (
	"testing"

	"github.com/fedora-ci/kaijs-go/pkg/kaierrors"
	"github.com/stretchr/testify/require"
)

func TestDeriveThreadID_PipelineID(t *testing.T) {
	body := map[string]interface{}{
		"pipeline": map[string]interface{}{"id": "pipeline-123"},
	}
	id, err := DeriveThreadID(body, "build", "1.0")
	require.NoError(t, err)
	require.Equal(t, "pipeline-123", id)
}

func TestDeriveThreadID_ThreadIDFallback(t *testing.T) {
	body := map[string]interface{}{"thread_id": "abc"}
	id, err := DeriveThreadID(body, "build", "1.0")
	require.NoError(t, err)
	require.Equal(t, "abc", id)
}

func TestDeriveThreadID_DummyIsPure(t *testing.T) {
	body := map[string]interface{}{
		"run":  map[string]interface{}{"url": "https://example.com/run/1"},
		"test": map[string]interface{}{"namespace": "ns", "type": "tier1", "category": "functional"},
	}
	id1, err := DeriveThreadID(body, "test", "1.0")
	require.NoError(t, err)
	id2, err := DeriveThreadID(body, "test", "1.0")
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Contains(t, id1, "dummy-thread-")
}

func TestDeriveThreadID_NoAnchor(t *testing.T) {
	_, err := DeriveThreadID(map[string]interface{}{}, "build", "1.0")
	require.True(t, kaierrors.Is(err, kaierrors.KindNoThreadId))
}

func TestTestCaseName(t *testing.T) {
	body := map[string]interface{}{
		"test": map[string]interface{}{"namespace": "ns", "type": "tier1", "category": "functional"},
	}
	name, err := TestCaseName(body, "1.0")
	require.NoError(t, err)
	require.Equal(t, "ns.tier1.functional", name)
}

func TestTestCaseName_LegacyVersion(t *testing.T) {
	body := map[string]interface{}{
		"namespace": "ns", "type": "tier1", "category": "functional",
	}
	name, err := TestCaseName(body, "0.1.0")
	require.NoError(t, err)
	require.Equal(t, "ns.tier1.functional", name)
}

func TestTestCaseName_Invalid(t *testing.T) {
	_, err := TestCaseName(map[string]interface{}{}, "1.0")
	require.Error(t, err)
}
