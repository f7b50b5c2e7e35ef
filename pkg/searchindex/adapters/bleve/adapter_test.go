package bleve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fedora-ci/kaijs-go/pkg/searchindex"
)

func TestBulk_ParentCreatedOnceThenSkipped(t *testing.T) {
	a := New(t.TempDir(), nil)
	defer a.Close()

	parent := searchindex.Update{
		Index: "fedora-koji-build", DocID: "koji-build-111",
		Doc: map[string]interface{}{"nvr": "gcompris-qt-1.1-1.fc33"},
	}
	require.NoError(t, a.Bulk(context.Background(), []searchindex.Update{parent}))

	// Second observation must not overwrite.
	parent.Doc["nvr"] = "changed"
	require.NoError(t, a.Bulk(context.Background(), []searchindex.Update{parent}))

	idx, err := a.indexFor("fedora-koji-build")
	require.NoError(t, err)
	require.True(t, a.exists(idx, "koji-build-111"))
}

func TestBulk_ChildAlwaysUpserts(t *testing.T) {
	a := New(t.TempDir(), nil)
	defer a.Close()

	child := searchindex.Update{
		Index: "fedora-koji-build", DocID: "msg-1", Routing: "koji-build-111",
		Doc: map[string]interface{}{"stage": "build"}, DocAsUpsert: true,
	}
	require.NoError(t, a.Bulk(context.Background(), []searchindex.Update{child}))
	child.Doc["stage"] = "test"
	require.NoError(t, a.Bulk(context.Background(), []searchindex.Update{child}))
}
