package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fedora-ci/kaijs-go/pkg/artifact"
	"github.com/fedora-ci/kaijs-go/pkg/envelope"
	"github.com/fedora-ci/kaijs-go/pkg/kaierrors"
	"github.com/fedora-ci/kaijs-go/pkg/searchindex"
)

type stubHandler struct{ name string }

func (s stubHandler) Name() string { return s.name }
func (s stubHandler) DocDB(ctx context.Context, env envelope.SpoolMessage) (*artifact.Document, error) {
	return nil, nil
}
func (s stubHandler) Index(ctx context.Context, env envelope.SpoolMessage) ([]searchindex.Update, error) {
	return nil, nil
}

func TestRegistry_MostSpecificFirstWins(t *testing.T) {
	r := NewRegistry()
	r.Register(`^org\.centos\.prod\.ci\.brew-build\.test\.complete$`, stubHandler{"specific"})
	r.Register(`\.ci\..*\.test\..*`, stubHandler{"generic"})

	h, err := r.Lookup("org.centos.prod.ci.brew-build.test.complete")
	require.NoError(t, err)
	require.Equal(t, "specific", h.Name())

	h, err = r.Lookup("org.centos.prod.ci.redhat-module.test.complete")
	require.NoError(t, err)
	require.Equal(t, "generic", h.Name())
}

func TestRegistry_NoMatch(t *testing.T) {
	r := NewRegistry()
	r.Register(`^only\.this\.topic$`, stubHandler{"x"})

	_, err := r.Lookup("something.else")
	require.Error(t, err)
	require.Equal(t, kaierrors.KindNoAssociatedHandler, kaierrors.KindOf(err))
}

func TestTransformRegistry_FirstMatchWins(t *testing.T) {
	tr := NewTransformRegistry()
	v2 := func(body map[string]interface{}) (map[string]interface{}, error) { return map[string]interface{}{"v": 2}, nil }
	v1 := func(body map[string]interface{}) (map[string]interface{}, error) { return map[string]interface{}{"v": 1}, nil }
	tr.Register(`^2\.`, v2)
	tr.Register(`^.*$`, v1)

	fn, ok := tr.Lookup("2.0.0")
	require.True(t, ok)
	out, err := fn(nil)
	require.NoError(t, err)
	require.Equal(t, 2, out["v"])

	fn, ok = tr.Lookup("1.0.0")
	require.True(t, ok)
	out, err = fn(nil)
	require.NoError(t, err)
	require.Equal(t, 1, out["v"])
}

func TestTransformRegistry_NoMatch(t *testing.T) {
	tr := NewTransformRegistry()
	_, ok := tr.Lookup("9.9.9")
	require.False(t, ok)
}
