package spool

import (
	"testing"

	"github.com/fedora-ci/kaijs-go/pkg/envelope"
	"github.com/stretchr/testify/require"
)

func mustOpen(t *testing.T) *Spool {
	t.Helper()
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEnv(id string) envelope.SpoolMessage {
	return envelope.New(id, "org.fedoraproject.prod.buildsys.tag", "test-listener", 1000, nil,
		map[string]interface{}{"build_id": float64(1)}, nil)
}

func TestPushTpopCommit(t *testing.T) {
	s := mustOpen(t)
	require.NoError(t, s.Push(testEnv("m1")))

	n, err := s.Length()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	claimed, err := s.Tpop()
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, "m1", claimed.Env.BrokerMsgID)

	n, err = s.Length()
	require.NoError(t, err)
	require.Equal(t, 0, n)

	require.NoError(t, claimed.Commit())
}

func TestRollbackReturnsEnvelopeToActive(t *testing.T) {
	s := mustOpen(t)
	require.NoError(t, s.Push(testEnv("m2")))

	claimed, err := s.Tpop()
	require.NoError(t, err)
	require.NoError(t, claimed.Rollback())

	n, err := s.Length()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestTpopEmptySpoolReturnsNil(t *testing.T) {
	s := mustOpen(t)
	claimed, err := s.Tpop()
	require.NoError(t, err)
	require.Nil(t, claimed)
}

func TestFIFOOrder(t *testing.T) {
	s := mustOpen(t)
	e1 := envelope.New("a", "t", "p", 100, nil, map[string]interface{}{}, nil)
	e2 := envelope.New("b", "t", "p", 200, nil, map[string]interface{}{}, nil)
	require.NoError(t, s.Push(e1))
	require.NoError(t, s.Push(e2))

	first, err := s.Tpop()
	require.NoError(t, err)
	require.Equal(t, "a", first.Env.BrokerMsgID)
	require.NoError(t, first.Commit())

	second, err := s.Tpop()
	require.NoError(t, err)
	require.Equal(t, "b", second.Env.BrokerMsgID)
	require.NoError(t, second.Commit())
}

func TestRecoverClaimedOnOpen(t *testing.T) {
	dir := t.TempDir()
	s := mustOpen2(t, dir)
	require.NoError(t, s.Push(testEnv("crash")))
	claimed, err := s.Tpop()
	require.NoError(t, err)
	require.NotNil(t, claimed)
	// simulate a crash: never commit, never rollback, just reopen.
	require.NoError(t, s.Close())

	s2, err := Open(dir, nil)
	require.NoError(t, err)
	defer s2.Close()
	n, err := s2.Length()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func mustOpen2(t *testing.T, dir string) *Spool {
	t.Helper()
	s, err := Open(dir, nil)
	require.NoError(t, err)
	return s
}
