package broker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinkStatus_Healthy(t *testing.T) {
	require.True(t, LinkStatus{OpenLocal: 1, OpenRemote: 1}.Healthy())
	require.False(t, LinkStatus{OpenLocal: 1, OpenRemote: 0}.Healthy())
	require.False(t, LinkStatus{OpenLocal: 1, OpenRemote: 1, Closed: true}.Healthy())
	require.False(t, LinkStatus{OpenLocal: 1, OpenRemote: 1, SessionClosed: true}.Healthy())
}
