package amqp091

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExternalAuth(t *testing.T) {
	var a externalAuth
	require.Equal(t, "EXTERNAL", a.Mechanism())
	require.Equal(t, "\x00", a.Response())
}
