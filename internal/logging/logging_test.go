package logging

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultLevel(t *testing.T) {
	log := New("listener")
	require.Equal(t, "kaijs:listener", log.Name())
	require.Equal(t, hclog.Info, log.GetLevel())
}

func TestNew_LevelFromEnv(t *testing.T) {
	t.Setenv("KAIJS_LOG_LEVEL", "debug")
	log := New("loader")
	require.Equal(t, hclog.Debug, log.GetLevel())
}
