package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsFromEnv(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "amqp10", cfg.Broker.Kind)
	require.Equal(t, "bleve", cfg.SearchBackend)
	require.Equal(t, "kaijs-", cfg.IndexPrefix)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("KAIJS_BROKER_KIND", "amqp091")
	t.Setenv("KAIJS_BROKER_TOPICS", "a.b.c,d.e.f")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "amqp091", cfg.Broker.Kind)
	require.Equal(t, []string{"a.b.c", "d.e.f"}, cfg.Broker.Topics)
}

func TestLoad_HCLOverlay(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "overlay-*.hcl")
	require.NoError(t, err)
	_, err = f.WriteString(`
spool_dir    = "/tmp/spool"
postgres_dsn = "postgres://x"
schema_repo_url = "https://example.com/schemas.git"
schema_local_path = "/tmp/schemas"

broker {
  kind          = "amqp091"
  url           = "amqps://broker"
  topics        = ["topic.one"]
  provider_name = "test"
}
`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := Load(f.Name())
	require.NoError(t, err)
	require.Equal(t, "/tmp/spool", cfg.SpoolDir)
	require.Equal(t, "amqp091", cfg.Broker.Kind)
	require.Equal(t, []string{"topic.one"}, cfg.Broker.Topics)
}

func TestSplitCSV(t *testing.T) {
	require.Nil(t, splitCSV(""))
	require.Equal(t, []string{"a", "b"}, splitCSV("a,b"))
	require.Equal(t, []string{"a", "b"}, splitCSV("a,b,"))
}
