// Package config loads kaijs configuration. Per spec.md §6.4, every
// configuration field maps to a specific environment variable; this
// package treats the environment as the source of truth and, mirroring
// the teacher's pkg/indexer/config/ruleset.go, allows an optional HCL
// file to overlay/override it (e.g. for local development or CI, where
// setting two dozen env vars is impractical).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Broker configures one listener's broker connection (§6.1).
type Broker struct {
	// Kind selects the transport: "amqp10" (UMB) or "amqp091" (RabbitMQ).
	Kind string `hcl:"kind"`

	URL          string   `hcl:"url"`
	ClientCert   string   `hcl:"client_cert,optional"`
	ClientKey    string   `hcl:"client_key,optional"`
	CACert       string   `hcl:"ca_cert,optional"`
	ClientName   string   `hcl:"client_name,optional"`
	SubscriberID string   `hcl:"subscriber_id,optional"`
	Topics       []string `hcl:"topics"`
	Selector     string   `hcl:"selector,optional"`
	PrefetchSize int      `hcl:"prefetch_size,optional"`
	ProviderName string   `hcl:"provider_name"`
}

// Config is the full env/HCL configuration surface for both the listener
// and loader binaries. Fields irrelevant to a given binary are simply
// left unused rather than split into two structs, matching the teacher's
// single shared Config pattern (pkg/indexer/config.go).
type Config struct {
	SpoolDir string `hcl:"spool_dir"`

	Broker Broker `hcl:"broker,block"`

	PostgresDSN    string `hcl:"postgres_dsn"`
	MigrationsPath string `hcl:"migrations_path,optional"`

	SchemaRepoURL       string `hcl:"schema_repo_url"`
	SchemaLocalPath     string `hcl:"schema_local_path"`
	SchemaS3Bucket      string `hcl:"schema_s3_bucket,optional"`
	SchemaS3Key         string `hcl:"schema_s3_key,optional"`

	SearchBackend     string `hcl:"search_backend,optional"` // "meilisearch" | "bleve"
	MeiliHost         string `hcl:"meili_host,optional"`
	MeiliAPIKey       string `hcl:"meili_api_key,optional"`
	BleveBasePath     string `hcl:"bleve_base_path,optional"`
	IndexPrefix       string `hcl:"index_prefix,optional"`

	BuildsysEndpoint string `hcl:"buildsys_endpoint,optional"`

	LivenessInterval time.Duration
}

// Load builds a Config from the environment, then overlays an HCL file at
// path if path is non-empty (the HCL overlay always wins over env vars
// present, matching the "overlay" framing in SPEC_FULL.md §1).
func Load(path string) (*Config, error) {
	cfg := fromEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := hclsimple.DecodeFile(path, nil, cfg); err != nil {
				return nil, fmt.Errorf("decode HCL overlay %s: %w", path, err)
			}
		}
	}
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		SpoolDir: getEnv("KAIJS_SPOOL_DIR", "/var/lib/kaijs/spool"),

		Broker: Broker{
			Kind:         getEnv("KAIJS_BROKER_KIND", "amqp10"),
			URL:          getEnv("KAIJS_BROKER_URL", ""),
			ClientCert:   getEnv("KAIJS_BROKER_CLIENT_CERT", ""),
			ClientKey:    getEnv("KAIJS_BROKER_CLIENT_KEY", ""),
			CACert:       getEnv("KAIJS_BROKER_CA_CERT", ""),
			ClientName:   getEnv("KAIJS_BROKER_CLIENT_NAME", "kaijs"),
			SubscriberID: getEnv("KAIJS_BROKER_SUBSCRIBER_ID", "kaijs-listener"),
			Topics:       splitCSV(getEnv("KAIJS_BROKER_TOPICS", "")),
			Selector:     getEnv("KAIJS_BROKER_SELECTOR", ""),
			PrefetchSize: getEnvInt("KAIJS_BROKER_PREFETCH_SIZE", 100),
			ProviderName: getEnv("KAIJS_PROVIDER_NAME", "kaijs-listener"),
		},

		PostgresDSN:    getEnv("KAIJS_POSTGRES_DSN", ""),
		MigrationsPath: getEnv("KAIJS_MIGRATIONS_PATH", "pkg/docdb/migrations"),

		SchemaRepoURL:   getEnv("KAIJS_SCHEMA_REPO_URL", ""),
		SchemaLocalPath: getEnv("KAIJS_SCHEMA_LOCAL_PATH", "/var/lib/kaijs/schemas.git"),
		SchemaS3Bucket:  getEnv("KAIJS_SCHEMA_S3_BUCKET", ""),
		SchemaS3Key:     getEnv("KAIJS_SCHEMA_S3_KEY", "schema-catalog-snapshot.tar.gz"),

		SearchBackend: getEnv("KAIJS_SEARCH_BACKEND", "bleve"),
		MeiliHost:     getEnv("KAIJS_MEILI_HOST", "http://127.0.0.1:7700"),
		MeiliAPIKey:   getEnv("KAIJS_MEILI_API_KEY", ""),
		BleveBasePath: getEnv("KAIJS_BLEVE_BASE_PATH", "/var/lib/kaijs/bleve"),
		IndexPrefix:   getEnv("KAIJS_INDEX_PREFIX", "kaijs-"),

		BuildsysEndpoint: getEnv("KAIJS_BUILDSYS_ENDPOINT", "https://koji.fedoraproject.org/kojihub"),

		LivenessInterval: getEnvDuration("KAIJS_LIVENESS_INTERVAL", time.Minute),
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
