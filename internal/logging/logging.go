// Package logging constructs the leveled, namespaced hclog.Logger every
// kaijs binary shares (§6.5): namespaces of the form "kaijs:<component>".
package logging

import (
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// New builds the root logger for a binary (e.g. "kaijs:listener",
// "kaijs:loader"), honoring the KAIJS_LOG_LEVEL and KAIJS_LOG_JSON
// environment variables (see internal/config for the full env-var table).
func New(component string) hclog.Logger {
	level := hclog.LevelFromString(os.Getenv("KAIJS_LOG_LEVEL"))
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "kaijs:" + component,
		Level:      level,
		JSONFormat: strings.EqualFold(os.Getenv("KAIJS_LOG_JSON"), "true"),
		Output:     os.Stderr,
	})
}
