// Package validate implements the dual-path validator (§4.4): a strict
// draft-07 JSON-Schema path for CI-topic messages with version >= 1.0, and
// a relaxed declarative-shape path for version < 1.0 and for non-CI
// topics.
package validate

import (
	"fmt"
	"strings"

	"github.com/fedora-ci/kaijs-go/pkg/envelope"
	"github.com/fedora-ci/kaijs-go/pkg/kaierrors"
	"github.com/fedora-ci/kaijs-go/pkg/schemacatalog"
)

// Validator dispatches a SpoolMessage to the strict or relaxed path based
// on its topic and declared version.
type Validator struct {
	catalog *schemacatalog.Catalog
	nonCI   *NonCIRegistry
}

// New constructs a Validator backed by catalog for the strict path and the
// default non-CI topic registry for everything outside ".ci." topics.
func New(catalog *schemacatalog.Catalog) *Validator {
	return &Validator{catalog: catalog, nonCI: DefaultNonCIRegistry()}
}

// Validate runs the full procedure of §4.4: envelope-shape check, then
// version-gated dispatch to the strict, relaxed, or non-CI path.
func (v *Validator) Validate(env envelope.SpoolMessage) error {
	const op = "validate.Validate"

	if err := env.ValidateShape(); err != nil {
		return err
	}

	if !env.IsCITopic() {
		return v.nonCI.Validate(env)
	}

	version := env.Version()
	if version == "" {
		return kaierrors.WrongVersionError(op, "topic %q is a CI topic but body.version is missing or empty", env.BrokerTopic)
	}

	if strings.HasPrefix(version, "0.") {
		return v.validateRelaxed(env, version)
	}
	return v.validateStrict(env, version)
}

// strictSchemaPath maps a broker topic's last three dot-segments to the
// schema file path under schemas/, per §4.4 point 2.
func strictSchemaPath(topic string) (string, error) {
	segs := strings.Split(topic, ".")
	if len(segs) < 3 {
		return "", fmt.Errorf("topic %q has fewer than 3 dot-segments", topic)
	}
	last3 := segs[len(segs)-3:]
	return "schemas/" + strings.Join(last3, ".") + ".json", nil
}

func (v *Validator) validateStrict(env envelope.SpoolMessage, version string) error {
	const op = "validate.validateStrict"

	path, err := strictSchemaPath(env.BrokerTopic)
	if err != nil {
		return kaierrors.NoValidationSchemaError(op, "%s", err)
	}

	schema, err := v.catalog.Compile(version, path)
	if err != nil {
		return kaierrors.NoValidationSchemaError(op, "no schema for tag %q path %q: %v", version, path, err)
	}

	if err := schema.Validate(env.Body); err != nil {
		return kaierrors.ValidationError(op, err, "strict schema validation failed for %s@%s", path, version)
	}
	return nil
}

// relaxedRequired maps the discriminant artifact.type to its required
// top-level field set under the relaxed (version < 1.0) schema set.
var relaxedRequired = map[string][]string{
	"brew-build":    {"build", "artifact"},
	"copr-build":    {"build", "artifact"},
	"module-build":  {"module", "artifact"},
	"compose":       {"compose", "artifact"},
	"container-image": {"image", "artifact"},
}

func (v *Validator) validateRelaxed(env envelope.SpoolMessage, version string) error {
	const op = "validate.validateRelaxed"

	artifactObj, ok := env.Body["artifact"].(map[string]interface{})
	if !ok {
		return kaierrors.ValidationError(op, nil, "relaxed schema: missing artifact object (version=%s)", version)
	}
	typ, _ := artifactObj["type"].(string)
	if typ == "" {
		return kaierrors.ValidationError(op, nil, "relaxed schema: missing artifact.type")
	}

	required, ok := relaxedRequired[typ]
	if !ok {
		// Unknown discriminant: fall back to the generic required set.
		required = []string{"artifact"}
	}
	for _, f := range required {
		if _, present := env.Body[f]; !present {
			return kaierrors.ValidationError(op, nil, "relaxed schema: missing required field %q for artifact.type %q", f, typ)
		}
	}
	return nil
}
