package validate

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/fedora-ci/kaijs-go/pkg/envelope"
	"github.com/fedora-ci/kaijs-go/pkg/kaierrors"
)

// NonCIRule is a declarative shape check for a non-CI topic family,
// expressed with ozzo-validation rules keyed by body field name.
type NonCIRule struct {
	pattern *regexp.Regexp
	fields  map[string][]validation.Rule
}

// NonCIRegistry is the Joi-like declarative-shape registry §4.4 point 3
// describes for topics outside the ".ci." family.
type NonCIRegistry struct {
	rules []NonCIRule
}

// Register adds a rule set for topics matching pattern. Registration order
// is most-specific-first, matching the dispatch registry's convention.
func (r *NonCIRegistry) Register(pattern string, fields map[string][]validation.Rule) {
	r.rules = append(r.rules, NonCIRule{pattern: regexp.MustCompile(pattern), fields: fields})
}

// Validate runs the first matching rule set's field checks against the
// envelope body. Unmatched topics raise NoValidationSchemaError.
func (r *NonCIRegistry) Validate(env envelope.SpoolMessage) error {
	const op = "validate.NonCIRegistry.Validate"
	for _, rule := range r.rules {
		if !rule.pattern.MatchString(env.BrokerTopic) {
			continue
		}
		for field, rules := range rule.fields {
			if err := validation.Validate(env.Body[field], rules...); err != nil {
				return kaierrors.ValidationError(op, err, "field %q failed validation for topic %q", field, env.BrokerTopic)
			}
		}
		return nil
	}
	return kaierrors.NoValidationSchemaError(op, "no non-CI schema registered for topic %q", env.BrokerTopic)
}

// DefaultNonCIRegistry builds the registry covering the non-CI topic
// families the pipeline must recognize: brew build.tag and build.complete,
// koji buildsys.tag, and errata-tool automation-finished notifications.
func DefaultNonCIRegistry() *NonCIRegistry {
	r := &NonCIRegistry{}

	r.Register(`\.brew\.build\.tag$`, map[string][]validation.Rule{
		"build": {validation.Required},
		"tag":   {validation.Required},
	})

	r.Register(`\.brew\.build\.complete$`, map[string][]validation.Rule{
		"info": {validation.Required},
	})

	r.Register(`\.buildsys\.tag$`, map[string][]validation.Rule{
		"build_id": {validation.Required},
		"tag":      {validation.Required},
		"name":     {validation.Required},
	})

	r.Register(`\.errata_automation\.brew-build\.run\.finished$`, map[string][]validation.Rule{
		// task_id may legitimately be null (§4.6); no field is checked
		// here, so a null or absent task_id passes and the handler
		// declines the message.
	})

	return r
}
