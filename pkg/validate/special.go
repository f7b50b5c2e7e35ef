package validate

import (
	"regexp"

	"github.com/fedora-ci/kaijs-go/pkg/kaierrors"
)

// Special-purpose schemas applied by handlers, not the top-level validator
// (§4.4 point 4).

var (
	gateTagRPMRe    = regexp.MustCompile(`^(supp-)?rhel-[89]\.\d+.*-gate$`)
	gateTagModuleRe = regexp.MustCompile(`.*-modules-gate$`)
	issuerBlockRe   = regexp.MustCompile(`(?i)(freshmaker|cpaas)`)
)

// GateTagBrewBuild validates an RPM-build gate tag name, per the brew-tag
// handler's RPM branch (§4.6).
func GateTagBrewBuild(tag string) error {
	const op = "validate.GateTagBrewBuild"
	if !gateTagRPMRe.MatchString(tag) {
		return kaierrors.ValidationError(op, nil, "tag %q is not a recognized RPM gate tag", tag)
	}
	return nil
}

// GateTagRedhatModule validates a module-build gate tag name, per the
// brew-tag handler's module branch (§4.6).
func GateTagRedhatModule(tag string) error {
	const op = "validate.GateTagRedhatModule"
	if !gateTagModuleRe.MatchString(tag) {
		return kaierrors.ValidationError(op, nil, "tag %q is not a recognized module gate tag", tag)
	}
	return nil
}

// ValidArtifactIssuer rejects issuers that look like known non-human
// automation accounts we do not want attributing state (§4.4).
func ValidArtifactIssuer(issuer string) error {
	const op = "validate.ValidArtifactIssuer"
	if issuerBlockRe.MatchString(issuer) {
		return kaierrors.ValidationError(op, nil, "issuer %q is blocked by valid_artifact_issuer", issuer)
	}
	return nil
}

// KojiBuildInfo checks the shape of a getBuild() XML-RPC reply before it
// is written into an artifact document, per the buildsys-tag handler
// (§4.6).
func KojiBuildInfo(info map[string]interface{}) error {
	const op = "validate.KojiBuildInfo"
	for _, f := range []string{"task_id", "nvr"} {
		if _, ok := info[f]; !ok {
			return kaierrors.ValidationError(op, nil, "koji_build_info missing required field %q", f)
		}
	}
	return nil
}
