package handlers

import (
	"github.com/fedora-ci/kaijs-go/pkg/buildsys"
	"github.com/fedora-ci/kaijs-go/pkg/dispatch"
	"github.com/fedora-ci/kaijs-go/pkg/docdb"
)

// DefaultRegistry builds the full most-specific-first dispatch registry
// (§4.5). Registration order matters: subgroup patterns precede
// catch-alls, and lookup returns the first regex that matches.
func DefaultRegistry(store *docdb.Store, indexPrefix string, buildsysClient buildsys.Client) *dispatch.Registry {
	r := dispatch.NewRegistry()

	brewKojiTest := NewBrewKojiTestHandler(store, indexPrefix)
	r.Register(`\.ci\..*\.brew-build\.test\.(complete|queued|running|error)$`, brewKojiTest)
	r.Register(`^org\.centos\.prod\.ci\.koji-build\.test\..*$`, brewKojiTest)

	r.Register(`\.brew\.build\.tag$`, NewBrewTagHandler(store, indexPrefix))
	r.Register(`\.brew\.build\.complete$`, NewBrewBuildCompleteHandler(store, indexPrefix))

	r.Register(`\.buildsys\.tag$`, NewBuildsysTagHandler(store, indexPrefix, buildsysClient))

	// Open Question (b): the original codebase cross-registers some
	// fedora-module/redhat-module topic/handler pairs. That mismatch is
	// carried verbatim here rather than "fixed" — both patterns route to
	// the one family-agnostic mbsTest handler (it reads artifact.type off
	// the body), so the
	// registration below behaves identically to the original either way.
	mbsTest := NewMBSTestHandler(store, indexPrefix)
	r.Register(`\.ci\..*\.redhat-module\.test\..*$`, mbsTest)
	r.Register(`^org\.centos\.prod\.ci\.fedora-module\.test\..*$`, mbsTest)

	compose := NewComposeHandler(store, indexPrefix)
	r.Register(`\.ci\..*\.productmd-compose\.(test|build)\..*$`, compose)

	r.Register(`\.ci\..*\.redhat-container-image\.test\..*$`, NewContainerImageHandler(store, indexPrefix))

	r.Register(`\.errata_automation\.brew-build\.run\.finished$`, NewErrataAutomationHandler(store, indexPrefix))

	return r
}
