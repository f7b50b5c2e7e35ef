// Package dispatch implements the ordered regex-keyed topic→handler
// registry and the per-handler version→transform registry (§4.5).
package dispatch

import (
	"context"
	"regexp"

	"github.com/fedora-ci/kaijs-go/pkg/artifact"
	"github.com/fedora-ci/kaijs-go/pkg/envelope"
	"github.com/fedora-ci/kaijs-go/pkg/kaierrors"
	"github.com/fedora-ci/kaijs-go/pkg/searchindex"
)

// Handler is the transform protocol a dispatch target implements (§4.6).
// A handler may return kaierrors with KindNoNeedToProcess to decline a
// message without error.
type Handler interface {
	Name() string
	DocDB(ctx context.Context, env envelope.SpoolMessage) (*artifact.Document, error)
	Index(ctx context.Context, env envelope.SpoolMessage) ([]searchindex.Update, error)
}

type entry struct {
	re      *regexp.Regexp
	handler Handler
}

// Registry is the ordered (regex, handler) list. Registration order is
// most-specific-first; the design deliberately depends on it (§4.5,
// Design Notes §9).
type Registry struct {
	entries []entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a (pattern, handler) pair at the end of the list.
// Callers must register most-specific patterns first.
func (r *Registry) Register(pattern string, h Handler) {
	r.entries = append(r.entries, entry{re: regexp.MustCompile(pattern), handler: h})
}

// Lookup returns the first handler whose pattern matches topic.
func (r *Registry) Lookup(topic string) (Handler, error) {
	const op = "dispatch.Lookup"
	for _, e := range r.entries {
		if e.re.MatchString(topic) {
			return e.handler, nil
		}
	}
	return nil, kaierrors.NoAssociatedHandlerError(op, topic)
}
