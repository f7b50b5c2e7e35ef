package handlers

import (
	"context"
	"fmt"

	"github.com/fedora-ci/kaijs-go/pkg/artifact"
	"github.com/fedora-ci/kaijs-go/pkg/dispatch"
	"github.com/fedora-ci/kaijs-go/pkg/docdb"
	"github.com/fedora-ci/kaijs-go/pkg/envelope"
	"github.com/fedora-ci/kaijs-go/pkg/kaierrors"
	"github.com/fedora-ci/kaijs-go/pkg/searchindex"
)

// IdentityFunc derives the (artifact_type, artifact_id) pair a message
// belongs to (§3.2).
type IdentityFunc func(body map[string]interface{}) (artifact.Identity, error)

// IndexContextFunc resolves the search-index context segment
// (redhat/centos/fedora/any) a message belongs to (§4.8).
type IndexContextFunc func(body map[string]interface{}) string

// Spec wires one artifact family's identity/transform/index rules into
// the shared Base plumbing. The CI test handlers are a Spec plus Base;
// handlers with extra branching (brew-tag's RPM/module split, buildsys-tag's
// XML-RPC enrichment, brew-build-complete, errata-automation) are standalone
// types that implement dispatch.Handler directly.
type Spec struct {
	HandlerName   string
	PayloadFamily string // artifact.Document.SetPayload's family key
	Identity      IdentityFunc
	Transforms    *dispatch.TransformRegistry
	IndexContext  IndexContextFunc
	IndexKind     string
}

// Base implements dispatch.Handler generically from a Spec: find-or-create
// plus payload merge plus state append for DocDB, and a parent+child
// Update pair for Index. The CI test handlers use Base directly; no
// handler embeds it.
type Base struct {
	Spec   Spec
	Store  *docdb.Store
	Prefix string // search-index name prefix (config.Config.IndexPrefix)
}

// NewBase constructs a Base handler from spec.
func NewBase(spec Spec, store *docdb.Store, prefix string) *Base {
	return &Base{Spec: spec, Store: store, Prefix: prefix}
}

func (b *Base) Name() string { return b.Spec.HandlerName }

func (b *Base) transform(env envelope.SpoolMessage) (map[string]interface{}, error) {
	fn, ok := b.Spec.Transforms.Lookup(env.Version())
	if !ok {
		return nil, kaierrors.NoValidationSchemaError(b.Spec.HandlerName, "no payload transform registered for version %q", env.Version())
	}
	return fn(env.Body)
}

// DocDB implements the generic §4.7 step-(a) handler contract: find (or
// create) the current document, merge in the freshly-extracted payload,
// and append a state entry unless its msg_id is already present.
func (b *Base) DocDB(ctx context.Context, env envelope.SpoolMessage) (*artifact.Document, error) {
	id, err := b.Spec.Identity(env.Body)
	if err != nil {
		return nil, err
	}

	doc, err := b.Store.FindOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}

	payload, err := b.transform(env)
	if err != nil {
		return nil, err
	}
	doc.SetPayload(b.Spec.PayloadFamily, payload)
	if doc.SchemaVersion == "" {
		doc.SchemaVersion = env.Version()
	}

	state, err := MakeState(env)
	if err != nil {
		return nil, err
	}
	doc.AppendState(state)

	return doc, nil
}

// Index implements the generic §4.8 handler contract: a parent
// (artifact) upsert-if-absent Update and a child (message) always-upsert
// Update, routed to the parent.
func (b *Base) Index(ctx context.Context, env envelope.SpoolMessage) ([]searchindex.Update, error) {
	id, err := b.Spec.Identity(env.Body)
	if err != nil {
		return nil, err
	}

	searchable, err := b.transform(env)
	if err != nil {
		return nil, err
	}

	state, err := MakeState(env)
	if err != nil {
		return nil, err
	}

	idxContext := "any"
	if b.Spec.IndexContext != nil {
		idxContext = b.Spec.IndexContext(env.Body)
	}
	indexName := searchindex.IndexName(b.Prefix, idxContext, b.Spec.IndexKind)
	parentID := searchindex.ParentDocID(string(id.Type), id.ID)

	parent := searchindex.NewParentUpdate(env.SpoolID, indexName, string(id.Type), id.ID, searchable)

	child := make(map[string]interface{}, len(searchable)+2)
	for k, v := range searchable {
		child[k] = v
	}
	child["kai_state"] = state
	child["raw"] = env.Body
	childUpdate := searchindex.NewChildUpdate(env.SpoolID, indexName, env.BrokerMsgID, parentID, child)

	return []searchindex.Update{parent, childUpdate}, nil
}

var _ dispatch.Handler = (*Base)(nil)

// requireString extracts a required top-level or nested string field,
// returning a validation-flavored error if absent or not a string.
func requireString(op string, body map[string]interface{}, path ...string) (string, error) {
	var cur interface{} = body
	for i, k := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return "", kaierrors.ValidationError(op, nil, "missing object at %v", path[:i])
		}
		cur, ok = m[k]
		if !ok {
			return "", kaierrors.ValidationError(op, nil, "missing required field %q", strJoin(path))
		}
	}
	switch v := cur.(type) {
	case string:
		if v == "" {
			return "", kaierrors.ValidationError(op, nil, "required field %q is empty", strJoin(path))
		}
		return v, nil
	case float64:
		return fmt.Sprintf("%.0f", v), nil
	default:
		return "", kaierrors.ValidationError(op, nil, "required field %q has unexpected type %T", strJoin(path), cur)
	}
}

func strJoin(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}
