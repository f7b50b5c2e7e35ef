package handlers

import (
	"context"

	"github.com/fedora-ci/kaijs-go/pkg/artifact"
	"github.com/fedora-ci/kaijs-go/pkg/docdb"
	"github.com/fedora-ci/kaijs-go/pkg/envelope"
	"github.com/fedora-ci/kaijs-go/pkg/kaierrors"
	"github.com/fedora-ci/kaijs-go/pkg/searchindex"
	"github.com/fedora-ci/kaijs-go/pkg/validate"
)

// BrewTagHandler handles brew build-tag events (§4.6 "Brew tag"): it
// branches on build.extra.typeinfo.module.module_build_service_id's
// presence to decide module vs. RPM build, and validates the tag name
// against the matching gate-tag pattern before accepting the message.
type BrewTagHandler struct {
	Store  *docdb.Store
	Prefix string
}

func NewBrewTagHandler(store *docdb.Store, prefix string) *BrewTagHandler {
	return &BrewTagHandler{Store: store, Prefix: prefix}
}

func (h *BrewTagHandler) Name() string { return "brew_tag" }

// brewTagResolved is the outcome of branching + gate-tag validation, shared by
// DocDB and Index so the two stay consistent.
type brewTagResolved struct {
	id        artifact.Identity
	payload   map[string]interface{}
	family    string // artifact.Document payload bucket
	indexKind string
}

func (h *BrewTagHandler) resolve(body map[string]interface{}) (brewTagResolved, error) {
	const op = "handlers.BrewTagHandler"

	build, _ := body["build"].(map[string]interface{})
	if build == nil {
		return brewTagResolved{}, kaierrors.ValidationError(op, nil, "missing build object")
	}
	tag := stringField(body, "tag")
	if tag == "" {
		return brewTagResolved{}, kaierrors.ValidationError(op, nil, "missing tag")
	}

	extra, _ := build["extra"].(map[string]interface{})
	typeinfo, _ := mapField(extra, "typeinfo")
	module, _ := mapField(typeinfo, "module")
	_, hasMBSID := module["module_build_service_id"]

	if hasMBSID {
		if err := validate.GateTagRedhatModule(tag); err != nil {
			return brewTagResolved{}, err
		}
		mbsID := stringField(module, "module_build_service_id")
		if mbsID == "" {
			return brewTagResolved{}, kaierrors.ValidationError(op, nil, "missing module_build_service_id")
		}
		payload, err := ToMap(SearchableMbs{
			MBSID:   mbsID,
			NSVC:    stringField(module, "context"),
			Name:    stringField(module, "name"),
			Stream:  stringField(module, "stream"),
			Version: stringField(module, "version"),
			Context: stringField(module, "context"),
			GateTag: tag,
		})
		if err != nil {
			return brewTagResolved{}, err
		}
		return brewTagResolved{
			id:        artifact.Identity{Type: artifact.RedhatModule, ID: mbsID},
			payload:   payload,
			family:    "mbs_build",
			indexKind: "module-build",
		}, nil
	}

	if err := validate.GateTagBrewBuild(tag); err != nil {
		return brewTagResolved{}, err
	}
	taskID := stringField(build, "task_id")
	if taskID == "" {
		return brewTagResolved{}, kaierrors.ValidationError(op, nil, "missing task_id")
	}
	if issuer := stringField(build, "owner"); issuer != "" {
		if err := validate.ValidArtifactIssuer(issuer); err != nil {
			return brewTagResolved{}, err
		}
	}
	payload, err := ToMap(SearchableRpm{
		TaskID:    taskID,
		NVR:       stringField(build, "nvr"),
		Issuer:    stringField(build, "owner"),
		Component: stringField(build, "name"),
		GateTag:   tag,
	})
	if err != nil {
		return brewTagResolved{}, err
	}
	return brewTagResolved{
		id:        artifact.Identity{Type: artifact.BrewBuild, ID: taskID},
		payload:   payload,
		family:    "rpm_build",
		indexKind: "rpm-build",
	}, nil
}

func mapField(m map[string]interface{}, key string) (map[string]interface{}, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[key].(map[string]interface{})
	return v, ok
}

func (h *BrewTagHandler) DocDB(ctx context.Context, env envelope.SpoolMessage) (*artifact.Document, error) {
	r, err := h.resolve(env.Body)
	if err != nil {
		return nil, err
	}
	doc, err := h.Store.FindOrCreate(ctx, r.id)
	if err != nil {
		return nil, err
	}
	doc.SetPayload(r.family, r.payload)
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

func (h *BrewTagHandler) Index(ctx context.Context, env envelope.SpoolMessage) ([]searchindex.Update, error) {
	r, err := h.resolve(env.Body)
	if err != nil {
		return nil, err
	}
	state, err := MakeState(env)
	if err != nil {
		return nil, err
	}

	indexName := searchindex.IndexName(h.Prefix, "any", r.indexKind)
	parentID := searchindex.ParentDocID(string(r.id.Type), r.id.ID)

	parent := searchindex.NewParentUpdate(env.SpoolID, indexName, string(r.id.Type), r.id.ID, r.payload)

	child := make(map[string]interface{}, len(r.payload)+2)
	for k, v := range r.payload {
		child[k] = v
	}
	child["kai_state"] = state
	child["raw"] = env.Body
	childUpdate := searchindex.NewChildUpdate(env.SpoolID, indexName, env.BrokerMsgID, parentID, child)

	return []searchindex.Update{parent, childUpdate}, nil
}
