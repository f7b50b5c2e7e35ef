package handlers

import (
	"context"

	"github.com/fedora-ci/kaijs-go/pkg/artifact"
	"github.com/fedora-ci/kaijs-go/pkg/docdb"
	"github.com/fedora-ci/kaijs-go/pkg/envelope"
	"github.com/fedora-ci/kaijs-go/pkg/kaierrors"
	"github.com/fedora-ci/kaijs-go/pkg/searchindex"
)

// BrewBuildCompleteHandler handles "brew.build.complete" brew-build
// events (§4.6): only container builds (info.extra.osbs_build.kind ==
// "container_build") are authoritative here; every other build kind is
// declined with NoNeedToProcessError since brew-tag/buildsys-tag already
// cover the RPM/module lifecycle.
type BrewBuildCompleteHandler struct {
	Store  *docdb.Store
	Prefix string
}

func NewBrewBuildCompleteHandler(store *docdb.Store, prefix string) *BrewBuildCompleteHandler {
	return &BrewBuildCompleteHandler{Store: store, Prefix: prefix}
}

func (h *BrewBuildCompleteHandler) Name() string { return "brew_build_complete" }

func (h *BrewBuildCompleteHandler) resolve(body map[string]interface{}) (artifact.Identity, map[string]interface{}, error) {
	const op = "handlers.BrewBuildCompleteHandler"

	info, ok := body["info"].(map[string]interface{})
	if !ok {
		return artifact.Identity{}, nil, kaierrors.ValidationError(op, nil, "missing info object")
	}
	extra, _ := info["extra"].(map[string]interface{})
	osbs, hasOSBS := mapField(extra, "osbs_build")
	if !hasOSBS || stringField(osbs, "kind") != "container_build" {
		return artifact.Identity{}, nil, kaierrors.NoNeedToProcessError(op, "not a container build")
	}

	image, _ := mapField(extra, "image")
	index, hasIndex := mapField(image, "index")
	if !hasIndex {
		return artifact.Identity{}, nil, kaierrors.ValidationError(op, nil, "missing extra.image.index")
	}
	digests, _ := index["digests"].(map[string]interface{})
	digest, _ := digests["application/vnd.docker.distribution.manifest.list.v2+json"].(string)
	if digest == "" {
		return artifact.Identity{}, nil, kaierrors.ValidationError(op, nil, "missing manifest-list digest in extra.image.index.digests")
	}

	payload, err := ToMap(SearchableContainerImage{
		Digest:     digest,
		Registry:   stringField(index, "registry"),
		Repository: stringField(index, "repository"),
		NVR:        stringField(info, "nvr"),
	})
	if err != nil {
		return artifact.Identity{}, nil, err
	}
	return artifact.Identity{Type: artifact.RedhatContainerImage, ID: digest}, payload, nil
}

func (h *BrewBuildCompleteHandler) DocDB(ctx context.Context, env envelope.SpoolMessage) (*artifact.Document, error) {
	id, payload, err := h.resolve(env.Body)
	if err != nil {
		return nil, err
	}
	doc, err := h.Store.FindOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.SetPayload("rpm_build", payload)
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

func (h *BrewBuildCompleteHandler) Index(ctx context.Context, env envelope.SpoolMessage) ([]searchindex.Update, error) {
	id, payload, err := h.resolve(env.Body)
	if err != nil {
		return nil, err
	}
	state, err := MakeState(env)
	if err != nil {
		return nil, err
	}

	indexName := searchindex.IndexName(h.Prefix, "any", "container-image")
	parentID := searchindex.ParentDocID(string(id.Type), id.ID)

	parent := searchindex.NewParentUpdate(env.SpoolID, indexName, string(id.Type), id.ID, payload)

	child := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		child[k] = v
	}
	child["kai_state"] = state
	child["raw"] = env.Body
	childUpdate := searchindex.NewChildUpdate(env.SpoolID, indexName, env.BrokerMsgID, parentID, child)

	return []searchindex.Update{parent, childUpdate}, nil
}
