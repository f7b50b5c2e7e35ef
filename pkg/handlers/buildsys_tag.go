package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fedora-ci/kaijs-go/pkg/artifact"
	"github.com/fedora-ci/kaijs-go/pkg/buildsys"
	"github.com/fedora-ci/kaijs-go/pkg/docdb"
	"github.com/fedora-ci/kaijs-go/pkg/envelope"
	"github.com/fedora-ci/kaijs-go/pkg/kaierrors"
	"github.com/fedora-ci/kaijs-go/pkg/searchindex"
	"github.com/fedora-ci/kaijs-go/pkg/validate"
)

// BuildsysTagHandler handles koji/fedora/centos buildsys.tag events
// (§4.6): a non-CI topic whose body only carries a build id, enriched by
// calling out to the build system's getBuild() XML-RPC endpoint and
// retrying that call against transient failures.
type BuildsysTagHandler struct {
	Store    *docdb.Store
	Prefix   string
	Buildsys buildsys.Client
}

func NewBuildsysTagHandler(store *docdb.Store, prefix string, client buildsys.Client) *BuildsysTagHandler {
	return &BuildsysTagHandler{Store: store, Prefix: prefix, Buildsys: client}
}

func (h *BuildsysTagHandler) Name() string { return "buildsys_tag" }

// getBuildWithRetry wraps Client.GetBuild in the 5-attempt, factor-3,
// jittered exponential backoff (1s -> 60s ceiling) the external build
// system lookup needs, since getBuild() calls are occasionally flaky.
func (h *BuildsysTagHandler) getBuildWithRetry(ctx context.Context, buildID int64) (buildsys.BuildInfo, error) {
	var info buildsys.BuildInfo
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.Multiplier = 3
	bo.MaxInterval = 60 * time.Second
	policy := backoff.WithMaxRetries(bo, 4)

	op := func() error {
		var err error
		info, err = h.Buildsys.GetBuild(ctx, buildID)
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return buildsys.BuildInfo{}, fmt.Errorf("buildsys_tag: getBuild(%d) exhausted retries: %w", buildID, err)
	}
	return info, nil
}

func (h *BuildsysTagHandler) resolve(ctx context.Context, body map[string]interface{}) (artifact.Identity, map[string]interface{}, error) {
	const op = "handlers.BuildsysTagHandler"

	buildIDStr := stringField(body, "build_id")
	var buildID int64
	if buildIDStr != "" {
		n, err := strconv.ParseInt(buildIDStr, 10, 64)
		if err != nil {
			return artifact.Identity{}, nil, kaierrors.ValidationError(op, err, "build_id %q is not numeric", buildIDStr)
		}
		buildID = n
	} else if f, ok := body["build_id"].(float64); ok {
		buildID = int64(f)
	} else {
		return artifact.Identity{}, nil, kaierrors.ValidationError(op, nil, "missing build_id")
	}

	info, err := h.getBuildWithRetry(ctx, buildID)
	if err != nil {
		return artifact.Identity{}, nil, kaierrors.ConnectionLostError(op, err)
	}

	infoMap, err := ToMap(info)
	if err != nil {
		return artifact.Identity{}, nil, err
	}
	if err := validate.KojiBuildInfo(infoMap); err != nil {
		return artifact.Identity{}, nil, err
	}

	tag := stringField(body, "tag")
	payload, err := ToMap(SearchableRpm{
		TaskID:  fmt.Sprintf("%d", info.TaskID),
		NVR:     info.NVR,
		GateTag: tag,
	})
	if err != nil {
		return artifact.Identity{}, nil, err
	}
	return artifact.Identity{Type: artifact.KojiBuild, ID: fmt.Sprintf("%d", info.TaskID)}, payload, nil
}

func (h *BuildsysTagHandler) DocDB(ctx context.Context, env envelope.SpoolMessage) (*artifact.Document, error) {
	id, payload, err := h.resolve(ctx, env.Body)
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

func (h *BuildsysTagHandler) Index(ctx context.Context, env envelope.SpoolMessage) ([]searchindex.Update, error) {
	id, payload, err := h.resolve(ctx, env.Body)
	if err != nil {
		return nil, err
	}
	state, err := MakeState(env)
	if err != nil {
		return nil, err
	}

	indexName := searchindex.IndexName(h.Prefix, "any", "rpm-build")
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
