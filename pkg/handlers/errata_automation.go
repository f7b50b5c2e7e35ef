package handlers

import (
	"context"
	"fmt"

	"github.com/fedora-ci/kaijs-go/pkg/artifact"
	"github.com/fedora-ci/kaijs-go/pkg/docdb"
	"github.com/fedora-ci/kaijs-go/pkg/envelope"
	"github.com/fedora-ci/kaijs-go/pkg/kaierrors"
	"github.com/fedora-ci/kaijs-go/pkg/searchindex"
)

// ErrataAutomationHandler handles "*.errata_automation.brew-build.run.finished"
// notifications (§4.6). The schema is extra-light and task_id may
// legitimately be null; the non-CI validator (pkg/validate) already accepts
// a null task_id, so this handler is the one place that decides a null
// task_id carries nothing to anchor a document to and declines the message.
type ErrataAutomationHandler struct {
	Store  *docdb.Store
	Prefix string
}

func NewErrataAutomationHandler(store *docdb.Store, prefix string) *ErrataAutomationHandler {
	return &ErrataAutomationHandler{Store: store, Prefix: prefix}
}

func (h *ErrataAutomationHandler) Name() string { return "errata_automation" }

func (h *ErrataAutomationHandler) resolve(body map[string]interface{}) (artifact.Identity, map[string]interface{}, error) {
	const op = "handlers.ErrataAutomationHandler"

	raw, present := body["task_id"]
	if !present || raw == nil {
		return artifact.Identity{}, nil, kaierrors.NoNeedToProcessError(op, "task_id is null, nothing to anchor a document to")
	}
	var taskID string
	switch v := raw.(type) {
	case string:
		taskID = v
	case float64:
		taskID = fmt.Sprintf("%.0f", v)
	default:
		return artifact.Identity{}, nil, kaierrors.ValidationError(op, nil, "task_id has unexpected type %T", raw)
	}
	if taskID == "" {
		return artifact.Identity{}, nil, kaierrors.NoNeedToProcessError(op, "task_id is empty, nothing to anchor a document to")
	}

	payload, err := ToMap(SearchableRpm{
		TaskID:    taskID,
		NVR:       stringField(body, "nvr"),
		Component: stringField(body, "product"),
	})
	if err != nil {
		return artifact.Identity{}, nil, err
	}
	return artifact.Identity{Type: artifact.BrewBuild, ID: taskID}, payload, nil
}

func (h *ErrataAutomationHandler) DocDB(ctx context.Context, env envelope.SpoolMessage) (*artifact.Document, error) {
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

func (h *ErrataAutomationHandler) Index(ctx context.Context, env envelope.SpoolMessage) ([]searchindex.Update, error) {
	id, payload, err := h.resolve(env.Body)
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
