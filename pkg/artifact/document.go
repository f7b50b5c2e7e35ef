package artifact

import "time"

// Origin records who/why a state entry was appended (§3.3).
type Origin struct {
	Creator string `json:"creator"`
	Reason  string `json:"reason"`
}

// KaiState is the per-message state observation appended to a document's
// states[] array (§3.3).
type KaiState struct {
	ThreadID     string `json:"thread_id"`
	MsgID        string `json:"msg_id"`
	Version      string `json:"version"`
	Stage        string `json:"stage"`
	State        string `json:"state"`
	Timestamp    int64  `json:"timestamp"`
	Origin       Origin `json:"origin"`
	TestCaseName string `json:"test_case_name,omitempty"`
}

// State wraps a KaiState, matching the document's on-disk states[] shape.
type State struct {
	KaiState KaiState `json:"kai_state"`
}

// Document is the per-(type, aid) aggregate persisted in the artifacts
// collection (§3.3). Exactly one of the four payload sub-objects is
// populated, matching the artifact family the document belongs to.
type Document struct {
	ID      int64  `json:"-" gorm:"primaryKey"`
	Type    Type   `json:"type" gorm:"column:type;index:idx_type_aid,unique"`
	AID     string `json:"aid" gorm:"column:aid;index:idx_type_aid,unique"`
	Version int64  `json:"_version" gorm:"column:version"`

	// SchemaVersion is carried purely for diagnostics; unlike Version it is
	// never read or compared by the optimistic-concurrency loop. It
	// records the payload-transform version that produced the document at
	// create time.
	SchemaVersion string `json:"schema_version,omitempty"`

	RpmBuild         map[string]interface{} `json:"rpm_build,omitempty"`
	MbsBuild         map[string]interface{} `json:"mbs_build,omitempty"`
	DistGitPR        map[string]interface{} `json:"dist_git_pr,omitempty"`
	ProductmdCompose map[string]interface{} `json:"productmd_compose,omitempty"`

	States []State `json:"states,omitempty"`

	// ExpireAt is an optional TTL hint carried in the document JSON. No
	// handler sets it, so no document gets an expiry, and the writer does
	// not enforce it.
	ExpireAt *time.Time `json:"expire_at,omitempty"`
	Updated  time.Time  `json:"_updated,omitempty"`
}

// New returns a fresh, unsaved document for the given identity with
// _version seeded at 1, matching find_or_create's $setOnInsert (§4.7.2).
func New(id Identity) *Document {
	return &Document{
		Type:    id.Type,
		AID:     id.ID,
		Version: 1,
		Updated: time.Now().UTC(),
	}
}

// HasState reports whether states[] already carries an entry for msgID
// (deduplication key per §3.3/§4.6).
func (d *Document) HasState(msgID string) bool {
	for _, s := range d.States {
		if s.KaiState.MsgID == msgID {
			return true
		}
	}
	return false
}

// AppendState appends s unless a state with the same msg_id is already
// present, returning whether it was appended.
func (d *Document) AppendState(s KaiState) bool {
	if d.HasState(s.MsgID) {
		return false
	}
	d.States = append(d.States, State{KaiState: s})
	return true
}

// SetPayload assigns the single payload sub-object appropriate to the
// document's artifact family, clearing the other three so the "exactly
// one payload present" invariant (§3.3) always holds.
func (d *Document) SetPayload(family string, payload map[string]interface{}) {
	d.RpmBuild, d.MbsBuild, d.DistGitPR, d.ProductmdCompose = nil, nil, nil, nil
	switch family {
	case "rpm_build":
		d.RpmBuild = payload
	case "mbs_build":
		d.MbsBuild = payload
	case "dist_git_pr":
		d.DistGitPR = payload
	case "productmd_compose":
		d.ProductmdCompose = payload
	}
}
