package handlers

import "encoding/json"

// Searchable* types are the discriminated-union projections Design Notes
// §9 describes: handlers are the only site that reaches into an untyped
// body, and everything downstream of a handler speaks one of these typed
// shapes instead. ToMap round-trips one through JSON to the plain
// map[string]interface{} both artifact.Document payload fields and
// searchindex.Update.Doc expect.

// SearchableRpm is the projection for koji-build/koji-build-cs/copr-build/
// brew-build artifacts.
type SearchableRpm struct {
	TaskID    string `json:"task_id"`
	BuildID   string `json:"build_id,omitempty"`
	NVR       string `json:"nvr"`
	Issuer    string `json:"issuer"`
	Component string `json:"component"`
	Scratch   bool   `json:"scratch"`
	GateTag   string `json:"gate_tag,omitempty"`
}

// SearchableMbs is the projection for redhat-module/fedora-module
// artifacts.
type SearchableMbs struct {
	MBSID   string `json:"mbs_id"`
	NSVC    string `json:"nsvc"`
	Name    string `json:"name"`
	Stream  string `json:"stream"`
	Version string `json:"version"`
	Context string `json:"context"`
	GateTag string `json:"gate_tag,omitempty"`
}

// SearchableCompose is the projection for productmd-compose artifacts.
type SearchableCompose struct {
	ComposeID   string `json:"compose_id"`
	ComposeType string `json:"compose_type"`
	Release     string `json:"release,omitempty"`
}

// SearchableContainerImage is the projection for redhat-container-image
// artifacts. Per Open Question (a), this shape follows the
// brew-build-complete handler's field conventions, which is treated as
// authoritative over the divergent test-stage payload the original
// codebase also defines.
type SearchableContainerImage struct {
	Digest     string `json:"digest"`
	Registry   string `json:"registry,omitempty"`
	Repository string `json:"repository,omitempty"`
	NVR        string `json:"nvr,omitempty"`
}

// SearchableDistGitPR is the projection for dist-git-pr artifacts.
type SearchableDistGitPR struct {
	PRID   string `json:"pr_id"`
	Repo   string `json:"repo"`
	Branch string `json:"branch,omitempty"`
}

// ToMap round-trips any Searchable* value through JSON to the plain map
// both the artifact.Document payload fields and searchindex.Update.Doc
// expect.
func ToMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
