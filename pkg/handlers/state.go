// Package handlers implements the per-artifact-family transform handlers
// (§4.6): one file per family, each assembling the write-ops the
// document-DB and search-index writers apply.
package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/fedora-ci/kaijs-go/pkg/artifact"
	"github.com/fedora-ci/kaijs-go/pkg/envelope"
	"github.com/fedora-ci/kaijs-go/pkg/thread"
)

// stageState splits a topic into (stage, state): the second-from-last and
// last dot-segments, per §4.6's make_state rule.
func stageState(topic string) (stage, state string) {
	segs := strings.Split(topic, ".")
	if len(segs) < 2 {
		return "", ""
	}
	return segs[len(segs)-2], segs[len(segs)-1]
}

// timestampFromBody reads body.generated_at as either a Unix-seconds
// number or an RFC3339 string, falling back to the current time if
// absent or unparsable.
func timestampFromBody(body map[string]interface{}) int64 {
	raw, ok := body["generated_at"]
	if !ok {
		return time.Now().Unix()
	}
	switch v := raw.(type) {
	case float64:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.Unix()
		}
	}
	return time.Now().Unix()
}

// MakeState builds the kai_state entry for env, per §4.6: stage/state
// from the topic's last two dot-segments, version and timestamp from the
// body, a fixed loader origin, and (test stage only) the test case name.
func MakeState(env envelope.SpoolMessage) (artifact.KaiState, error) {
	stage, state := stageState(env.BrokerTopic)
	version := env.Version()

	threadID, err := thread.DeriveThreadID(env.Body, stage, version)
	if err != nil {
		return artifact.KaiState{}, err
	}

	var testCaseName string
	if stage == "test" {
		testCaseName, err = thread.TestCaseName(env.Body, version)
		if err != nil {
			return artifact.KaiState{}, err
		}
	}

	return artifact.KaiState{
		ThreadID:     threadID,
		MsgID:        env.BrokerMsgID,
		Version:      version,
		Stage:        stage,
		State:        state,
		Timestamp:    timestampFromBody(env.Body),
		Origin:       artifact.Origin{Creator: "kaijs-loader", Reason: "broker message"},
		TestCaseName: testCaseName,
	}, nil
}
