package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fedora-ci/kaijs-go/pkg/buildsys"
	"github.com/fedora-ci/kaijs-go/pkg/envelope"
	"github.com/fedora-ci/kaijs-go/pkg/kaierrors"
)

func TestStageState(t *testing.T) {
	stage, state := stageState("org.centos.prod.ci.brew-build.test.complete")
	require.Equal(t, "test", stage)
	require.Equal(t, "complete", state)

	stage, state = stageState("singlesegment")
	require.Equal(t, "", stage)
	require.Equal(t, "", state)
}

func TestTimestampFromBody(t *testing.T) {
	now := timestampFromBody(map[string]interface{}{})
	require.InDelta(t, time.Now().Unix(), now, 2)

	require.EqualValues(t, 12345, timestampFromBody(map[string]interface{}{"generated_at": float64(12345)}))
	require.EqualValues(t, 12345, timestampFromBody(map[string]interface{}{"generated_at": "12345"}))

	ts := timestampFromBody(map[string]interface{}{"generated_at": "2024-01-02T03:04:05Z"})
	want, _ := time.Parse(time.RFC3339, "2024-01-02T03:04:05Z")
	require.Equal(t, want.Unix(), ts)
}

func TestMakeState(t *testing.T) {
	env := envelope.New("msg-1", "org.centos.prod.ci.brew-build.test.complete", "umb", 1000, nil,
		map[string]interface{}{
			"version":      "1.0.0",
			"generated_at": float64(1700000000),
			"pipeline":     map[string]interface{}{"id": "pipeline-123"},
			"test":         map[string]interface{}{"namespace": "ns", "type": "tier1", "category": "functional"},
		}, nil)

	state, err := MakeState(env)
	require.NoError(t, err)
	require.Equal(t, "test", state.Stage)
	require.Equal(t, "complete", state.State)
	require.Equal(t, "msg-1", state.MsgID)
	require.Equal(t, int64(1700000000), state.Timestamp)
	require.Equal(t, "kaijs-loader", state.Origin.Creator)
}

func TestToMap(t *testing.T) {
	m, err := ToMap(SearchableRpm{TaskID: "1", NVR: "foo-1-1.el9", Issuer: "alice"})
	require.NoError(t, err)
	require.Equal(t, "1", m["task_id"])
	require.Equal(t, "foo-1-1.el9", m["nvr"])
	require.Equal(t, "alice", m["issuer"])
}

func TestBrewTagHandler_ResolveRPM(t *testing.T) {
	h := NewBrewTagHandler(nil, "kaijs-")
	body := map[string]interface{}{
		"tag": "rhel-8.9.0-z-batch-gate",
		"build": map[string]interface{}{
			"task_id": "555",
			"nvr":     "bash-5.1-1.el8",
			"name":    "bash",
			"owner":   "alice",
		},
	}
	r, err := h.resolve(body)
	require.NoError(t, err)
	require.Equal(t, "rpm_build", r.family)
	require.Equal(t, "555", r.id.ID)
	require.Equal(t, "rpm-build", r.indexKind)
}

func TestBrewTagHandler_ResolveModule(t *testing.T) {
	h := NewBrewTagHandler(nil, "kaijs-")
	body := map[string]interface{}{
		"tag": "rhel-9-modules-gate",
		"build": map[string]interface{}{
			"task_id": "556",
			"extra": map[string]interface{}{
				"typeinfo": map[string]interface{}{
					"module": map[string]interface{}{
						"module_build_service_id": "9001",
						"name":                     "nodejs",
						"stream":                   "18",
						"version":                  "1",
						"context":                  "abcd",
					},
				},
			},
		},
	}
	r, err := h.resolve(body)
	require.NoError(t, err)
	require.Equal(t, "mbs_build", r.family)
	require.Equal(t, "9001", r.id.ID)
	require.Equal(t, "module-build", r.indexKind)
}

func TestBrewTagHandler_RejectsBadGateTag(t *testing.T) {
	h := NewBrewTagHandler(nil, "kaijs-")
	body := map[string]interface{}{
		"tag": "not-a-gate-tag",
		"build": map[string]interface{}{
			"task_id": "555",
		},
	}
	_, err := h.resolve(body)
	require.Error(t, err)
	require.Equal(t, kaierrors.KindValidation, kaierrors.KindOf(err))
}

func TestBrewTagHandler_RejectsBlockedIssuer(t *testing.T) {
	h := NewBrewTagHandler(nil, "kaijs-")
	body := map[string]interface{}{
		"tag": "rhel-8.9.0-z-batch-gate",
		"build": map[string]interface{}{
			"task_id": "555",
			"owner":   "freshmaker-bot",
		},
	}
	_, err := h.resolve(body)
	require.Error(t, err)
	require.Equal(t, kaierrors.KindValidation, kaierrors.KindOf(err))
}

func TestBrewBuildCompleteHandler_DeclinesNonContainerBuilds(t *testing.T) {
	h := NewBrewBuildCompleteHandler(nil, "kaijs-")
	_, _, err := h.resolve(map[string]interface{}{
		"info": map[string]interface{}{"extra": map[string]interface{}{}},
	})
	require.Error(t, err)
	require.Equal(t, kaierrors.KindNoNeedToProcess, kaierrors.KindOf(err))
}

func TestBrewBuildCompleteHandler_ResolvesContainerBuild(t *testing.T) {
	h := NewBrewBuildCompleteHandler(nil, "kaijs-")
	id, payload, err := h.resolve(map[string]interface{}{
		"info": map[string]interface{}{
			"nvr": "my-app-1.0-1",
			"extra": map[string]interface{}{
				"osbs_build": map[string]interface{}{"kind": "container_build"},
				"image": map[string]interface{}{
					"index": map[string]interface{}{
						"registry":   "registry.example.com",
						"repository": "my/app",
						"digests": map[string]interface{}{
							"application/vnd.docker.distribution.manifest.list.v2+json": "sha256:abc123",
							"application/vnd.docker.distribution.manifest.v2+json":      "sha256:decoy456",
						},
					},
				},
			},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "sha256:abc123", id.ID)
	require.Equal(t, "sha256:abc123", payload["digest"])
	require.Equal(t, "my-app-1.0-1", payload["nvr"])
}

func TestBuildsysTagHandler_ResolveSucceeds(t *testing.T) {
	fake := &buildsys.FakeClient{Builds: map[int64]buildsys.BuildInfo{
		777: {TaskID: 777, NVR: "foo-2-1.el9"},
	}}
	h := NewBuildsysTagHandler(nil, "kaijs-", fake)

	id, payload, err := h.resolve(context.Background(), map[string]interface{}{
		"build_id": "777",
		"tag":      "rhel-8.9.0-z-batch-gate",
	})
	require.NoError(t, err)
	require.Equal(t, "777", id.ID)
	require.Equal(t, "foo-2-1.el9", payload["nvr"])
	require.Equal(t, "rhel-8.9.0-z-batch-gate", payload["gate_tag"])
}

func TestBuildsysTagHandler_ResolveMissingBuildID(t *testing.T) {
	h := NewBuildsysTagHandler(nil, "kaijs-", &buildsys.FakeClient{})
	_, _, err := h.resolve(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	require.Equal(t, kaierrors.KindValidation, kaierrors.KindOf(err))
}

func TestBuildsysTagHandler_ResolvePropagatesConnectionLost(t *testing.T) {
	// A pre-canceled context makes backoff.Retry give up on the first
	// attempt instead of sleeping through the full retry schedule.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := NewBuildsysTagHandler(nil, "kaijs-", &buildsys.FakeClient{Err: context.DeadlineExceeded})
	_, _, err := h.resolve(ctx, map[string]interface{}{"build_id": "1"})
	require.Error(t, err)
	require.Equal(t, kaierrors.KindConnectionLost, kaierrors.KindOf(err))
}

func TestErrataAutomationHandler_DeclinesNullTaskID(t *testing.T) {
	h := NewErrataAutomationHandler(nil, "kaijs-")
	_, _, err := h.resolve(map[string]interface{}{"task_id": nil})
	require.Error(t, err)
	require.Equal(t, kaierrors.KindNoNeedToProcess, kaierrors.KindOf(err))
}

func TestErrataAutomationHandler_ResolvesNumericTaskID(t *testing.T) {
	h := NewErrataAutomationHandler(nil, "kaijs-")
	id, payload, err := h.resolve(map[string]interface{}{
		"task_id": float64(4242),
		"nvr":     "foo-1-1",
		"product": "RHEL",
	})
	require.NoError(t, err)
	require.Equal(t, "4242", id.ID)
	require.Equal(t, "foo-1-1", payload["nvr"])
	require.Equal(t, "RHEL", payload["component"])
}
