package validate

import (
	"testing"

	"github.com/fedora-ci/kaijs-go/pkg/envelope"
	"github.com/fedora-ci/kaijs-go/pkg/kaierrors"
	"github.com/stretchr/testify/require"
)

func newEnv(topic string, body map[string]interface{}) envelope.SpoolMessage {
	return envelope.New("m1", topic, "test", 1000, nil, body, nil)
}

func TestValidate_WrongVersionOnCITopic(t *testing.T) {
	v := New(nil)
	env := newEnv("VirtualTopic.eng.ci.osci.brew-build.test.complete", map[string]interface{}{})
	err := v.Validate(env)
	require.True(t, kaierrors.Is(err, kaierrors.KindWrongVersion))
}

func TestValidate_RelaxedAcceptsV01(t *testing.T) {
	v := New(nil)
	env := newEnv("VirtualTopic.eng.ci.osci.brew-build.test.complete", map[string]interface{}{
		"version":  "0.1.0",
		"build":    map[string]interface{}{"task_id": "1"},
		"artifact": map[string]interface{}{"type": "brew-build"},
	})
	require.NoError(t, v.Validate(env))
}

func TestValidate_RelaxedRejectsMissingField(t *testing.T) {
	v := New(nil)
	env := newEnv("VirtualTopic.eng.ci.osci.brew-build.test.complete", map[string]interface{}{
		"version":  "0.1.0",
		"artifact": map[string]interface{}{"type": "brew-build"},
	})
	err := v.Validate(env)
	require.True(t, kaierrors.Is(err, kaierrors.KindValidation))
}

func TestValidate_NonCITopicRequiredFields(t *testing.T) {
	v := New(nil)
	env := newEnv("org.fedoraproject.prod.buildsys.tag", map[string]interface{}{
		"build_id": float64(1), "tag": "f33-updates", "name": "gcompris-qt",
	})
	require.NoError(t, v.Validate(env))
}

func TestValidate_NonCITopicMissingField(t *testing.T) {
	v := New(nil)
	env := newEnv("org.fedoraproject.prod.buildsys.tag", map[string]interface{}{
		"tag": "f33-updates",
	})
	err := v.Validate(env)
	require.True(t, kaierrors.Is(err, kaierrors.KindValidation))
}

func TestGateTagBrewBuild(t *testing.T) {
	require.NoError(t, GateTagBrewBuild("rhel-8.6.0-gate"))
	require.Error(t, GateTagBrewBuild("random-tag"))
}

func TestValidArtifactIssuer(t *testing.T) {
	require.NoError(t, ValidArtifactIssuer("bodhi"))
	require.Error(t, ValidArtifactIssuer("freshmaker-bot"))
}
