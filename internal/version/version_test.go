package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	defer func() { Version, GitCommit = oldVersion, oldCommit }()

	Version, GitCommit = "1.2.3", "unknown"
	require.Equal(t, "1.2.3", String())

	Version, GitCommit = "1.2.3", "abc1234"
	require.Equal(t, "1.2.3 (abc1234)", String())
}
