package buildsys

import (
	"context"
	"fmt"
)

// FakeClient is an in-memory Client for tests, keyed by build_id.
type FakeClient struct {
	Builds map[int64]BuildInfo
	Err    error
}

// GetBuild returns the canned BuildInfo for buildID, or Err if set.
func (f *FakeClient) GetBuild(ctx context.Context, buildID int64) (BuildInfo, error) {
	if f.Err != nil {
		return BuildInfo{}, f.Err
	}
	info, ok := f.Builds[buildID]
	if !ok {
		return BuildInfo{}, fmt.Errorf("fake buildsys: no build registered for id %d", buildID)
	}
	return info, nil
}
