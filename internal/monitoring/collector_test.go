package monitoring

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walkshed/access-cli/internal/model"
	"github.com/walkshed/access-cli/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewSQLite(filepath.Join(dir, "monitoring.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestCollector_Collect_EmptyStore(t *testing.T) {
	st := newTestStore(t)

	snap, err := NewCollector(st).Collect(context.Background(), 20)
	require.NoError(t, err)

	assert.Equal(t, int64(0), snap.Locations)
	assert.Empty(t, snap.DistanceSets)
	assert.Empty(t, snap.RunsByStatus)
	assert.Equal(t, 0, snap.RecentFinished)
	assert.Nil(t, snap.LatestRun)
	assert.Equal(t, 0.0, snap.FailureRate())
	assert.Equal(t, 20, snap.LookbackRuns)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_Collect(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.UpsertLocations(ctx, []model.Location{{ID: "loc-1"}, {ID: "loc-2"}})
	require.NoError(t, err)
	_, err = st.UpsertDistanceSets(ctx, []model.DistanceSet{
		{LocationID: "loc-1", Category: "supermarket", Distances: []float64{427}},
		{LocationID: "loc-2", Category: "supermarket", Distances: []float64{951}},
		{LocationID: "loc-1", Category: "pharmacy", Distances: []float64{233}},
	})
	require.NoError(t, err)

	failed, err := st.CreateRun(ctx, "broken", []string{"supermarket"})
	require.NoError(t, err)
	msg := "store unreachable"
	require.NoError(t, st.FinishRun(ctx, failed.ID, model.RunStatusFailed, 0, 2, &msg))

	completed, err := st.CreateRun(ctx, "nightly", []string{"supermarket", "pharmacy"})
	require.NoError(t, err)
	_, err = st.SaveScores(ctx, []model.LocationScore{
		{RunID: completed.ID, LocationID: "loc-1", Category: "supermarket", ThresholdM: 800, ScoredAt: completed.StartedAt},
		{RunID: completed.ID, LocationID: "loc-2", Category: "supermarket", ThresholdM: 800, ScoredAt: completed.StartedAt},
	})
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, completed.ID, model.RunStatusCompleted, 2, 0, nil))

	snap, err := NewCollector(st).Collect(ctx, 20)
	require.NoError(t, err)

	assert.Equal(t, int64(2), snap.Locations)
	assert.Equal(t, map[string]int64{"supermarket": 2, "pharmacy": 1}, snap.DistanceSets)
	assert.Equal(t, int64(3), snap.TotalDistanceSets())
	assert.Equal(t, map[string]int64{"completed": 1, "failed": 1}, snap.RunsByStatus)
	assert.Equal(t, 2, snap.RecentFinished)
	assert.Equal(t, 1, snap.RecentFailed)
	assert.InDelta(t, 0.5, snap.FailureRate(), 0.001)
	require.NotNil(t, snap.LatestRun)
	assert.Equal(t, completed.ID, snap.LatestRun.ID)
	assert.Equal(t, int64(2), snap.LatestRunScores)
}

func TestCollector_Collect_DefaultLookback(t *testing.T) {
	st := newTestStore(t)

	snap, err := NewCollector(st).Collect(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, defaultLookbackRuns, snap.LookbackRuns)
}

func TestSnapshot_FailureRate_NoFinishedRuns(t *testing.T) {
	snap := &Snapshot{}
	assert.Equal(t, 0.0, snap.FailureRate())
}
