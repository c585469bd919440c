package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walkshed/access-cli/internal/model"
)

var _ Store = (*SQLiteStore)(nil)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func ptrFloat64(f float64) *float64 { return &f }

func ptrString(s string) *string { return &s }

func seedLocations(t *testing.T, st *SQLiteStore, locs ...model.Location) {
	t.Helper()
	n, err := st.UpsertLocations(context.Background(), locs)
	require.NoError(t, err)
	require.Equal(t, int64(len(locs)), n)
}

// --- Locations ---

func TestSQLite_Locations_Upsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedLocations(t, st,
		model.Location{
			ID:        "loc-1",
			SA1Code:   ptrString("sa1-100"),
			Suburb:    ptrString("Carlton"),
			City:      ptrString("Melbourne"),
			Dwellings: 42,
			Persons:   97,
		},
		model.Location{ID: "loc-2"},
	)

	n, err := st.CountLocations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Upserting the same IDs must not create new rows.
	seedLocations(t, st, model.Location{ID: "loc-1", Dwellings: 50})

	n, err = st.CountLocations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSQLite_Locations_UpsertEmpty(t *testing.T) {
	st := newTestSQLiteStore(t)

	n, err := st.UpsertLocations(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

// --- Distance sets ---

func TestSQLite_DistanceSets_UpsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedLocations(t, st, model.Location{ID: "loc-1"}, model.Location{ID: "loc-2"})

	n, err := st.UpsertDistanceSets(ctx, []model.DistanceSet{
		{LocationID: "loc-1", Category: "supermarket", Distances: []float64{427, 640, 669, 1107}},
		{LocationID: "loc-2", Category: "supermarket", NearestM: ptrFloat64(4180)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ds, err := st.GetDistanceSet(ctx, "loc-1", "supermarket")
	require.NoError(t, err)
	assert.Equal(t, []float64{427, 640, 669, 1107}, ds.Distances)
	assert.Nil(t, ds.NearestM)

	ds, err = st.GetDistanceSet(ctx, "loc-2", "supermarket")
	require.NoError(t, err)
	assert.Empty(t, ds.Distances)
	require.NotNil(t, ds.NearestM)
	assert.Equal(t, 4180.0, *ds.NearestM)
}

func TestSQLite_DistanceSets_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetDistanceSet(context.Background(), "loc-1", "supermarket")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_DistanceSets_UpsertOverwrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedLocations(t, st, model.Location{ID: "loc-1"})

	_, err := st.UpsertDistanceSets(ctx, []model.DistanceSet{
		{LocationID: "loc-1", Category: "pharmacy", Distances: []float64{950}},
	})
	require.NoError(t, err)

	// A re-delivery for the same location and category replaces the row.
	_, err = st.UpsertDistanceSets(ctx, []model.DistanceSet{
		{LocationID: "loc-1", Category: "pharmacy", Distances: nil, NearestM: ptrFloat64(3350)},
	})
	require.NoError(t, err)

	ds, err := st.GetDistanceSet(ctx, "loc-1", "pharmacy")
	require.NoError(t, err)
	assert.Empty(t, ds.Distances)
	require.NotNil(t, ds.NearestM)
	assert.Equal(t, 3350.0, *ds.NearestM)

	counts, err := st.CountDistanceSets(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"pharmacy": 1}, counts)
}

func TestSQLite_DistanceSets_ListKeyset(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ids := []string{"loc-a", "loc-b", "loc-c", "loc-d", "loc-e"}
	var sets []model.DistanceSet
	for _, id := range ids {
		seedLocations(t, st, model.Location{ID: id})
		sets = append(sets, model.DistanceSet{LocationID: id, Category: "library", Distances: []float64{500}})
	}
	// A row in another category must not appear in the pages.
	sets = append(sets, model.DistanceSet{LocationID: "loc-a", Category: "gp", Distances: []float64{200}})

	_, err := st.UpsertDistanceSets(ctx, sets)
	require.NoError(t, err)

	page, err := st.ListDistanceSets(ctx, ListQuery{Category: "library", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "loc-a", page[0].LocationID)
	assert.Equal(t, "loc-b", page[1].LocationID)

	page, err = st.ListDistanceSets(ctx, ListQuery{Category: "library", AfterLocationID: "loc-b", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "loc-c", page[0].LocationID)
	assert.Equal(t, "loc-d", page[1].LocationID)

	page, err = st.ListDistanceSets(ctx, ListQuery{Category: "library", AfterLocationID: "loc-d", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "loc-e", page[0].LocationID)

	page, err = st.ListDistanceSets(ctx, ListQuery{Category: "library", AfterLocationID: "loc-e", Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, page)
}

// --- Runs ---

func TestSQLite_Runs_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "nightly", []string{"supermarket", "pharmacy"})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "nightly", got.Label)
	assert.Equal(t, model.RunStatusRunning, got.Status)
	assert.Equal(t, []string{"supermarket", "pharmacy"}, got.Categories)
	assert.WithinDuration(t, run.StartedAt, got.StartedAt, time.Second)
	assert.Nil(t, got.FinishedAt)
	assert.Nil(t, got.Error)

	err = st.FinishRun(ctx, run.ID, model.RunStatusCompleted, 128, 2, nil)
	require.NoError(t, err)

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.Equal(t, int64(128), got.Scored)
	assert.Equal(t, int64(2), got.Failed)
	require.NotNil(t, got.FinishedAt)

	latest, err := st.LatestCompletedRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, run.ID, latest.ID)
}

func TestSQLite_Runs_FailedRunKeepsError(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "", nil)
	require.NoError(t, err)

	errMsg := "store unreachable"
	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusFailed, 10, 4, &errMsg))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Empty(t, got.Categories)
	require.NotNil(t, got.Error)
	assert.Equal(t, "store unreachable", *got.Error)

	// A failed run is not a completed run.
	latest, err := st.LatestCompletedRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSQLite_Runs_FinishMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.FinishRun(context.Background(), "missing-run", model.RunStatusCompleted, 0, 0, nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_Runs_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "missing-run")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_Runs_List(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var ids []string
	for _, label := range []string{"first", "second", "third"} {
		run, err := st.CreateRun(ctx, label, nil)
		require.NoError(t, err)
		ids = append(ids, run.ID)
		time.Sleep(10 * time.Millisecond)
	}

	runs, err := st.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)

	counts, err := st.RunCountsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"running": 3}, counts)
}

// --- Scores ---

func TestSQLite_Scores_SaveAndFetch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "", []string{"supermarket", "pharmacy"})
	require.NoError(t, err)

	now := time.Now().UTC()
	scores := []model.LocationScore{
		{RunID: run.ID, LocationID: "loc-1", Category: "supermarket", ThresholdM: 800,
			ClosestM: ptrFloat64(427), CountWithin: 2,
			HardScore: ptrFloat64(1), SoftScore: ptrFloat64(0.9114), ScoredAt: now},
		{RunID: run.ID, LocationID: "loc-1", Category: "pharmacy", ThresholdM: 1000,
			CountWithin: 0, ScoredAt: now},
		{RunID: run.ID, LocationID: "loc-2", Category: "supermarket", ThresholdM: 800,
			ClosestM: ptrFloat64(4180), CountWithin: 0,
			HardScore: ptrFloat64(0), SoftScore: ptrFloat64(0), ScoredAt: now},
	}

	n, err := st.SaveScores(ctx, scores)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := st.ScoresForLocation(ctx, run.ID, "loc-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Ordered by category: pharmacy before supermarket.
	assert.Equal(t, "pharmacy", got[0].Category)
	assert.Nil(t, got[0].ClosestM)
	assert.Nil(t, got[0].HardScore)
	assert.Nil(t, got[0].SoftScore)

	assert.Equal(t, "supermarket", got[1].Category)
	assert.Equal(t, 800.0, got[1].ThresholdM)
	require.NotNil(t, got[1].ClosestM)
	assert.Equal(t, 427.0, *got[1].ClosestM)
	assert.Equal(t, int64(2), got[1].CountWithin)
	require.NotNil(t, got[1].SoftScore)
	assert.InDelta(t, 0.9114, *got[1].SoftScore, 1e-9)
	assert.WithinDuration(t, now, got[1].ScoredAt, time.Second)

	total, err := st.CountScores(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	forRun, err := st.CountScores(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), forRun)

	forOther, err := st.CountScores(ctx, "other-run")
	require.NoError(t, err)
	assert.Equal(t, int64(0), forOther)
}

func TestSQLite_Scores_SaveEmpty(t *testing.T) {
	st := newTestSQLiteStore(t)

	n, err := st.SaveScores(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

// --- Rollup rows ---

func TestSQLite_AreaScoreRows(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedLocations(t, st,
		model.Location{ID: "loc-1", SA1Code: ptrString("sa1-100"), Dwellings: 30, Persons: 75},
		model.Location{ID: "loc-2", SA1Code: ptrString("sa1-100"), Dwellings: 12, Persons: 20},
		model.Location{ID: "loc-3", SA1Code: ptrString("sa1-200"), Dwellings: 8, Persons: 15},
		// No SA1 code: must be excluded from SA1 rollups.
		model.Location{ID: "loc-4", Dwellings: 99},
	)

	run, err := st.CreateRun(ctx, "", []string{"supermarket"})
	require.NoError(t, err)

	now := time.Now().UTC()
	_, err = st.SaveScores(ctx, []model.LocationScore{
		{RunID: run.ID, LocationID: "loc-1", Category: "supermarket", ThresholdM: 800,
			HardScore: ptrFloat64(1), SoftScore: ptrFloat64(0.9), ScoredAt: now},
		{RunID: run.ID, LocationID: "loc-2", Category: "supermarket", ThresholdM: 800,
			ScoredAt: now},
		{RunID: run.ID, LocationID: "loc-3", Category: "supermarket", ThresholdM: 800,
			HardScore: ptrFloat64(0), SoftScore: ptrFloat64(0.3), ScoredAt: now},
		{RunID: run.ID, LocationID: "loc-4", Category: "supermarket", ThresholdM: 800,
			HardScore: ptrFloat64(1), SoftScore: ptrFloat64(0.8), ScoredAt: now},
	})
	require.NoError(t, err)

	rows, err := st.AreaScoreRows(ctx, AreaQuery{
		RunID:    run.ID,
		Category: "supermarket",
		Level:    model.AreaLevelSA1,
		Weight:   model.WeightDwellings,
		Metric:   model.MetricSoft,
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Weights are distinct per seeded location, so they key the rows.
	byWeight := map[float64]model.AreaScoreRow{}
	for _, r := range rows {
		assert.NotEmpty(t, r.AreaCode)
		byWeight[r.Weight] = r
	}
	require.Len(t, byWeight, 3)

	r := byWeight[30]
	assert.Equal(t, "sa1-100", r.AreaCode)
	require.NotNil(t, r.Score)
	assert.Equal(t, 0.9, *r.Score)

	r = byWeight[12]
	assert.Equal(t, "sa1-100", r.AreaCode)
	assert.Nil(t, r.Score)

	r = byWeight[8]
	assert.Equal(t, "sa1-200", r.AreaCode)
	require.NotNil(t, r.Score)
	assert.Equal(t, 0.3, *r.Score)

	// Persons weighting and the hard metric read different columns.
	rows, err = st.AreaScoreRows(ctx, AreaQuery{
		RunID:    run.ID,
		Category: "supermarket",
		Level:    model.AreaLevelSA1,
		Weight:   model.WeightPersons,
		Metric:   model.MetricHard,
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		if r.AreaCode == "sa1-200" {
			require.NotNil(t, r.Score)
			assert.Equal(t, 0.0, *r.Score)
			assert.Equal(t, 15.0, r.Weight)
		}
	}
}

func TestSQLite_AreaScoreRows_UnknownWeight(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.AreaScoreRows(context.Background(), AreaQuery{
		RunID:    "run-1",
		Category: "supermarket",
		Level:    model.AreaLevelSA1,
		Weight:   model.WeightKind("households"),
		Metric:   model.MetricSoft,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown weight kind")
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)

	// The helper has already migrated once.
	require.NoError(t, st.Migrate(context.Background()))
}
