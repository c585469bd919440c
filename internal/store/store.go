package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/walkshed/access-cli/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
// Callers match it with eris.Is.
var ErrNotFound = eris.New("store: not found")

// ListQuery pages through stored distance sets in location-ID order.
// AfterLocationID is the keyset cursor: empty starts from the beginning,
// otherwise the page begins strictly after that ID.
type ListQuery struct {
	Category        string `json:"category"`
	AfterLocationID string `json:"after_location_id,omitempty"`
	Limit           int    `json:"limit,omitempty"`
}

// AreaQuery selects the per-location rows feeding one area rollup:
// every scored location in one run and category, keyed by its area
// code at the requested level and weighted by the requested count.
type AreaQuery struct {
	RunID    string            `json:"run_id"`
	Category string            `json:"category"`
	Level    model.AreaLevel   `json:"level"`
	Weight   model.WeightKind  `json:"weight"`
	Metric   model.ScoreMetric `json:"metric"`
}

// Store defines the persistence interface for the scoring toolkit.
type Store interface {
	// Locations and distance sets
	UpsertLocations(ctx context.Context, locs []model.Location) (int64, error)
	UpsertDistanceSets(ctx context.Context, sets []model.DistanceSet) (int64, error)
	GetDistanceSet(ctx context.Context, locationID, category string) (*model.DistanceSet, error)
	ListDistanceSets(ctx context.Context, q ListQuery) ([]model.DistanceSet, error)

	// Runs
	CreateRun(ctx context.Context, label string, categories []string) (*model.ScoreRun, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, scored, failed int64, runErr *string) error
	GetRun(ctx context.Context, runID string) (*model.ScoreRun, error)
	LatestCompletedRun(ctx context.Context) (*model.ScoreRun, error)
	ListRuns(ctx context.Context, limit int) ([]model.ScoreRun, error)

	// Scores
	SaveScores(ctx context.Context, scores []model.LocationScore) (int64, error)
	ScoresForLocation(ctx context.Context, runID, locationID string) ([]model.LocationScore, error)
	AreaScoreRows(ctx context.Context, q AreaQuery) ([]model.AreaScoreRow, error)

	// Monitoring
	CountLocations(ctx context.Context) (int64, error)
	CountDistanceSets(ctx context.Context) (map[string]int64, error)
	CountScores(ctx context.Context, runID string) (int64, error)
	RunCountsByStatus(ctx context.Context) (map[string]int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// levelColumns maps an area level to its locations column. Rollup SQL
// interpolates column names, so they must come from this allowlist,
// never from user input.
var levelColumns = map[model.AreaLevel]string{
	model.AreaLevelMB:     "mb_code",
	model.AreaLevelSA1:    "sa1_code",
	model.AreaLevelSA2:    "sa2_code",
	model.AreaLevelSA3:    "sa3_code",
	model.AreaLevelSA4:    "sa4_code",
	model.AreaLevelSuburb: "suburb",
	model.AreaLevelLGA:    "lga",
	model.AreaLevelCity:   "city",
}

// weightColumns maps a weight kind to its locations column.
var weightColumns = map[model.WeightKind]string{
	model.WeightDwellings: "dwellings",
	model.WeightPersons:   "persons",
}

// metricColumns maps a score metric to its location_scores column.
var metricColumns = map[model.ScoreMetric]string{
	model.MetricSoft: "soft_score",
	model.MetricHard: "hard_score",
}

// areaQueryColumns resolves an AreaQuery's enum fields against the
// column allowlists.
func areaQueryColumns(q AreaQuery) (level, weight, metric string, err error) {
	level, ok := levelColumns[q.Level]
	if !ok {
		return "", "", "", eris.Errorf("store: unknown area level %q", q.Level)
	}
	weight, ok = weightColumns[q.Weight]
	if !ok {
		return "", "", "", eris.Errorf("store: unknown weight kind %q", q.Weight)
	}
	metric, ok = metricColumns[q.Metric]
	if !ok {
		return "", "", "", eris.Errorf("store: unknown score metric %q", q.Metric)
	}
	return level, weight, metric, nil
}

const defaultListLimit = 1000

func normalizeListQuery(q ListQuery) (ListQuery, error) {
	if q.Category == "" {
		return q, eris.New("store: list query requires a category")
	}
	if q.Limit <= 0 {
		q.Limit = defaultListLimit
	}
	return q, nil
}
