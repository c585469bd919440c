package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/walkshed/access-cli/internal/db"
	"github.com/walkshed/access-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS locations (
	id         TEXT PRIMARY KEY,
	mb_code    TEXT,
	sa1_code   TEXT,
	sa2_code   TEXT,
	sa3_code   TEXT,
	sa4_code   TEXT,
	suburb     TEXT,
	lga        TEXT,
	city       TEXT,
	dwellings  BIGINT NOT NULL DEFAULT 0,
	persons    BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS distance_sets (
	location_id TEXT NOT NULL REFERENCES locations(id),
	category    TEXT NOT NULL,
	distances   FLOAT8[] NOT NULL DEFAULT '{}',
	nearest_m   FLOAT8,
	PRIMARY KEY (location_id, category)
);

CREATE TABLE IF NOT EXISTS score_runs (
	id          TEXT PRIMARY KEY,
	label       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'running',
	categories  TEXT[] NOT NULL DEFAULT '{}',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ,
	scored      BIGINT NOT NULL DEFAULT 0,
	failed      BIGINT NOT NULL DEFAULT 0,
	error       TEXT
);

CREATE TABLE IF NOT EXISTS location_scores (
	run_id       TEXT NOT NULL REFERENCES score_runs(id),
	location_id  TEXT NOT NULL,
	category     TEXT NOT NULL,
	threshold_m  FLOAT8 NOT NULL,
	closest_m    FLOAT8,
	count_within BIGINT NOT NULL DEFAULT 0,
	hard_score   FLOAT8,
	soft_score   FLOAT8,
	scored_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, location_id, category)
);

CREATE INDEX IF NOT EXISTS idx_distance_sets_category ON distance_sets(category, location_id);
CREATE INDEX IF NOT EXISTS idx_location_scores_run ON location_scores(run_id, category);
CREATE INDEX IF NOT EXISTS idx_score_runs_status ON score_runs(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var locationColumns = []string{
	"id", "mb_code", "sa1_code", "sa2_code", "sa3_code", "sa4_code",
	"suburb", "lga", "city", "dwellings", "persons",
}

func (s *PostgresStore) UpsertLocations(ctx context.Context, locs []model.Location) (int64, error) {
	rows := make([][]any, 0, len(locs))
	for _, l := range locs {
		rows = append(rows, []any{
			l.ID, l.MBCode, l.SA1Code, l.SA2Code, l.SA3Code, l.SA4Code,
			l.Suburb, l.LGA, l.City, l.Dwellings, l.Persons,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "locations",
		Columns:      locationColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert locations")
}

var distanceSetColumns = []string{"location_id", "category", "distances", "nearest_m"}

func (s *PostgresStore) UpsertDistanceSets(ctx context.Context, sets []model.DistanceSet) (int64, error) {
	rows := make([][]any, 0, len(sets))
	for _, ds := range sets {
		distances := ds.Distances
		if distances == nil {
			distances = []float64{}
		}
		rows = append(rows, []any{ds.LocationID, ds.Category, distances, ds.NearestM})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "distance_sets",
		Columns:      distanceSetColumns,
		ConflictKeys: []string{"location_id", "category"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert distance sets")
}

func (s *PostgresStore) GetDistanceSet(ctx context.Context, locationID, category string) (*model.DistanceSet, error) {
	var ds model.DistanceSet
	err := s.pool.QueryRow(ctx,
		`SELECT location_id, category, distances, nearest_m FROM distance_sets
		 WHERE location_id = $1 AND category = $2`,
		locationID, category,
	).Scan(&ds.LocationID, &ds.Category, &ds.Distances, &ds.NearestM)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "distance set %s/%s", locationID, category)
		}
		return nil, eris.Wrapf(err, "postgres: get distance set %s/%s", locationID, category)
	}
	return &ds, nil
}

func (s *PostgresStore) ListDistanceSets(ctx context.Context, q ListQuery) ([]model.DistanceSet, error) {
	q, err := normalizeListQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT location_id, category, distances, nearest_m FROM distance_sets
		 WHERE category = $1 AND location_id > $2
		 ORDER BY location_id LIMIT $3`,
		q.Category, q.AfterLocationID, q.Limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list distance sets")
	}
	defer rows.Close()

	var sets []model.DistanceSet
	for rows.Next() {
		var ds model.DistanceSet
		if err := rows.Scan(&ds.LocationID, &ds.Category, &ds.Distances, &ds.NearestM); err != nil {
			return nil, eris.Wrap(err, "postgres: scan distance set")
		}
		sets = append(sets, ds)
	}
	return sets, eris.Wrap(rows.Err(), "postgres: list distance sets iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, label string, categories []string) (*model.ScoreRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	if categories == nil {
		categories = []string{}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO score_runs (id, label, status, categories, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, label, string(model.RunStatusRunning), categories, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.ScoreRun{
		ID:         id,
		Label:      label,
		Status:     model.RunStatusRunning,
		Categories: categories,
		StartedAt:  now,
	}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, scored, failed int64, runErr *string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE score_runs SET status = $1, scored = $2, failed = $3, error = $4, finished_at = $5 WHERE id = $6`,
		string(status), scored, failed, runErr, now, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.ScoreRun, error) {
	var r model.ScoreRun
	err := s.pool.QueryRow(ctx,
		`SELECT id, label, status, categories, started_at, finished_at, scored, failed, error
		 FROM score_runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Label, &r.Status, &r.Categories,
		&r.StartedAt, &r.FinishedAt, &r.Scored, &r.Failed, &r.Error)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return &r, nil
}

// LatestCompletedRun returns the most recently finished completed run,
// or nil when no run has completed yet.
func (s *PostgresStore) LatestCompletedRun(ctx context.Context) (*model.ScoreRun, error) {
	var r model.ScoreRun
	err := s.pool.QueryRow(ctx,
		`SELECT id, label, status, categories, started_at, finished_at, scored, failed, error
		 FROM score_runs WHERE status = $1 ORDER BY finished_at DESC LIMIT 1`,
		string(model.RunStatusCompleted),
	).Scan(&r.ID, &r.Label, &r.Status, &r.Categories,
		&r.StartedAt, &r.FinishedAt, &r.Scored, &r.Failed, &r.Error)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest completed run")
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.ScoreRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, label, status, categories, started_at, finished_at, scored, failed, error
		 FROM score_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.ScoreRun
	for rows.Next() {
		var r model.ScoreRun
		if err := rows.Scan(&r.ID, &r.Label, &r.Status, &r.Categories,
			&r.StartedAt, &r.FinishedAt, &r.Scored, &r.Failed, &r.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

var scoreColumns = []string{
	"run_id", "location_id", "category", "threshold_m", "closest_m",
	"count_within", "hard_score", "soft_score", "scored_at",
}

// SaveScores bulk-inserts scores with COPY. Run IDs are fresh per run,
// so rows cannot conflict with existing ones.
func (s *PostgresStore) SaveScores(ctx context.Context, scores []model.LocationScore) (int64, error) {
	rows := make([][]any, 0, len(scores))
	for _, sc := range scores {
		rows = append(rows, []any{
			sc.RunID, sc.LocationID, sc.Category, sc.ThresholdM, sc.ClosestM,
			sc.CountWithin, sc.HardScore, sc.SoftScore, sc.ScoredAt,
		})
	}
	n, err := db.CopyFrom(ctx, s.pool, "location_scores", scoreColumns, rows)
	return n, eris.Wrap(err, "postgres: save scores")
}

func (s *PostgresStore) ScoresForLocation(ctx context.Context, runID, locationID string) ([]model.LocationScore, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, location_id, category, threshold_m, closest_m, count_within, hard_score, soft_score, scored_at
		 FROM location_scores WHERE run_id = $1 AND location_id = $2 ORDER BY category`,
		runID, locationID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: scores for location %s", locationID)
	}
	defer rows.Close()

	var scores []model.LocationScore
	for rows.Next() {
		var sc model.LocationScore
		if err := rows.Scan(&sc.RunID, &sc.LocationID, &sc.Category, &sc.ThresholdM,
			&sc.ClosestM, &sc.CountWithin, &sc.HardScore, &sc.SoftScore, &sc.ScoredAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan score")
		}
		scores = append(scores, sc)
	}
	return scores, eris.Wrap(rows.Err(), "postgres: scores for location iterate")
}

func (s *PostgresStore) AreaScoreRows(ctx context.Context, q AreaQuery) ([]model.AreaScoreRow, error) {
	levelCol, weightCol, metricCol, err := areaQueryColumns(q)
	if err != nil {
		return nil, err
	}

	// Column names come from the allowlists in store.go, not from input.
	query := fmt.Sprintf(
		`SELECT l.%s, s.%s, l.%s::float8 FROM location_scores s
		 JOIN locations l ON l.id = s.location_id
		 WHERE s.run_id = $1 AND s.category = $2 AND l.%s IS NOT NULL`,
		levelCol, metricCol, weightCol, levelCol,
	)

	rows, err := s.pool.Query(ctx, query, q.RunID, q.Category)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: area score rows")
	}
	defer rows.Close()

	var out []model.AreaScoreRow
	for rows.Next() {
		var r model.AreaScoreRow
		if err := rows.Scan(&r.AreaCode, &r.Score, &r.Weight); err != nil {
			return nil, eris.Wrap(err, "postgres: scan area score row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: area score rows iterate")
}

func (s *PostgresStore) CountLocations(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM locations`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count locations")
}

func (s *PostgresStore) CountDistanceSets(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT category, count(*) FROM distance_sets GROUP BY category`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count distance sets")
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var category string
		var n int64
		if err := rows.Scan(&category, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan distance set count")
		}
		counts[category] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count distance sets iterate")
}

// CountScores counts scores for one run, or all scores when runID is empty.
func (s *PostgresStore) CountScores(ctx context.Context, runID string) (int64, error) {
	query := `SELECT count(*) FROM location_scores`
	args := []any{}
	if runID != "" {
		query += ` WHERE run_id = $1`
		args = append(args, runID)
	}
	var n int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&n)
	return n, eris.Wrap(err, "postgres: count scores")
}

func (s *PostgresStore) RunCountsByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM score_runs GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: run counts")
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run count")
		}
		counts[status] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: run counts iterate")
}
