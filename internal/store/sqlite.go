package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/walkshed/access-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS locations (
	id        TEXT PRIMARY KEY,
	mb_code   TEXT,
	sa1_code  TEXT,
	sa2_code  TEXT,
	sa3_code  TEXT,
	sa4_code  TEXT,
	suburb    TEXT,
	lga       TEXT,
	city      TEXT,
	dwellings INTEGER NOT NULL DEFAULT 0,
	persons   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS distance_sets (
	location_id TEXT NOT NULL REFERENCES locations(id),
	category    TEXT NOT NULL,
	distances   TEXT NOT NULL DEFAULT '[]',
	nearest_m   REAL,
	PRIMARY KEY (location_id, category)
);

CREATE TABLE IF NOT EXISTS score_runs (
	id          TEXT PRIMARY KEY,
	label       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'running',
	categories  TEXT NOT NULL DEFAULT '[]',
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME,
	scored      INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	error       TEXT
);

CREATE TABLE IF NOT EXISTS location_scores (
	run_id       TEXT NOT NULL REFERENCES score_runs(id),
	location_id  TEXT NOT NULL,
	category     TEXT NOT NULL,
	threshold_m  REAL NOT NULL,
	closest_m    REAL,
	count_within INTEGER NOT NULL DEFAULT 0,
	hard_score   REAL,
	soft_score   REAL,
	scored_at    DATETIME NOT NULL,
	PRIMARY KEY (run_id, location_id, category)
);

CREATE INDEX IF NOT EXISTS idx_distance_sets_category ON distance_sets(category, location_id);
CREATE INDEX IF NOT EXISTS idx_location_scores_run ON location_scores(run_id, category);
CREATE INDEX IF NOT EXISTS idx_score_runs_status ON score_runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertLocations(ctx context.Context, locs []model.Location) (int64, error) {
	if len(locs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	for _, l := range locs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO locations (id, mb_code, sa1_code, sa2_code, sa3_code, sa4_code, suburb, lga, city, dwellings, persons)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   mb_code = excluded.mb_code, sa1_code = excluded.sa1_code,
			   sa2_code = excluded.sa2_code, sa3_code = excluded.sa3_code,
			   sa4_code = excluded.sa4_code, suburb = excluded.suburb,
			   lga = excluded.lga, city = excluded.city,
			   dwellings = excluded.dwellings, persons = excluded.persons`,
			l.ID, l.MBCode, l.SA1Code, l.SA2Code, l.SA3Code, l.SA4Code,
			l.Suburb, l.LGA, l.City, l.Dwellings, l.Persons,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert location %s", l.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit locations")
	}
	return int64(len(locs)), nil
}

func (s *SQLiteStore) UpsertDistanceSets(ctx context.Context, sets []model.DistanceSet) (int64, error) {
	if len(sets) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	for _, ds := range sets {
		distances := ds.Distances
		if distances == nil {
			distances = []float64{}
		}
		distancesJSON, err := json.Marshal(distances)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal distances")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO distance_sets (location_id, category, distances, nearest_m) VALUES (?, ?, ?, ?)
			 ON CONFLICT(location_id, category) DO UPDATE SET
			   distances = excluded.distances, nearest_m = excluded.nearest_m`,
			ds.LocationID, ds.Category, string(distancesJSON), ds.NearestM,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert distance set %s/%s", ds.LocationID, ds.Category)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit distance sets")
	}
	return int64(len(sets)), nil
}

func (s *SQLiteStore) GetDistanceSet(ctx context.Context, locationID, category string) (*model.DistanceSet, error) {
	var ds model.DistanceSet
	var distancesJSON string
	var nearest sql.NullFloat64

	err := s.db.QueryRowContext(ctx,
		`SELECT location_id, category, distances, nearest_m FROM distance_sets
		 WHERE location_id = ? AND category = ?`,
		locationID, category,
	).Scan(&ds.LocationID, &ds.Category, &distancesJSON, &nearest)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "distance set %s/%s", locationID, category)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get distance set %s/%s", locationID, category)
	}

	if err := json.Unmarshal([]byte(distancesJSON), &ds.Distances); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal distances")
	}
	if nearest.Valid {
		nearestM := nearest.Float64
		ds.NearestM = &nearestM
	}
	return &ds, nil
}

func (s *SQLiteStore) ListDistanceSets(ctx context.Context, q ListQuery) ([]model.DistanceSet, error) {
	q, err := normalizeListQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT location_id, category, distances, nearest_m FROM distance_sets
		 WHERE category = ? AND location_id > ?
		 ORDER BY location_id LIMIT ?`,
		q.Category, q.AfterLocationID, q.Limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list distance sets")
	}
	defer rows.Close()

	var sets []model.DistanceSet
	for rows.Next() {
		var ds model.DistanceSet
		var distancesJSON string
		var nearest sql.NullFloat64

		if err := rows.Scan(&ds.LocationID, &ds.Category, &distancesJSON, &nearest); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan distance set")
		}
		if err := json.Unmarshal([]byte(distancesJSON), &ds.Distances); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal distances")
		}
		if nearest.Valid {
			nearestM := nearest.Float64
			ds.NearestM = &nearestM
		}
		sets = append(sets, ds)
	}
	return sets, eris.Wrap(rows.Err(), "sqlite: list distance sets iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, label string, categories []string) (*model.ScoreRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	if categories == nil {
		categories = []string{}
	}

	categoriesJSON, err := json.Marshal(categories)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal categories")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO score_runs (id, label, status, categories, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, label, string(model.RunStatusRunning), string(categoriesJSON), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.ScoreRun{
		ID:         id,
		Label:      label,
		Status:     model.RunStatusRunning,
		Categories: categories,
		StartedAt:  now,
	}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, scored, failed int64, runErr *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE score_runs SET status = ?, scored = ?, failed = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), scored, failed, runErr, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.ScoreRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, status, categories, started_at, finished_at, scored, failed, error
		 FROM score_runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

// LatestCompletedRun returns the most recently finished completed run,
// or nil when no run has completed yet.
func (s *SQLiteStore) LatestCompletedRun(ctx context.Context) (*model.ScoreRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, status, categories, started_at, finished_at, scored, failed, error
		 FROM score_runs WHERE status = ? ORDER BY finished_at DESC LIMIT 1`,
		string(model.RunStatusCompleted),
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest completed run")
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.ScoreRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, status, categories, started_at, finished_at, scored, failed, error
		 FROM score_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.ScoreRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveScores(ctx context.Context, scores []model.LocationScore) (int64, error) {
	if len(scores) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	for _, sc := range scores {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO location_scores (run_id, location_id, category, threshold_m, closest_m, count_within, hard_score, soft_score, scored_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sc.RunID, sc.LocationID, sc.Category, sc.ThresholdM, sc.ClosestM,
			sc.CountWithin, sc.HardScore, sc.SoftScore, sc.ScoredAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert score %s/%s", sc.LocationID, sc.Category)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit scores")
	}
	return int64(len(scores)), nil
}

func (s *SQLiteStore) ScoresForLocation(ctx context.Context, runID, locationID string) ([]model.LocationScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, location_id, category, threshold_m, closest_m, count_within, hard_score, soft_score, scored_at
		 FROM location_scores WHERE run_id = ? AND location_id = ? ORDER BY category`,
		runID, locationID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: scores for location %s", locationID)
	}
	defer rows.Close()

	var scores []model.LocationScore
	for rows.Next() {
		var sc model.LocationScore
		var closest, hard, soft sql.NullFloat64

		if err := rows.Scan(&sc.RunID, &sc.LocationID, &sc.Category, &sc.ThresholdM,
			&closest, &sc.CountWithin, &hard, &soft, &sc.ScoredAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		if closest.Valid {
			v := closest.Float64
			sc.ClosestM = &v
		}
		if hard.Valid {
			v := hard.Float64
			sc.HardScore = &v
		}
		if soft.Valid {
			v := soft.Float64
			sc.SoftScore = &v
		}
		scores = append(scores, sc)
	}
	return scores, eris.Wrap(rows.Err(), "sqlite: scores for location iterate")
}

func (s *SQLiteStore) AreaScoreRows(ctx context.Context, q AreaQuery) ([]model.AreaScoreRow, error) {
	levelCol, weightCol, metricCol, err := areaQueryColumns(q)
	if err != nil {
		return nil, err
	}

	// Column names come from the allowlists in store.go, not from input.
	query := fmt.Sprintf(
		`SELECT l.%s, s.%s, CAST(l.%s AS REAL) FROM location_scores s
		 JOIN locations l ON l.id = s.location_id
		 WHERE s.run_id = ? AND s.category = ? AND l.%s IS NOT NULL`,
		levelCol, metricCol, weightCol, levelCol,
	)

	rows, err := s.db.QueryContext(ctx, query, q.RunID, q.Category)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: area score rows")
	}
	defer rows.Close()

	var out []model.AreaScoreRow
	for rows.Next() {
		var r model.AreaScoreRow
		var score sql.NullFloat64

		if err := rows.Scan(&r.AreaCode, &score, &r.Weight); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan area score row")
		}
		if score.Valid {
			v := score.Float64
			r.Score = &v
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: area score rows iterate")
}

func (s *SQLiteStore) CountLocations(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM locations`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count locations")
}

func (s *SQLiteStore) CountDistanceSets(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, count(*) FROM distance_sets GROUP BY category`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count distance sets")
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var category string
		var n int64
		if err := rows.Scan(&category, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan distance set count")
		}
		counts[category] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count distance sets iterate")
}

// CountScores counts scores for one run, or all scores when runID is empty.
func (s *SQLiteStore) CountScores(ctx context.Context, runID string) (int64, error) {
	query := `SELECT count(*) FROM location_scores`
	args := []any{}
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	var n int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count scores")
}

func (s *SQLiteStore) RunCountsByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, count(*) FROM score_runs GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: run counts")
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run count")
		}
		counts[status] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: run counts iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.ScoreRun, error) {
	var r model.ScoreRun
	var categoriesJSON string
	var finishedAt sql.NullTime
	var runErr sql.NullString

	err := row.Scan(&r.ID, &r.Label, &r.Status, &categoriesJSON,
		&r.StartedAt, &finishedAt, &r.Scored, &r.Failed, &runErr)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(categoriesJSON), &r.Categories); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal categories")
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}
	if runErr.Valid {
		e := runErr.String
		r.Error = &e
	}
	return &r, nil
}
