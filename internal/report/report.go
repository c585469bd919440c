// Package report turns stored location scores into area rollup
// reports and renders them as tables, CSV, or XLSX workbooks.
package report

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/walkshed/access-cli/internal/aggregate"
	"github.com/walkshed/access-cli/internal/model"
	"github.com/walkshed/access-cli/internal/store"
)

// ErrNoCompletedRun is returned when a report is requested before any
// scoring run has completed. Callers match it with eris.Is.
var ErrNoCompletedRun = eris.New("report: no completed scoring run")

// Report is a computed area rollup for one run, category, and grain.
type Report struct {
	RunID       string            `json:"run_id"`
	Category    string            `json:"category"`
	Level       model.AreaLevel   `json:"level"`
	Weight      model.WeightKind  `json:"weight"`
	Metric      model.ScoreMetric `json:"metric"`
	Areas       []model.AreaScore `json:"areas"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Builder computes rollup reports from stored scores.
type Builder struct {
	store store.Store
	cache *Cache
}

// NewBuilder creates a report builder. A nil cache disables caching.
func NewBuilder(st store.Store, cache *Cache) *Builder {
	return &Builder{store: st, cache: cache}
}

// Build computes the rollup for the given query. An empty RunID means
// the latest completed run. Completed runs are immutable, so cached
// reports never go stale; the cache only bounds memory.
func (b *Builder) Build(ctx context.Context, q store.AreaQuery) (*Report, error) {
	if q.Category == "" {
		return nil, eris.New("report: category is required")
	}

	if q.RunID == "" {
		latest, err := b.store.LatestCompletedRun(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "report: resolve latest run")
		}
		if latest == nil {
			return nil, ErrNoCompletedRun
		}
		q.RunID = latest.ID
	}

	if b.cache != nil {
		if rep := b.cache.Get(q); rep != nil {
			return rep, nil
		}
	}

	rows, err := b.store.AreaScoreRows(ctx, q)
	if err != nil {
		return nil, eris.Wrapf(err, "report: area rows for run %s", q.RunID)
	}

	areas, err := aggregate.Rollup(rows)
	if err != nil {
		return nil, eris.Wrapf(err, "report: rollup for run %s", q.RunID)
	}

	rep := &Report{
		RunID:       q.RunID,
		Category:    q.Category,
		Level:       q.Level,
		Weight:      q.Weight,
		Metric:      q.Metric,
		Areas:       areas,
		GeneratedAt: time.Now().UTC(),
	}

	if b.cache != nil {
		b.cache.Put(q, rep)
	}
	return rep, nil
}
