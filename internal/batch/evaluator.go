// Package batch runs scoring passes over every stored distance set,
// producing one LocationScore row per location and category.
package batch

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/walkshed/access-cli/internal/indicator"
	"github.com/walkshed/access-cli/internal/model"
	"github.com/walkshed/access-cli/internal/resilience"
	"github.com/walkshed/access-cli/internal/score"
	"github.com/walkshed/access-cli/internal/store"
)

const (
	// defaultConcurrency is how many categories are scored in parallel.
	defaultConcurrency = 4

	// defaultChunkSize is how many distance sets are scored and written
	// per store round-trip.
	defaultChunkSize = 500
)

// Config controls a scoring run.
type Config struct {
	Concurrency int
	ChunkSize   int
	Retry       resilience.RetryConfig
	Circuit     resilience.CircuitBreakerConfig
}

// DefaultConfig returns settings suited to a local database.
func DefaultConfig() Config {
	return Config{
		Concurrency: defaultConcurrency,
		ChunkSize:   defaultChunkSize,
		Retry:       resilience.DefaultRetryConfig(),
		Circuit:     resilience.DefaultCircuitBreakerConfig(),
	}
}

// Evaluator scores stored distance sets against the indicator catalog
// and persists the results under a run.
type Evaluator struct {
	store   store.Store
	catalog indicator.Catalog
	cfg     Config
	breaker *resilience.CircuitBreaker
}

// New builds an evaluator. Zero config fields fall back to defaults.
func New(st store.Store, catalog indicator.Catalog, cfg Config) *Evaluator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	return &Evaluator{
		store:   st,
		catalog: catalog,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker(cfg.Circuit),
	}
}

// Run scores every distance set in the given categories and records the
// outcome as a ScoreRun. An empty categories slice means the whole
// catalog. Individual sets that cannot be scored are counted as failed
// without aborting the run; the run itself fails only when the store
// becomes unusable.
func (e *Evaluator) Run(ctx context.Context, label string, categories []string) (*model.ScoreRun, error) {
	defs, err := e.resolveCategories(categories)
	if err != nil {
		return nil, err
	}

	codes := make([]string, len(defs))
	for i, def := range defs {
		codes[i] = def.Code
	}

	run, err := e.store.CreateRun(ctx, label, codes)
	if err != nil {
		return nil, eris.Wrap(err, "batch: create run")
	}

	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("scoring run started",
		zap.Strings("categories", codes),
		zap.Int("concurrency", e.cfg.Concurrency),
		zap.Int("chunk_size", e.cfg.ChunkSize))

	var scored, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for _, def := range defs {
		g.Go(func() error {
			return e.scoreCategory(gctx, log, run.ID, def, &scored, &failed)
		})
	}

	waitErr := g.Wait()

	status := model.RunStatusCompleted
	var runErrMsg *string
	if waitErr != nil {
		status = model.RunStatusFailed
		msg := waitErr.Error()
		runErrMsg = &msg
	}

	if err := e.store.FinishRun(ctx, run.ID, status, scored.Load(), failed.Load(), runErrMsg); err != nil {
		log.Error("recording run completion failed", zap.Error(err))
		if waitErr == nil {
			return nil, eris.Wrapf(err, "batch: finish run %s", run.ID)
		}
	}

	log.Info("scoring run finished",
		zap.String("status", string(status)),
		zap.Int64("scored", scored.Load()),
		zap.Int64("failed", failed.Load()))

	if waitErr != nil {
		return nil, eris.Wrapf(waitErr, "batch: run %s aborted", run.ID)
	}
	return e.store.GetRun(ctx, run.ID)
}

// resolveCategories maps requested category codes to catalog
// definitions, or returns the whole catalog for an empty request.
func (e *Evaluator) resolveCategories(categories []string) ([]indicator.Definition, error) {
	if len(categories) == 0 {
		return e.catalog.Definitions(), nil
	}

	defs := make([]indicator.Definition, 0, len(categories))
	var unknown []string
	for _, code := range categories {
		def, ok := e.catalog.Lookup(code)
		if !ok {
			unknown = append(unknown, code)
			continue
		}
		defs = append(defs, def)
	}
	if len(unknown) > 0 {
		return nil, eris.Errorf("batch: unknown categories: %s", strings.Join(unknown, ", "))
	}
	return defs, nil
}

// scoreCategory pages through one category's distance sets in keyset
// order, scoring and persisting each chunk.
func (e *Evaluator) scoreCategory(ctx context.Context, log *zap.Logger, runID string, def indicator.Definition, scored, failed *atomic.Int64) error {
	after := ""
	for {
		sets, err := e.store.ListDistanceSets(ctx, store.ListQuery{
			Category:        def.Code,
			AfterLocationID: after,
			Limit:           e.cfg.ChunkSize,
		})
		if err != nil {
			return eris.Wrapf(err, "batch: list distance sets for %s", def.Code)
		}
		if len(sets) == 0 {
			return nil
		}

		now := time.Now().UTC()
		chunk := make([]model.LocationScore, 0, len(sets))
		for _, set := range sets {
			ls, err := ScoreSet(def, set, runID, now)
			if err != nil {
				failed.Add(1)
				log.Warn("skipping unscorable distance set",
					zap.String("location_id", set.LocationID),
					zap.String("category", set.Category),
					zap.Error(err))
				continue
			}
			chunk = append(chunk, ls)
		}

		if len(chunk) > 0 {
			if err := e.persistChunk(ctx, chunk); err != nil {
				if eris.Is(err, resilience.ErrCircuitOpen) || ctx.Err() != nil {
					return eris.Wrapf(err, "batch: persist scores for %s", def.Code)
				}
				// A failed chunk loses only its own scores.
				failed.Add(int64(len(chunk)))
				log.Error("chunk write failed",
					zap.String("category", def.Code),
					zap.Int("scores", len(chunk)),
					zap.Error(err))
			} else {
				scored.Add(int64(len(chunk)))
			}
		}

		if len(sets) < e.cfg.ChunkSize {
			return nil
		}
		after = sets[len(sets)-1].LocationID
	}
}

// persistChunk writes one chunk of scores through the retry and circuit
// breaker layers. SaveScores is transactional in both backends, so a
// retried chunk never half-applies.
func (e *Evaluator) persistChunk(ctx context.Context, chunk []model.LocationScore) error {
	return e.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, e.cfg.Retry, func(ctx context.Context) error {
			_, err := e.store.SaveScores(ctx, chunk)
			return err
		})
	})
}

// ScoreSet computes the persisted scoring row for one distance set
// against one indicator definition.
func ScoreSet(def indicator.Definition, set model.DistanceSet, runID string, now time.Time) (model.LocationScore, error) {
	if def.Code != set.Category {
		return model.LocationScore{}, eris.Errorf("batch: definition %s does not match distance set category %s", def.Code, set.Category)
	}

	count, err := score.CountWithin(set.Distances, def.ThresholdM)
	if err != nil {
		return model.LocationScore{}, eris.Wrapf(err, "batch: count within for %s/%s", set.LocationID, set.Category)
	}

	closest := set.EffectiveClosest()

	hard, err := score.HardThreshold(closest, def.ThresholdM)
	if err != nil {
		return model.LocationScore{}, eris.Wrapf(err, "batch: hard score for %s/%s", set.LocationID, set.Category)
	}
	soft, err := score.SoftThreshold(closest, def.ThresholdM)
	if err != nil {
		return model.LocationScore{}, eris.Wrapf(err, "batch: soft score for %s/%s", set.LocationID, set.Category)
	}

	return model.LocationScore{
		RunID:       runID,
		LocationID:  set.LocationID,
		Category:    set.Category,
		ThresholdM:  def.ThresholdM,
		ClosestM:    closest,
		CountWithin: int64(count),
		HardScore:   hard,
		SoftScore:   soft,
		ScoredAt:    now,
	}, nil
}
