// Package monitoring gathers store health metrics and raises webhook
// alerts when scoring runs misbehave.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/walkshed/access-cli/internal/model"
	"github.com/walkshed/access-cli/internal/store"
)

// defaultLookbackRuns bounds how many recent runs feed the failure
// rate when the config leaves it unset.
const defaultLookbackRuns = 20

// Snapshot holds a point-in-time view of store contents and run health.
type Snapshot struct {
	Locations    int64            `json:"locations"`
	DistanceSets map[string]int64 `json:"distance_sets"`
	RunsByStatus map[string]int64 `json:"runs_by_status"`

	// Outcomes among the most recent runs.
	RecentFinished int `json:"recent_finished"`
	RecentFailed   int `json:"recent_failed"`

	LatestRun       *model.ScoreRun `json:"latest_run,omitempty"`
	LatestRunScores int64           `json:"latest_run_scores"`

	LookbackRuns int       `json:"lookback_runs"`
	CollectedAt  time.Time `json:"collected_at"`
}

// FailureRate returns the failed fraction of recently finished runs.
func (s *Snapshot) FailureRate() float64 {
	if s.RecentFinished == 0 {
		return 0
	}
	return float64(s.RecentFailed) / float64(s.RecentFinished)
}

// TotalDistanceSets sums the per-category distance set counts.
func (s *Snapshot) TotalDistanceSets() int64 {
	var n int64
	for _, c := range s.DistanceSets {
		n += c
	}
	return n
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot, reading run outcomes over the given
// number of most recent runs.
func (c *Collector) Collect(ctx context.Context, lookbackRuns int) (*Snapshot, error) {
	if lookbackRuns <= 0 {
		lookbackRuns = defaultLookbackRuns
	}

	snap := &Snapshot{
		LookbackRuns: lookbackRuns,
		CollectedAt:  time.Now().UTC(),
	}

	locations, err := c.store.CountLocations(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count locations")
	}
	snap.Locations = locations

	sets, err := c.store.CountDistanceSets(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count distance sets")
	}
	snap.DistanceSets = sets

	byStatus, err := c.store.RunCountsByStatus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count runs by status")
	}
	snap.RunsByStatus = byStatus

	recent, err := c.store.ListRuns(ctx, lookbackRuns)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list recent runs")
	}
	for _, r := range recent {
		switch r.Status {
		case model.RunStatusCompleted:
			snap.RecentFinished++
		case model.RunStatusFailed:
			snap.RecentFinished++
			snap.RecentFailed++
		}
	}

	latest, err := c.store.LatestCompletedRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: latest completed run")
	}
	if latest != nil {
		snap.LatestRun = latest
		scores, err := c.store.CountScores(ctx, latest.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: count scores for run %s", latest.ID)
		}
		snap.LatestRunScores = scores
	}

	return snap, nil
}
