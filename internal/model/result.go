package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ScoreMetric selects which score column a rollup aggregates.
type ScoreMetric string

const (
	MetricSoft ScoreMetric = "soft"
	MetricHard ScoreMetric = "hard"
)

// ParseScoreMetric normalizes a user-supplied metric name.
func ParseScoreMetric(s string) (ScoreMetric, error) {
	switch ScoreMetric(strings.ToLower(strings.TrimSpace(s))) {
	case MetricSoft:
		return MetricSoft, nil
	case MetricHard:
		return MetricHard, nil
	default:
		return "", eris.Errorf("model: unknown score metric %q (want soft or hard)", s)
	}
}

// LocationScore is the scored outcome for one location and category
// under one run. Nil score fields mean the location had no measured
// distance for the category, not a score of zero.
type LocationScore struct {
	RunID       string    `json:"run_id"`
	LocationID  string    `json:"location_id"`
	Category    string    `json:"category"`
	ThresholdM  float64   `json:"threshold_m"`
	ClosestM    *float64  `json:"closest_m,omitempty"`
	CountWithin int64     `json:"count_within"`
	HardScore   *float64  `json:"hard_score,omitempty"`
	SoftScore   *float64  `json:"soft_score,omitempty"`
	ScoredAt    time.Time `json:"scored_at"`
}

// AreaScoreRow is one location's contribution to an area rollup:
// its area code at the requested level, its score under the requested
// metric (nil when unscored), and its rollup weight.
type AreaScoreRow struct {
	AreaCode string   `json:"area_code"`
	Score    *float64 `json:"score,omitempty"`
	Weight   float64  `json:"weight"`
}

// AreaScore is one area's weighted rollup. MeanScore is nil when no
// location in the area carried a score.
type AreaScore struct {
	AreaCode    string   `json:"area_code"`
	Locations   int64    `json:"locations"`
	Scored      int64    `json:"scored"`
	TotalWeight float64  `json:"total_weight"`
	MeanScore   *float64 `json:"mean_score,omitempty"`
}
