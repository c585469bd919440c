package aggregate

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/walkshed/access-cli/internal/model"
)

// WeightedMean returns sum(value*weight)/sum(weight), or nil when the
// total weight is zero (an undefined mean, not an error).
func WeightedMean(values, weights []float64) (*float64, error) {
	if len(values) != len(weights) {
		return nil, eris.Errorf("aggregate: %d values against %d weights", len(values), len(weights))
	}
	var sum, total float64
	for i, v := range values {
		w := weights[i]
		if w < 0 {
			return nil, eris.Errorf("aggregate: negative weight %v at index %d", w, i)
		}
		sum += v * w
		total += w
	}
	if total == 0 {
		return nil, nil
	}
	m := sum / total
	return &m, nil
}

type accumulator struct {
	locations int64
	scored    int64
	weightSum float64
	scoreSum  float64
	scoredW   float64
}

// Rollup groups per-location rows by area code and computes each
// area's weighted mean score. A row without a score still counts
// toward the area's location total and TotalWeight, but contributes
// neither value nor weight to the mean: unknown is not zero. Output
// is sorted by area code.
func Rollup(rows []model.AreaScoreRow) ([]model.AreaScore, error) {
	accs := make(map[string]*accumulator)
	for i, row := range rows {
		if row.Weight < 0 {
			return nil, eris.Errorf("aggregate: negative weight %v for area %q (row %d)", row.Weight, row.AreaCode, i)
		}
		acc := accs[row.AreaCode]
		if acc == nil {
			acc = &accumulator{}
			accs[row.AreaCode] = acc
		}
		acc.locations++
		acc.weightSum += row.Weight
		if row.Score != nil {
			acc.scored++
			acc.scoreSum += *row.Score * row.Weight
			acc.scoredW += row.Weight
		}
	}

	out := make([]model.AreaScore, 0, len(accs))
	for code, acc := range accs {
		area := model.AreaScore{
			AreaCode:    code,
			Locations:   acc.locations,
			Scored:      acc.scored,
			TotalWeight: acc.weightSum,
		}
		if acc.scoredW > 0 {
			m := acc.scoreSum / acc.scoredW
			area.MeanScore = &m
		}
		out = append(out, area)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AreaCode < out[j].AreaCode })
	return out, nil
}
