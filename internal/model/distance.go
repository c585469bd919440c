package model

import "github.com/walkshed/access-cli/internal/score"

// DistanceSet holds the pre-computed network distances from one
// location to every instance of one destination category found within
// the search radius. NearestM is populated by the upstream engine only
// when nothing was found inside the radius; it records the single
// nearest instance beyond it.
type DistanceSet struct {
	LocationID string    `json:"location_id"`
	Category   string    `json:"category"`
	Distances  []float64 `json:"distances"`
	NearestM   *float64  `json:"nearest_m,omitempty"`
}

// EffectiveClosest returns the distance to the nearest instance:
// the minimum of Distances when any were in radius, otherwise the
// beyond-radius NearestM, otherwise nil (no reachable destination).
func (d *DistanceSet) EffectiveClosest() *float64 {
	if c := score.Closest(d.Distances); c != nil {
		return c
	}
	if d.NearestM != nil {
		v := *d.NearestM
		return &v
	}
	return nil
}
