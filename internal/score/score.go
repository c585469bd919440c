package score

import (
	"math"

	"github.com/rotisserie/eris"
)

var (
	// ErrInvalidThreshold reports a threshold at or below zero.
	ErrInvalidThreshold = eris.New("score: threshold must be positive")
	// ErrNegativeDistance reports a negative distance value.
	ErrNegativeDistance = eris.New("score: distance must not be negative")
)

// steepness controls how sharply the soft score decays around the
// threshold. Fixed by the source methodology (Higgs et al. 2019).
const steepness = 5.0

// expFloor is the exponent below which the soft score is exactly 0
// instead of evaluating the exponential.
const expFloor = -100.0

// Closest returns the minimum distance in the list, or nil when the
// list is empty. Having no reachable destination is not an error; it
// just has no closest distance.
func Closest(distances []float64) *float64 {
	if len(distances) == 0 {
		return nil
	}
	min := distances[0]
	for _, d := range distances[1:] {
		if d < min {
			min = d
		}
	}
	return &min
}

// CountWithin returns how many distances are strictly less than the
// threshold. A destination exactly at the threshold does not count.
// An empty list counts zero; it is not an error.
func CountWithin(distances []float64, threshold float64) (int, error) {
	if threshold <= 0 {
		return 0, eris.Wrapf(ErrInvalidThreshold, "got %v", threshold)
	}
	var n int
	for _, d := range distances {
		if d < threshold {
			n++
		}
	}
	return n, nil
}

// HardThreshold returns 1 when the distance is strictly under the
// threshold, else 0. A nil distance yields a nil score: an unmeasured
// location is unknown, not inaccessible.
func HardThreshold(distance *float64, threshold float64) (*float64, error) {
	if threshold <= 0 {
		return nil, eris.Wrapf(ErrInvalidThreshold, "got %v", threshold)
	}
	if distance == nil {
		return nil, nil
	}
	s := 0.0
	if *distance < threshold {
		s = 1.0
	}
	return &s, nil
}

// SoftThreshold returns a logistic decay score in (0, 1) centered at
// the threshold:
//
//	score = 1 - 1/(1 + exp(-5*(d-t)/t))
//
// Exactly 0.5 at d == t, toward 1 as d approaches 0, toward 0 as d
// grows. A nil distance yields a nil score. A negative distance is an
// upstream data fault and fails with ErrNegativeDistance.
func SoftThreshold(distance *float64, threshold float64) (*float64, error) {
	if threshold <= 0 {
		return nil, eris.Wrapf(ErrInvalidThreshold, "got %v", threshold)
	}
	if distance == nil {
		return nil, nil
	}
	d := *distance
	if d < 0 {
		return nil, eris.Wrapf(ErrNegativeDistance, "got %v", d)
	}
	exponent := -steepness * (d - threshold) / threshold
	s := 0.0
	if exponent >= expFloor {
		s = 1 - 1/(1+math.Exp(exponent))
	}
	// exponent < expFloor: far enough past the threshold that the
	// score is exactly 0.
	return &s, nil
}
