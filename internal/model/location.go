package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// SearchRadiusM is the network-distance search radius (metres) the
// upstream engine scans per destination category. Distances inside a
// DistanceSet never exceed it.
const SearchRadiusM = 3200.0

// AreaLevel identifies a geographic aggregation grain, smallest to
// largest.
type AreaLevel string

const (
	AreaLevelMB     AreaLevel = "mb"
	AreaLevelSA1    AreaLevel = "sa1"
	AreaLevelSA2    AreaLevel = "sa2"
	AreaLevelSA3    AreaLevel = "sa3"
	AreaLevelSA4    AreaLevel = "sa4"
	AreaLevelSuburb AreaLevel = "suburb"
	AreaLevelLGA    AreaLevel = "lga"
	AreaLevelCity   AreaLevel = "city"
)

// AreaLevels returns all levels in ascending size order.
func AreaLevels() []AreaLevel {
	return []AreaLevel{
		AreaLevelMB, AreaLevelSA1, AreaLevelSA2, AreaLevelSA3,
		AreaLevelSA4, AreaLevelSuburb, AreaLevelLGA, AreaLevelCity,
	}
}

// ParseAreaLevel converts a user-supplied level name.
func ParseAreaLevel(s string) (AreaLevel, error) {
	level := AreaLevel(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AreaLevels() {
		if level == known {
			return level, nil
		}
	}
	return "", eris.Errorf("model: unknown area level %q (valid: mb, sa1, sa2, sa3, sa4, suburb, lga, city)", s)
}

// WeightKind selects the weighting variable for area rollups.
type WeightKind string

const (
	WeightDwellings WeightKind = "dwellings"
	WeightPersons   WeightKind = "persons"
)

// ParseWeightKind converts a user-supplied weight name.
func ParseWeightKind(s string) (WeightKind, error) {
	switch WeightKind(strings.ToLower(strings.TrimSpace(s))) {
	case WeightDwellings:
		return WeightDwellings, nil
	case WeightPersons:
		return WeightPersons, nil
	}
	return "", eris.Errorf("model: unknown weight kind %q (valid: dwellings, persons)", s)
}

// Location is one residential analysis point with its area membership
// and rollup weights. Area codes are nil where the point falls outside
// the classification.
type Location struct {
	ID        string  `json:"id"`
	MBCode    *string `json:"mb_code,omitempty"`
	SA1Code   *string `json:"sa1_code,omitempty"`
	SA2Code   *string `json:"sa2_code,omitempty"`
	SA3Code   *string `json:"sa3_code,omitempty"`
	SA4Code   *string `json:"sa4_code,omitempty"`
	Suburb    *string `json:"suburb,omitempty"`
	LGA       *string `json:"lga,omitempty"`
	City      *string `json:"city,omitempty"`
	Dwellings int64   `json:"dwellings"`
	Persons   int64   `json:"persons"`
}

// AreaCode returns the location's code at the given level, nil when
// unclassified.
func (l *Location) AreaCode(level AreaLevel) *string {
	switch level {
	case AreaLevelMB:
		return l.MBCode
	case AreaLevelSA1:
		return l.SA1Code
	case AreaLevelSA2:
		return l.SA2Code
	case AreaLevelSA3:
		return l.SA3Code
	case AreaLevelSA4:
		return l.SA4Code
	case AreaLevelSuburb:
		return l.Suburb
	case AreaLevelLGA:
		return l.LGA
	case AreaLevelCity:
		return l.City
	}
	return nil
}

// Weight returns the location's rollup weight for the given kind.
func (l *Location) Weight(kind WeightKind) float64 {
	if kind == WeightPersons {
		return float64(l.Persons)
	}
	return float64(l.Dwellings)
}
