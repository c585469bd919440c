package indicator

// defaultDefinitions is the built-in indicator set: common destination
// categories with recommended walkable-distance thresholds (metres)
// from the urban liveability literature.
func defaultDefinitions() []Definition {
	return []Definition{
		{Code: "pt_stop", Name: "Public transport stop", Group: "transport", ThresholdM: 400},
		{Code: "public_open_space", Name: "Public open space", Group: "open_space", ThresholdM: 400},
		{Code: "supermarket", Name: "Supermarket", Group: "food", ThresholdM: 800},
		{Code: "convenience_store", Name: "Convenience store", Group: "food", ThresholdM: 800},
		{Code: "fresh_food_market", Name: "Fresh food market", Group: "food", ThresholdM: 800},
		{Code: "primary_school", Name: "Primary school", Group: "education", ThresholdM: 800},
		{Code: "childcare", Name: "Childcare centre", Group: "education", ThresholdM: 800},
		{Code: "gp", Name: "General practitioner", Group: "health", ThresholdM: 1000},
		{Code: "pharmacy", Name: "Pharmacy", Group: "health", ThresholdM: 1000},
		{Code: "dentist", Name: "Dentist", Group: "health", ThresholdM: 1000},
		{Code: "community_centre", Name: "Community centre", Group: "community", ThresholdM: 1000},
		{Code: "library", Name: "Library", Group: "community", ThresholdM: 1000},
	}
}

// Default returns the built-in catalog.
func Default() Catalog {
	defs := defaultDefinitions()
	index := make(map[string]int, len(defs))
	for i, def := range defs {
		index[def.Code] = i
	}
	return Catalog{defs: defs, index: index}
}
