// Package indicator defines the destination categories and distance
// thresholds that accessibility scores are computed against.
package indicator

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/walkshed/access-cli/internal/model"
)

// Definition is one destination category with its walkable-distance
// policy threshold.
type Definition struct {
	Code       string  `yaml:"code" json:"code" validate:"required,lowercase"`
	Name       string  `yaml:"name" json:"name" validate:"required"`
	Group      string  `yaml:"group" json:"group" validate:"required,lowercase"`
	ThresholdM float64 `yaml:"threshold_m" json:"threshold_m" validate:"required,gt=0"`
}

// Catalog is an ordered, code-indexed set of indicator definitions.
// Definitions are immutable once the catalog is built.
type Catalog struct {
	defs  []Definition
	index map[string]int
}

var validate = validator.New()

// New builds a catalog, validating every definition. All problems are
// collected and reported in one error.
func New(defs []Definition) (Catalog, error) {
	if len(defs) == 0 {
		return Catalog{}, eris.New("indicator: catalog has no definitions")
	}

	var errs []string
	index := make(map[string]int, len(defs))
	for i, def := range defs {
		label := def.Code
		if label == "" {
			label = fmt.Sprintf("definition %d", i+1)
		}
		if err := validate.Struct(def); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", label, err))
			continue
		}
		if def.ThresholdM > model.SearchRadiusM {
			errs = append(errs, fmt.Sprintf("%s: threshold_m %v exceeds the %v m search radius", label, def.ThresholdM, model.SearchRadiusM))
			continue
		}
		if _, dup := index[def.Code]; dup {
			errs = append(errs, fmt.Sprintf("%s: duplicate code", label))
			continue
		}
		index[def.Code] = i
	}
	if len(errs) > 0 {
		return Catalog{}, eris.Errorf("indicator: catalog validation failed: %s", strings.Join(errs, "; "))
	}

	return Catalog{defs: append([]Definition(nil), defs...), index: index}, nil
}

// Load reads and validates a catalog from a YAML file.
func Load(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, eris.Wrapf(err, "indicator: read catalog %s", path)
	}

	// The YAML has a top-level "indicators" key.
	var wrapper struct {
		Indicators []Definition `yaml:"indicators"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Catalog{}, eris.Wrap(err, "indicator: parse catalog")
	}

	return New(wrapper.Indicators)
}

// Definitions returns the definitions in catalog order.
func (c Catalog) Definitions() []Definition {
	return append([]Definition(nil), c.defs...)
}

// Lookup returns the definition for a category code.
func (c Catalog) Lookup(code string) (Definition, bool) {
	i, ok := c.index[code]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Codes returns all category codes in catalog order.
func (c Catalog) Codes() []string {
	codes := make([]string, len(c.defs))
	for i, def := range c.defs {
		codes[i] = def.Code
	}
	return codes
}

// Len returns the number of definitions.
func (c Catalog) Len() int { return len(c.defs) }
