package config

import (
	"fmt"
	"math"

	"github.com/mchmarny/vcpulse/pkg/model"
	"gopkg.in/yaml.v3"
)

// Weights is the configured base weight table over model categories.
// Weights apply to categories, never to individual models; disabling a
// category redistributes its weight instead of silently scaling scores.
type Weights struct {
	Version    string                     `yaml:"version"`
	Categories map[model.Category]float64 `yaml:"categories"`
	Disabled   []model.Category           `yaml:"disabled"`
}

// ParseWeights reads and validates a category weight table.
func ParseWeights(b []byte) (*Weights, error) {
	var w Weights
	if err := yaml.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("parsing weights: %w", err)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// Validate checks that every category is known, every weight is positive,
// and the table sums to 1.0 within tolerance.
func (w *Weights) Validate() error {
	if w.Version == "" {
		return fmt.Errorf("weights have no version")
	}
	if len(w.Categories) == 0 {
		return fmt.Errorf("weight table is empty")
	}

	var sum float64
	for cat, weight := range w.Categories {
		if !knownCategory(cat) {
			return fmt.Errorf("unknown weight category: %s", cat)
		}
		if weight <= 0 {
			return fmt.Errorf("category %s: weight %v must be positive", cat, weight)
		}
		sum += weight
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("category weights sum to %v, want 1.0", sum)
	}

	for _, cat := range w.Disabled {
		if _, ok := w.Categories[cat]; !ok {
			return fmt.Errorf("disabled category %s not in weight table", cat)
		}
	}
	return nil
}

// IsDisabled reports whether a category is turned off by configuration.
func (w *Weights) IsDisabled(cat model.Category) bool {
	for _, d := range w.Disabled {
		if d == cat {
			return true
		}
	}
	return false
}

func knownCategory(cat model.Category) bool {
	for _, c := range model.Categories {
		if c == cat {
			return true
		}
	}
	return false
}
