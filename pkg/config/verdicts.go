package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Thresholds are the probability cut-points for one stage/sector slice.
// They must descend strictly: strong_pass > pass > conditional_pass > fail.
type Thresholds struct {
	StrongPass      float64 `yaml:"strong_pass"`
	Pass            float64 `yaml:"pass"`
	ConditionalPass float64 `yaml:"conditional_pass"`
	Fail            float64 `yaml:"fail"`
}

// Validate checks ordering and range.
func (t Thresholds) Validate() error {
	vals := []float64{t.StrongPass, t.Pass, t.ConditionalPass, t.Fail}
	prev := 1.0
	for _, v := range vals {
		if v <= 0 || v >= 1 {
			return fmt.Errorf("threshold %v outside (0,1)", v)
		}
		if v >= prev {
			return fmt.Errorf("thresholds must descend strictly, got %v >= %v", v, prev)
		}
		prev = v
	}
	return nil
}

// VerdictOverride narrows the default thresholds for a funding stage, a
// sector, or a specific (stage, sector) pair.
type VerdictOverride struct {
	Stage      string     `yaml:"stage,omitempty"`
	Sector     string     `yaml:"sector,omitempty"`
	Thresholds Thresholds `yaml:"thresholds"`
}

// VerdictRules maps final probabilities to discrete verdicts with
// stage/sector-aware thresholds instead of a single global cutoff.
type VerdictRules struct {
	Version   string            `yaml:"version"`
	Default   Thresholds        `yaml:"default"`
	Overrides []VerdictOverride `yaml:"overrides"`
}

// ParseVerdicts reads and validates the verdict threshold table.
func ParseVerdicts(b []byte) (*VerdictRules, error) {
	var r VerdictRules
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("parsing verdicts: %w", err)
	}
	if r.Version == "" {
		return nil, fmt.Errorf("verdicts have no version")
	}
	if err := r.Default.Validate(); err != nil {
		return nil, fmt.Errorf("default thresholds: %w", err)
	}
	for i, o := range r.Overrides {
		if o.Stage == "" && o.Sector == "" {
			return nil, fmt.Errorf("override %d names neither stage nor sector", i)
		}
		if err := o.Thresholds.Validate(); err != nil {
			return nil, fmt.Errorf("override %d: %w", i, err)
		}
	}
	return &r, nil
}

// For returns the thresholds for a (stage, sector) pair, preferring the
// most specific override: stage+sector, then stage, then sector, then the
// default table.
func (r *VerdictRules) For(stage, sector string) Thresholds {
	best := r.Default
	bestRank := 0
	for _, o := range r.Overrides {
		if o.Stage != "" && o.Stage != stage {
			continue
		}
		if o.Sector != "" && o.Sector != sector {
			continue
		}
		rank := 0
		if o.Stage != "" {
			rank += 2
		}
		if o.Sector != "" {
			rank++
		}
		if rank > bestRank {
			best = o.Thresholds
			bestRank = rank
		}
	}
	return best
}
