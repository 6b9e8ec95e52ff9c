// Package pipeline holds the deterministic, side-effect-free transforms
// from a validated input record to the feature sets the models consume:
// the canonical base vector, the CAMP pillar aggregates, the derived
// temporal scalars, and categorical encodings.
package pipeline

import (
	"fmt"

	"github.com/mchmarny/vcpulse/pkg/schema"
)

// Features bundles every pipeline output for one record. Built once per
// request and read-only afterwards.
type Features struct {
	Base     []float64
	Pillars  PillarScores
	Temporal TemporalScores

	// Defaulted counts the registry features the record did not carry,
	// resolved from their declared defaults instead.
	Defaulted int

	reg *schema.Registry
}

// Build runs the full pipeline over a validated record. Missing fields
// resolve to the registry's documented per-feature defaults, not zero-fill.
func Build(reg *schema.Registry, enc *Encodings, rec schema.Record) (*Features, error) {
	base, err := BaseVector(reg, enc, rec)
	if err != nil {
		return nil, err
	}

	defaulted := 0
	for _, spec := range reg.Ordered() {
		if _, ok := rec[spec.Name]; !ok {
			defaulted++
		}
	}

	return &Features{
		Base:      base,
		Pillars:   Pillars(reg, rec),
		Temporal:  Temporal(reg, rec),
		Defaulted: defaulted,
		reg:       reg,
	}, nil
}

// DefaultedShare returns the fraction of registry features that were
// resolved from defaults rather than the input record.
func (f *Features) DefaultedShare() float64 {
	if f.reg.Len() == 0 {
		return 0
	}
	return float64(f.Defaulted) / float64(f.reg.Len())
}

// BaseVector places the record's fields into canonical registry order.
// Numbers pass through raw, booleans become 0/1, and category values are
// mapped through the versioned encoding tables.
func BaseVector(reg *schema.Registry, enc *Encodings, rec schema.Record) ([]float64, error) {
	out := make([]float64, reg.Len())
	for _, spec := range reg.Ordered() {
		value, ok := rec[spec.Name]
		if !ok {
			value = spec.Default
		}

		switch spec.Type {
		case schema.TypeNumber:
			f, ok := asFloat(value)
			if !ok {
				return nil, fmt.Errorf("feature %s: default is not numeric", spec.Name)
			}
			out[spec.Position] = f
		case schema.TypeBoolean:
			if b, _ := value.(bool); b {
				out[spec.Position] = 1
			}
		case schema.TypeCategory:
			s, _ := value.(string)
			code, err := enc.Code(spec.Name, s)
			if err != nil {
				return nil, fmt.Errorf("feature %s: %w", spec.Name, err)
			}
			out[spec.Position] = code
		}
	}
	return out, nil
}

// Baseline returns the value at a canonical position by feature name.
func (f *Features) Baseline(name string) (float64, error) {
	spec, err := f.reg.Get(name)
	if err != nil {
		return 0, err
	}
	return f.Base[spec.Position], nil
}

// Pillar returns one CAMP aggregate.
func (f *Features) Pillar(p schema.Pillar) float64 {
	return f.Pillars.Get(p)
}

// DerivedVector returns the pillar and temporal scores in canonical order
// (capital, advantage, market, people, growth, efficiency, velocity). This
// is the vector archetype centroids are defined over.
func (f *Features) DerivedVector() []float64 {
	return []float64{
		f.Pillars.Capital,
		f.Pillars.Advantage,
		f.Pillars.Market,
		f.Pillars.People,
		f.Temporal.GrowthMomentum,
		f.Temporal.EfficiencyTrend,
		f.Temporal.StageVelocity,
	}
}
