package schema

import (
	"errors"
	"fmt"
)

// FeatureType is the declared value type of a canonical feature.
type FeatureType string

const (
	TypeNumber   FeatureType = "number"
	TypeCategory FeatureType = "category"
	TypeBoolean  FeatureType = "boolean"
)

// Pillar identifies one of the CAMP scoring pillars.
type Pillar string

const (
	PillarCapital   Pillar = "capital"
	PillarAdvantage Pillar = "advantage"
	PillarMarket    Pillar = "market"
	PillarPeople    Pillar = "people"
)

// Pillars lists the CAMP pillars in canonical order.
var Pillars = []Pillar{PillarCapital, PillarAdvantage, PillarMarket, PillarPeople}

// Category classifies a feature within the registry. Product features are a
// registry category of their own but contribute to the advantage and market
// pillars through their declared pillar assignment.
type Category string

const (
	CategoryCapital   Category = "capital"
	CategoryAdvantage Category = "advantage"
	CategoryMarket    Category = "market"
	CategoryPeople    Category = "people"
	CategoryProduct   Category = "product"
)

// Scale selects how a numeric feature is normalized to [0,1] before it
// enters a pillar aggregate. Inverse scales are for lower-is-better metrics
// such as burn multiple or churn.
type Scale string

const (
	ScaleLinear    Scale = "linear"
	ScaleLog       Scale = "log"
	ScaleInvLinear Scale = "inverse_linear"
	ScaleInvLog    Scale = "inverse_log"
)

// RangePolicy decides what happens to a numeric value outside the declared
// domain: clamp to the nearest bound, or reject the whole field.
type RangePolicy string

const (
	PolicyClamp  RangePolicy = "clamp"
	PolicyReject RangePolicy = "reject"
)

// FeatureSpec is one entry of the canonical feature schema. Specs are
// immutable once the registry is built; position is the feature's index in
// the canonical vector order.
type FeatureSpec struct {
	Name         string      `yaml:"name" json:"name"`
	Position     int         `yaml:"position" json:"position"`
	Type         FeatureType `yaml:"type" json:"type"`
	Category     Category    `yaml:"category" json:"category"`
	Min          *float64    `yaml:"min,omitempty" json:"min,omitempty"`
	Max          *float64    `yaml:"max,omitempty" json:"max,omitempty"`
	Enum         []string    `yaml:"enum,omitempty" json:"enum,omitempty"`
	Policy       RangePolicy `yaml:"policy,omitempty" json:"policy,omitempty"`
	Default      any         `yaml:"default" json:"default"`
	Scale        Scale       `yaml:"scale,omitempty" json:"scale,omitempty"`
	NormMax      float64     `yaml:"norm_max,omitempty" json:"norm_max,omitempty"`
	Pillar       Pillar      `yaml:"pillar,omitempty" json:"pillar,omitempty"`
	PillarWeight float64     `yaml:"pillar_weight,omitempty" json:"pillar_weight,omitempty"`
}

var (
	errNoFeatures     = errors.New("registry has no features")
	errUnknownFeature = errors.New("unknown feature")
)

// Registry is the canonical, ordered feature schema. Built once at startup
// and read-only afterwards.
type Registry struct {
	Version  string
	features []FeatureSpec
	byName   map[string]int
}

// NewRegistry validates the spec list and builds a registry. Positions must
// be unique and contiguous from zero; names must be unique.
func NewRegistry(version string, specs []FeatureSpec) (*Registry, error) {
	if len(specs) == 0 {
		return nil, errNoFeatures
	}

	ordered := make([]FeatureSpec, len(specs))
	seen := make([]bool, len(specs))
	byName := make(map[string]int, len(specs))

	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("feature at position %d has no name", s.Position)
		}
		if s.Position < 0 || s.Position >= len(specs) {
			return nil, fmt.Errorf("feature %s: position %d out of range [0,%d)", s.Name, s.Position, len(specs))
		}
		if seen[s.Position] {
			return nil, fmt.Errorf("feature %s: duplicate position %d", s.Name, s.Position)
		}
		if _, ok := byName[s.Name]; ok {
			return nil, fmt.Errorf("duplicate feature name: %s", s.Name)
		}
		if err := validateSpec(s); err != nil {
			return nil, fmt.Errorf("feature %s: %w", s.Name, err)
		}
		seen[s.Position] = true
		ordered[s.Position] = s
		byName[s.Name] = s.Position
	}

	return &Registry{
		Version:  version,
		features: ordered,
		byName:   byName,
	}, nil
}

func validateSpec(s FeatureSpec) error {
	switch s.Type {
	case TypeNumber:
		if s.Min != nil && s.Max != nil && *s.Min > *s.Max {
			return fmt.Errorf("min %v greater than max %v", *s.Min, *s.Max)
		}
		if s.Policy != "" && s.Policy != PolicyClamp && s.Policy != PolicyReject {
			return fmt.Errorf("invalid range policy: %s", s.Policy)
		}
	case TypeCategory:
		if len(s.Enum) == 0 {
			return errors.New("category feature requires enum values")
		}
	case TypeBoolean:
		// no domain
	default:
		return fmt.Errorf("invalid feature type: %s", s.Type)
	}

	switch s.Category {
	case CategoryCapital, CategoryAdvantage, CategoryMarket, CategoryPeople, CategoryProduct:
	default:
		return fmt.Errorf("invalid feature category: %s", s.Category)
	}

	return nil
}

// Get returns the spec for a feature name.
func (r *Registry) Get(name string) (FeatureSpec, error) {
	pos, ok := r.byName[name]
	if !ok {
		return FeatureSpec{}, fmt.Errorf("%w: %s", errUnknownFeature, name)
	}
	return r.features[pos], nil
}

// Has reports whether a feature name is part of the schema.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Ordered returns the specs in canonical vector order. The returned slice
// is a copy; callers cannot mutate registry state through it.
func (r *Registry) Ordered() []FeatureSpec {
	out := make([]FeatureSpec, len(r.features))
	copy(out, r.features)
	return out
}

// Len returns the number of canonical features.
func (r *Registry) Len() int {
	return len(r.features)
}

// PillarMembers returns the specs assigned to a pillar, in canonical order.
func (r *Registry) PillarMembers(p Pillar) []FeatureSpec {
	var out []FeatureSpec
	for _, s := range r.features {
		if s.Pillar == p {
			out = append(out, s)
		}
	}
	return out
}
