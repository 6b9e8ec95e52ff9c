// Package pattern classifies a record into a discrete startup archetype by
// nearest-centroid match over the derived feature vector, and yields either
// a specialized model prediction or a neutral abstention.
package pattern

import (
	"context"
	"fmt"
	"math"

	"github.com/mchmarny/vcpulse/pkg/model"
	"github.com/mchmarny/vcpulse/pkg/pipeline"
	"gopkg.in/yaml.v3"
)

// MatcherID is the id the pattern matcher reports in diagnostics.
const MatcherID = "pattern_matcher"

// DerivedDimension is the length of the vector archetype centroids are
// defined over: four pillar aggregates plus three temporal scalars.
const DerivedDimension = 7

// Archetype is one precomputed cluster profile. Index is its position in
// the library and breaks distance ties deterministically.
type Archetype struct {
	Name     string    `yaml:"name"`
	Index    int       `yaml:"-"`
	Centroid []float64 `yaml:"centroid"`
	ModelID  string    `yaml:"model_id"`
}

// Library is the fixed set of archetype profiles plus the abstention
// threshold. Loaded once at startup, read-only afterwards.
type Library struct {
	Version    string      `yaml:"version"`
	Threshold  float64     `yaml:"threshold"`
	Archetypes []Archetype `yaml:"archetypes"`
}

// ParseLibrary builds the archetype library from YAML and validates every
// centroid's shape and range.
func ParseLibrary(b []byte) (*Library, error) {
	var lib Library
	if err := yaml.Unmarshal(b, &lib); err != nil {
		return nil, fmt.Errorf("parsing archetype library: %w", err)
	}
	if lib.Version == "" {
		return nil, fmt.Errorf("archetype library has no version")
	}
	if lib.Threshold <= 0 || lib.Threshold > 1 {
		return nil, fmt.Errorf("archetype threshold %v outside (0,1]", lib.Threshold)
	}
	if len(lib.Archetypes) == 0 {
		return nil, fmt.Errorf("archetype library is empty")
	}

	seen := make(map[string]bool, len(lib.Archetypes))
	for i := range lib.Archetypes {
		a := &lib.Archetypes[i]
		a.Index = i
		if a.Name == "" {
			return nil, fmt.Errorf("archetype %d has no name", i)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("duplicate archetype name: %s", a.Name)
		}
		seen[a.Name] = true
		if len(a.Centroid) != DerivedDimension {
			return nil, fmt.Errorf("archetype %s: centroid has %d values, want %d", a.Name, len(a.Centroid), DerivedDimension)
		}
		for j, v := range a.Centroid {
			if v < 0 || v > 1 {
				return nil, fmt.Errorf("archetype %s: centroid[%d]=%v outside [0,1]", a.Name, j, v)
			}
		}
	}
	return &lib, nil
}

// Match is the archetype assignment for one record. Confidence is always
// in [0,1]; assignments below the library threshold abstain from the
// weighted ensemble but are still reported.
type Match struct {
	Archetype  string  `json:"matched_archetype" yaml:"matched_archetype"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Abstained  bool    `json:"abstained" yaml:"abstained"`
}

// Matcher pairs the archetype library with the specialized per-archetype
// models. It satisfies model.Predictor so the orchestrator treats it like
// any other sub-model.
type Matcher struct {
	lib    *Library
	models map[string]*model.Wrapper
}

// NewMatcher wires the library to its specialized wrappers. Every archetype
// that names a model must have one loaded.
func NewMatcher(lib *Library, wrappers map[string]*model.Wrapper) (*Matcher, error) {
	if lib == nil {
		return nil, fmt.Errorf("nil archetype library")
	}
	for _, a := range lib.Archetypes {
		if a.ModelID == "" {
			continue
		}
		if _, ok := wrappers[a.ModelID]; !ok {
			return nil, fmt.Errorf("archetype %s references missing model %s", a.Name, a.ModelID)
		}
	}
	return &Matcher{lib: lib, models: wrappers}, nil
}

// ID implements model.Predictor.
func (m *Matcher) ID() string {
	return MatcherID
}

// Category implements model.Predictor.
func (m *Matcher) Category() model.Category {
	return model.CategoryPattern
}

// Match assigns the nearest archetype. Computed once per request from the
// derived vector; equidistant centroids resolve to the lowest index.
func (m *Matcher) Match(feats *pipeline.Features) Match {
	vec := feats.DerivedVector()

	best := 0
	bestDist := math.Inf(1)
	for _, a := range m.lib.Archetypes {
		d := euclidean(vec, a.Centroid)
		if d < bestDist {
			bestDist = d
			best = a.Index
		}
	}

	conf := 1.0 / (1.0 + bestDist)
	return Match{
		Archetype:  m.lib.Archetypes[best].Name,
		Confidence: conf,
		Abstained:  conf < m.lib.Threshold,
	}
}

// Predict returns the specialized model's prediction for a confident
// match, or a neutral abstention. Abstentions and specialized-model
// failures both yield a degraded 0.5 record: reported in diagnostics,
// excluded from the weighted sum.
func (m *Matcher) Predict(ctx context.Context, feats *pipeline.Features) model.PredictionRecord {
	match := m.Match(feats)
	if match.Abstained {
		return m.abstain(match)
	}

	w := m.wrapperFor(match.Archetype)
	if w == nil {
		return m.abstain(match)
	}

	rec := w.Predict(ctx, feats)
	if rec.Status != model.StatusOK {
		// Specialized model violated its contract or failed; abstain
		// instead of surfacing a broken specialized score.
		return m.abstain(match)
	}
	rec.ModelID = MatcherID
	rec.RawConfidence = match.Confidence
	return rec
}

func (m *Matcher) wrapperFor(name string) *model.Wrapper {
	for _, a := range m.lib.Archetypes {
		if a.Name == name && a.ModelID != "" {
			return m.models[a.ModelID]
		}
	}
	return nil
}

func (m *Matcher) abstain(match Match) model.PredictionRecord {
	neutral := pipeline.Neutral
	return model.PredictionRecord{
		ModelID:       MatcherID,
		Probability:   &neutral,
		RawConfidence: match.Confidence,
		Status:        model.StatusDegraded,
	}
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
