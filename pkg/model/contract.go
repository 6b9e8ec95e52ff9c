// Package model defines the per-model feature contract, the estimator
// abstraction over loaded artifacts, and the wrapper that isolates each
// sub-model behind contract validation and failure containment.
package model

import (
	"fmt"

	"github.com/mchmarny/vcpulse/pkg/pipeline"
	"github.com/mchmarny/vcpulse/pkg/schema"
)

// Category groups models for ensemble weighting. Weights are configured
// per category, not per individual model.
type Category string

const (
	CategoryBase     Category = "base"
	CategoryCAMP     Category = "camp"
	CategoryStage    Category = "stage"
	CategoryIndustry Category = "industry"
	CategoryPattern  Category = "pattern"
)

// Categories lists the model categories in canonical order.
var Categories = []Category{CategoryBase, CategoryCAMP, CategoryStage, CategoryIndustry, CategoryPattern}

// Source identifies where a contract input comes from: the canonical base
// vector, a CAMP pillar aggregate, or a derived temporal scalar.
type Source string

const (
	SourceBase     Source = "base"
	SourcePillar   Source = "pillar"
	SourceTemporal Source = "temporal"
)

// FeatureRef is one ordered input of a model contract.
type FeatureRef struct {
	Name   string `yaml:"name" json:"name"`
	Source Source `yaml:"source" json:"source"`
}

// Contract declares the exact, ordered feature vector a model was trained
// against. Its length is the single fact that pins the model's input
// dimensionality; wrappers refuse to run when it disagrees with the
// estimator.
type Contract struct {
	ModelID           string       `yaml:"model_id" json:"model_id"`
	Version           string       `yaml:"version" json:"version"`
	Category          Category     `yaml:"category" json:"category"`
	Inputs            []FeatureRef `yaml:"inputs" json:"inputs"`
	OutputCardinality int          `yaml:"output_cardinality" json:"output_cardinality"`
}

// Dimension returns the declared input vector length.
func (c Contract) Dimension() int {
	return len(c.Inputs)
}

// Validate checks every input reference against the registry and the known
// derived feature names. Run once at startup so a mis-declared contract
// fails the process, not a request.
func (c Contract) Validate(reg *schema.Registry) error {
	if c.ModelID == "" {
		return fmt.Errorf("contract has no model_id")
	}
	if len(c.Inputs) == 0 {
		return fmt.Errorf("contract %s has no inputs", c.ModelID)
	}
	if c.OutputCardinality != 1 {
		return fmt.Errorf("contract %s: output cardinality %d not supported", c.ModelID, c.OutputCardinality)
	}

	for i, ref := range c.Inputs {
		switch ref.Source {
		case SourceBase:
			if !reg.Has(ref.Name) {
				return fmt.Errorf("contract %s input %d: unknown base feature %s", c.ModelID, i, ref.Name)
			}
		case SourcePillar:
			if !validPillar(ref.Name) {
				return fmt.Errorf("contract %s input %d: unknown pillar %s", c.ModelID, i, ref.Name)
			}
		case SourceTemporal:
			if !validTemporal(ref.Name) {
				return fmt.Errorf("contract %s input %d: unknown temporal feature %s", c.ModelID, i, ref.Name)
			}
		default:
			return fmt.Errorf("contract %s input %d: invalid source %s", c.ModelID, i, ref.Source)
		}
	}
	return nil
}

func validPillar(name string) bool {
	for _, p := range schema.Pillars {
		if string(p) == name {
			return true
		}
	}
	return false
}

func validTemporal(name string) bool {
	for _, t := range pipeline.TemporalNames {
		if t == name {
			return true
		}
	}
	return false
}

// Resolve builds the contract-ordered input vector from pipeline outputs.
// A reference that cannot be resolved aborts the whole vector; partial
// vectors are never returned.
func (c Contract) Resolve(feats *pipeline.Features) ([]float64, error) {
	out := make([]float64, len(c.Inputs))
	for i, ref := range c.Inputs {
		var (
			v   float64
			err error
		)
		switch ref.Source {
		case SourceBase:
			v, err = feats.Baseline(ref.Name)
		case SourcePillar:
			v = feats.Pillar(schema.Pillar(ref.Name))
		case SourceTemporal:
			v, err = feats.Temporal.Get(ref.Name)
		default:
			err = fmt.Errorf("invalid source: %s", ref.Source)
		}
		if err != nil {
			return nil, fmt.Errorf("input %d (%s): %w", i, ref.Name, err)
		}
		out[i] = v
	}
	return out, nil
}
