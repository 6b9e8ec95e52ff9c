package pipeline

import (
	"github.com/mchmarny/vcpulse/pkg/schema"
)

// PillarScores holds one aggregate per CAMP pillar, each in [0,1].
type PillarScores struct {
	Capital   float64 `json:"capital" yaml:"capital"`
	Advantage float64 `json:"advantage" yaml:"advantage"`
	Market    float64 `json:"market" yaml:"market"`
	People    float64 `json:"people" yaml:"people"`
}

// Get returns one pillar's score.
func (p PillarScores) Get(pillar schema.Pillar) float64 {
	switch pillar {
	case schema.PillarCapital:
		return p.Capital
	case schema.PillarAdvantage:
		return p.Advantage
	case schema.PillarMarket:
		return p.Market
	case schema.PillarPeople:
		return p.People
	}
	return Neutral
}

// Pillars computes the four CAMP aggregates from a validated record.
// Each member feature is normalized to [0,1] before weighting and member
// weights are renormalized by their sum, so the aggregate can never leave
// [0,1] regardless of raw magnitudes.
func Pillars(reg *schema.Registry, rec schema.Record) PillarScores {
	return PillarScores{
		Capital:   pillarScore(reg, rec, schema.PillarCapital),
		Advantage: pillarScore(reg, rec, schema.PillarAdvantage),
		Market:    pillarScore(reg, rec, schema.PillarMarket),
		People:    pillarScore(reg, rec, schema.PillarPeople),
	}
}

func pillarScore(reg *schema.Registry, rec schema.Record, pillar schema.Pillar) float64 {
	members := reg.PillarMembers(pillar)
	if len(members) == 0 {
		return Neutral
	}

	var sum, weight float64
	for _, spec := range members {
		w := spec.PillarWeight
		if w <= 0 {
			continue
		}
		value, ok := rec[spec.Name]
		if !ok {
			value = spec.Default
		}
		sum += w * Normalize(spec, value)
		weight += w
	}
	if weight == 0 {
		return Neutral
	}
	return clamp01(sum / weight)
}
