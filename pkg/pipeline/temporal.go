package pipeline

import (
	"fmt"

	"github.com/mchmarny/vcpulse/pkg/schema"
)

// Derived temporal feature names, stable across contract versions.
const (
	GrowthMomentum  = "growth_momentum"
	EfficiencyTrend = "efficiency_trend"
	StageVelocity   = "stage_velocity"
)

// TemporalNames lists the derived temporal features in canonical order.
var TemporalNames = []string{GrowthMomentum, EfficiencyTrend, StageVelocity}

// TemporalScores holds the derived momentum/efficiency/velocity scalars,
// each in [0,1]. Ratios with zero denominators resolve to Neutral instead
// of propagating NaN downstream.
type TemporalScores struct {
	GrowthMomentum  float64 `json:"growth_momentum" yaml:"growth_momentum"`
	EfficiencyTrend float64 `json:"efficiency_trend" yaml:"efficiency_trend"`
	StageVelocity   float64 `json:"stage_velocity" yaml:"stage_velocity"`
}

// Get returns a derived temporal score by name.
func (t TemporalScores) Get(name string) (float64, error) {
	switch name {
	case GrowthMomentum:
		return t.GrowthMomentum, nil
	case EfficiencyTrend:
		return t.EfficiencyTrend, nil
	case StageVelocity:
		return t.StageVelocity, nil
	}
	return 0, fmt.Errorf("unknown temporal feature: %s", name)
}

// Funding raised at or below these totals is considered on-pace for the
// stage; the velocity ratio squashes around them.
var stageTypicalFunding = map[string]float64{
	"pre_seed": 500_000,
	"seed":     2_500_000,
	"series_a": 12_000_000,
	"series_b": 30_000_000,
	"series_c": 60_000_000,
	"growth":   120_000_000,
}

// Temporal derives the growth-momentum, efficiency-trend, and
// stage-velocity scalars from ratios of base features.
func Temporal(reg *schema.Registry, rec schema.Record) TemporalScores {
	return TemporalScores{
		GrowthMomentum:  growthMomentum(reg, rec),
		EfficiencyTrend: efficiencyTrend(reg, rec),
		StageVelocity:   stageVelocity(reg, rec),
	}
}

func growthMomentum(reg *schema.Registry, rec schema.Record) float64 {
	rev := normalized(reg, rec, "revenue_growth_rate_pct")
	usr := normalized(reg, rec, "user_growth_rate_pct")
	return clamp01(0.6*rev + 0.4*usr)
}

func efficiencyTrend(reg *schema.Registry, rec schema.Record) float64 {
	burn := numeric(reg, rec, "burn_multiple")
	ltv := numeric(reg, rec, "ltv_cac_ratio")
	if burn == 0 {
		return Neutral
	}
	ratio := ltv / burn
	base := ratio / (1 + ratio)
	margin := normalized(reg, rec, "gross_margin_pct")
	return clamp01(0.7*base + 0.3*margin)
}

func stageVelocity(reg *schema.Registry, rec schema.Record) float64 {
	stage := categorical(reg, rec, "funding_stage")
	typical, ok := stageTypicalFunding[stage]
	if !ok || typical == 0 {
		return Neutral
	}
	raised := numeric(reg, rec, "funding_total_usd")
	ratio := raised / typical
	return clamp01(ratio / (1 + ratio))
}

func categorical(reg *schema.Registry, rec schema.Record, name string) string {
	if s, ok := rec[name].(string); ok {
		return s
	}
	spec, err := reg.Get(name)
	if err != nil {
		return ""
	}
	s, _ := spec.Default.(string)
	return s
}

func normalized(reg *schema.Registry, rec schema.Record, name string) float64 {
	spec, err := reg.Get(name)
	if err != nil {
		return Neutral
	}
	value, ok := rec[name]
	if !ok {
		value = spec.Default
	}
	return Normalize(spec, value)
}

func numeric(reg *schema.Registry, rec schema.Record, name string) float64 {
	if f, ok := asFloat(rec[name]); ok {
		return f
	}
	spec, err := reg.Get(name)
	if err != nil {
		return 0
	}
	f, _ := asFloat(spec.Default)
	return f
}
