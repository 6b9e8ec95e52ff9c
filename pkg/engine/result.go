package engine

import (
	"github.com/mchmarny/vcpulse/pkg/model"
	"github.com/mchmarny/vcpulse/pkg/pattern"
	"github.com/mchmarny/vcpulse/pkg/pipeline"
)

// Verdict is the discrete assessment tier mapped from the final
// probability through stage/sector-aware thresholds.
type Verdict string

const (
	VerdictStrongPass      Verdict = "strong_pass"
	VerdictPass            Verdict = "pass"
	VerdictConditionalPass Verdict = "conditional_pass"
	VerdictFail            Verdict = "fail"
	VerdictStrongFail      Verdict = "strong_fail"
)

// ConfidenceInterval bounds the final probability. Width grows with
// model disagreement and shrinks with the count of active models.
type ConfidenceInterval struct {
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
}

// OrchestrationResult is the complete output for one request. Created
// fresh per call and owned exclusively by the caller; no shared mutable
// state survives the request.
type OrchestrationResult struct {
	ID                 string                     `json:"id" yaml:"id"`
	FinalProbability   float64                    `json:"final_probability" yaml:"final_probability"`
	ConfidenceInterval ConfidenceInterval         `json:"confidence_interval" yaml:"confidence_interval"`
	PillarScores       pipeline.PillarScores      `json:"pillar_scores" yaml:"pillar_scores"`
	Pattern            pattern.Match              `json:"pattern" yaml:"pattern"`
	ModelContributions []model.PredictionRecord   `json:"model_contributions" yaml:"model_contributions"`
	Verdict            Verdict                    `json:"verdict" yaml:"verdict"`
	DegradedModels     []string                   `json:"degraded_models" yaml:"degraded_models"`
	Weights            map[model.Category]float64 `json:"weights" yaml:"weights"`
	Cached             bool                       `json:"cached,omitempty" yaml:"cached,omitempty"`
}
