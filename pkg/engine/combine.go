package engine

import (
	"math"
	"sort"

	"github.com/mchmarny/vcpulse/pkg/config"
	"github.com/mchmarny/vcpulse/pkg/model"
	"github.com/mchmarny/vcpulse/pkg/pattern"
	"github.com/mchmarny/vcpulse/pkg/pipeline"
	"github.com/mchmarny/vcpulse/pkg/schema"
)

// combine folds the collected prediction records into the final result.
// Categories with no surviving signal lose their weight proportionally to
// the remaining active categories, so the total always sums to exactly 1.
func (e *Engine) combine(key string, rec schema.Record, feats *pipeline.Features, records []model.PredictionRecord) (*OrchestrationResult, error) {
	byCat := make(map[model.Category][]float64)
	var degraded []string
	var contributions []model.PredictionRecord

	for _, r := range records {
		contributions = append(contributions, r)
		if r.Status != model.StatusOK || r.Probability == nil {
			degraded = append(degraded, r.ModelID)
			if r.Status != model.StatusOK {
				e.log.Debug("model excluded from ensemble", "model", r.ModelID, "status", r.Status, "error", r.Error)
			}
			continue
		}
		cat := e.categoryOf(r.ModelID)
		byCat[cat] = append(byCat[cat], *r.Probability)
	}
	sort.Strings(degraded)
	sort.Slice(contributions, func(i, j int) bool { return contributions[i].ModelID < contributions[j].ModelID })

	if len(byCat) == 0 {
		return nil, &PredictionUnavailable{Cause: "all models failed or abstained"}
	}

	weights := renormalize(e.weights, byCat)

	// Sum in canonical category order: float addition is not associative,
	// so map iteration order would make identical records differ in the
	// last ulp.
	var final float64
	var active []float64
	for _, cat := range model.Categories {
		probs, ok := byCat[cat]
		if !ok {
			continue
		}
		var sum float64
		for _, p := range probs {
			sum += p
		}
		final += weights[cat] * (sum / float64(len(probs)))
		active = append(active, probs...)
	}
	final = clamp01(final)

	interval := confidenceInterval(final, active, len(degraded), feats.DefaultedShare())

	var match pattern.Match
	if e.matcher != nil && e.categoryWeight(model.CategoryPattern) > 0 {
		match = e.matcher.Match(feats)
	} else {
		match.Abstained = true
	}

	stage := stringField(rec, e.reg, "funding_stage")
	sector := stringField(rec, e.reg, "sector")

	res := &OrchestrationResult{
		ID:                 resultID(key),
		FinalProbability:   final,
		ConfidenceInterval: interval,
		PillarScores:       feats.Pillars,
		Pattern:            match,
		ModelContributions: contributions,
		Verdict:            verdictFor(e.verdicts.For(stage, sector), final),
		DegradedModels:     append([]string{}, degraded...),
		Weights:            weights,
	}
	return res, nil
}

func (e *Engine) categoryOf(modelID string) model.Category {
	if modelID == pattern.MatcherID {
		return model.CategoryPattern
	}
	for _, p := range e.predictors {
		if p.ID() == modelID {
			return p.Category()
		}
	}
	return model.CategoryBase
}

// renormalize redistributes the weight of inactive categories over the
// active ones. The invariant is sum(weights) == 1.0 exactly (within float
// tolerance), no matter how many categories dropped out.
func renormalize(w *config.Weights, byCat map[model.Category][]float64) map[model.Category]float64 {
	var total float64
	for _, cat := range model.Categories {
		if _, ok := byCat[cat]; ok && !w.IsDisabled(cat) {
			total += w.Categories[cat]
		}
	}

	out := make(map[model.Category]float64, len(byCat))
	for cat := range byCat {
		if w.IsDisabled(cat) || total == 0 {
			continue
		}
		out[cat] = w.Categories[cat] / total
	}
	return out
}

// confidenceInterval derives the band from pairwise agreement: one minus
// the normalized spread of the active probabilities. Width grows with the
// spread, the degraded count, and the share of defaulted input fields,
// and shrinks with the number of active models.
func confidenceInterval(final float64, probs []float64, degradedCount int, defaultedShare float64) ConfidenceInterval {
	n := float64(len(probs))
	if n == 0 {
		return ConfidenceInterval{Lower: clamp01(final - 0.5), Upper: clamp01(final + 0.5)}
	}

	var mean float64
	for _, p := range probs {
		mean += p
	}
	mean /= n

	var variance float64
	for _, p := range probs {
		d := p - mean
		variance += d * d
	}
	variance /= n
	spread := math.Sqrt(variance)

	// Spread of probabilities is bounded by 0.5; the base half-width
	// shrinks with sqrt(n) like a standard error.
	half := 0.04 + 1.64*spread/math.Sqrt(n)
	if degradedCount > 0 {
		half *= 1 + 0.25*float64(degradedCount)
	}
	// Defaulted inputs make the models agree on the imputed values, not
	// on the company; the spread alone understates the uncertainty.
	half += 0.35 * defaultedShare

	return ConfidenceInterval{
		Lower: clamp01(final - half),
		Upper: clamp01(final + half),
	}
}

func verdictFor(t config.Thresholds, p float64) Verdict {
	switch {
	case p >= t.StrongPass:
		return VerdictStrongPass
	case p >= t.Pass:
		return VerdictPass
	case p >= t.ConditionalPass:
		return VerdictConditionalPass
	case p >= t.Fail:
		return VerdictFail
	default:
		return VerdictStrongFail
	}
}

func stringField(rec schema.Record, reg *schema.Registry, name string) string {
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

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
