package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mchmarny/vcpulse/pkg/config"
	"github.com/mchmarny/vcpulse/pkg/model"
	"github.com/mchmarny/vcpulse/pkg/pattern"
	"github.com/mchmarny/vcpulse/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	return e
}

// strongRecord is a fully populated series_a SaaS company with healthy
// numbers across every pillar.
func strongRecord() map[string]any {
	return map[string]any{
		"funding_total_usd":              12_000_000.0,
		"cash_on_hand_usd":               8_000_000.0,
		"monthly_burn_usd":               300_000.0,
		"runway_months":                  26.0,
		"burn_multiple":                  1.1,
		"ltv_cac_ratio":                  4.2,
		"gross_margin_pct":               78.0,
		"annual_revenue_usd":             4_500_000.0,
		"revenue_growth_rate_pct":        160.0,
		"has_debt":                       false,
		"funding_stage":                  "series_a",
		"investor_tier":                  "tier_1",
		"patent_count":                   2.0,
		"network_effects":                true,
		"has_data_moat":                  true,
		"regulatory_advantage":           false,
		"tech_differentiation_score":     4.0,
		"switching_cost_score":           4.0,
		"brand_strength_score":           3.0,
		"scalability_score":              4.5,
		"sector":                         "saas",
		"tam_size_usd":                   8_000_000_000.0,
		"sam_size_usd":                   1_200_000_000.0,
		"som_size_usd":                   150_000_000.0,
		"market_growth_rate_pct":         25.0,
		"customer_count":                 220.0,
		"customer_concentration_pct":     12.0,
		"user_growth_rate_pct":           140.0,
		"net_dollar_retention_pct":       128.0,
		"competition_intensity":          3.0,
		"competitors_named_count":        6.0,
		"founders_count":                 2.0,
		"team_size_full_time":            38.0,
		"years_experience_avg":           11.0,
		"domain_expertise_years_avg":     8.0,
		"prior_successful_exits":         1.0,
		"board_advisor_experience_score": 4.0,
		"advisors_count":                 5.0,
		"team_diversity_pct":             42.0,
		"key_person_dependency":          false,
		"product_stage":                  "scaling",
		"product_retention_30d_pct":      85.0,
		"product_retention_90d_pct":      72.0,
		"dau_mau_ratio":                  0.55,
		"annual_churn_rate_pct":          6.0,
	}
}

func TestPredict_StrongCompany(t *testing.T) {
	e := setupTestEngine(t)

	res, err := e.Predict(context.Background(), strongRecord())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.NotEmpty(t, res.ID)
	assert.GreaterOrEqual(t, res.FinalProbability, 0.0)
	assert.LessOrEqual(t, res.FinalProbability, 1.0)
	assert.NotEmpty(t, res.ModelContributions)
	assert.NotEqual(t, Verdict(""), res.Verdict)

	for _, c := range res.ModelContributions {
		assert.NotEqual(t, model.StatusFailed, c.Status, "model %s failed: %s", c.ModelID, c.Error)
	}
}

func TestPredict_WeightsSumToOne(t *testing.T) {
	e := setupTestEngine(t)

	res, err := e.Predict(context.Background(), strongRecord())
	require.NoError(t, err)

	var sum float64
	for _, w := range res.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestPredict_DisabledCategoryReweighted(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Weights.Disabled = []model.Category{model.CategoryPattern}

	e, err := New(cfg)
	require.NoError(t, err)

	res, err := e.Predict(context.Background(), strongRecord())
	require.NoError(t, err)

	_, ok := res.Weights[model.CategoryPattern]
	assert.False(t, ok, "disabled category must carry no weight")
	assert.True(t, res.Pattern.Abstained)
	for _, c := range res.ModelContributions {
		assert.NotEqual(t, pattern.MatcherID, c.ModelID)
	}

	var sum float64
	for _, w := range res.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestPredict_PillarScoresBounded(t *testing.T) {
	e := setupTestEngine(t)

	res, err := e.Predict(context.Background(), strongRecord())
	require.NoError(t, err)

	for _, s := range []float64{
		res.PillarScores.Capital,
		res.PillarScores.Advantage,
		res.PillarScores.Market,
		res.PillarScores.People,
	} {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestPredict_IntervalBoundsProbability(t *testing.T) {
	e := setupTestEngine(t)

	res, err := e.Predict(context.Background(), strongRecord())
	require.NoError(t, err)

	ci := res.ConfidenceInterval
	assert.GreaterOrEqual(t, ci.Lower, 0.0)
	assert.LessOrEqual(t, ci.Upper, 1.0)
	assert.LessOrEqual(t, ci.Lower, res.FinalProbability)
	assert.GreaterOrEqual(t, res.FinalProbability, ci.Lower)
	assert.LessOrEqual(t, res.FinalProbability, ci.Upper)
}

func TestPredict_Idempotent(t *testing.T) {
	e := setupTestEngine(t)

	a, err := e.Predict(context.Background(), strongRecord())
	require.NoError(t, err)
	b, err := e.Predict(context.Background(), strongRecord())
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.FinalProbability, b.FinalProbability)
	assert.Equal(t, a.Verdict, b.Verdict)
	assert.Equal(t, a.Weights, b.Weights)
}

func TestPredict_DeterministicAcrossCalls(t *testing.T) {
	e := setupTestEngine(t)

	first, err := e.Predict(context.Background(), strongRecord())
	require.NoError(t, err)

	// Bit-identical on every call, not just within a float tolerance.
	for i := 0; i < 100; i++ {
		res, err := e.Predict(context.Background(), strongRecord())
		require.NoError(t, err)
		assert.Equal(t, first.FinalProbability, res.FinalProbability)
		assert.Equal(t, first.ConfidenceInterval, res.ConfidenceInterval)
		assert.Equal(t, first.Weights, res.Weights)
	}
}

func TestPredict_DefaultedFieldsWidenInterval(t *testing.T) {
	e := setupTestEngine(t)

	full, err := e.Predict(context.Background(), strongRecord())
	require.NoError(t, err)

	sparse := strongRecord()
	for _, name := range []string{
		"sector", "tam_size_usd", "sam_size_usd", "som_size_usd",
		"market_growth_rate_pct", "customer_count", "customer_concentration_pct",
		"user_growth_rate_pct", "net_dollar_retention_pct", "competition_intensity",
		"competitors_named_count", "product_stage", "product_retention_30d_pct",
		"product_retention_90d_pct", "dau_mau_ratio", "annual_churn_rate_pct",
	} {
		delete(sparse, name)
	}

	partial, err := e.Predict(context.Background(), sparse)
	require.NoError(t, err)

	fullWidth := full.ConfidenceInterval.Upper - full.ConfidenceInterval.Lower
	partialWidth := partial.ConfidenceInterval.Upper - partial.ConfidenceInterval.Lower
	assert.Greater(t, partialWidth, fullWidth)
}

// shiftyEstimator passes the construction-time dimension check, then
// disagrees with the contract at inference time.
type shiftyEstimator struct {
	dim int
}

func (e *shiftyEstimator) Dimension() int { return e.dim }

func (e *shiftyEstimator) PredictProba(_ []float64) (float64, error) { return 0.5, nil }

func TestPredict_ContractViolationDegradesAndReweights(t *testing.T) {
	e := setupTestEngine(t)

	est := &shiftyEstimator{dim: 1}
	w, err := model.NewWrapper(model.Contract{
		ModelID:           "stage_model",
		Version:           "test",
		Category:          model.CategoryStage,
		OutputCardinality: 1,
		Inputs:            []model.FeatureRef{{Name: "runway_months", Source: model.SourceBase}},
	}, est, 0)
	require.NoError(t, err)
	est.dim = 2

	replaced := false
	for i, p := range e.predictors {
		if p.ID() == "stage_model" {
			e.predictors[i] = w
			replaced = true
		}
	}
	require.True(t, replaced)

	res, err := e.Predict(context.Background(), strongRecord())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Contains(t, res.DegradedModels, "stage_model")
	_, ok := res.Weights[model.CategoryStage]
	assert.False(t, ok, "category with no surviving model must carry no weight")

	var sum float64
	for _, weight := range res.Weights {
		sum += weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	for _, c := range res.ModelContributions {
		if c.ModelID == "stage_model" {
			assert.Equal(t, model.StatusFailed, c.Status)
			assert.Contains(t, c.Error, "contract violation")
			assert.Nil(t, c.Probability)
		}
	}
}

func TestPredict_UnknownFieldRejected(t *testing.T) {
	e := setupTestEngine(t)

	rec := strongRecord()
	rec["stealth_mode"] = true

	_, err := e.Predict(context.Background(), rec)
	require.Error(t, err)

	var sv *schema.SchemaViolation
	require.ErrorAs(t, err, &sv)
	assert.Contains(t, sv.Error(), "stealth_mode")
}

func TestPredict_SparseRecordUsesDefaults(t *testing.T) {
	e := setupTestEngine(t)

	res, err := e.Predict(context.Background(), map[string]any{
		"funding_stage": "seed",
		"sector":        "fintech",
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.GreaterOrEqual(t, res.FinalProbability, 0.0)
	assert.LessOrEqual(t, res.FinalProbability, 1.0)
	assert.NotEqual(t, Verdict(""), res.Verdict)
}

func TestPredict_AllCategoriesDisabled(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Weights.Disabled = model.Categories

	e, err := New(cfg)
	require.NoError(t, err)

	_, err = e.Predict(context.Background(), strongRecord())
	require.Error(t, err)

	var pu *PredictionUnavailable
	assert.ErrorAs(t, err, &pu)
}

func TestPredict_DisabledPatternMatchesManualReweight(t *testing.T) {
	disabled, err := config.Load("")
	require.NoError(t, err)
	disabled.Weights.Disabled = []model.Category{model.CategoryPattern}

	manual, err := config.Load("")
	require.NoError(t, err)
	manual.Weights.Categories = map[model.Category]float64{
		model.CategoryBase:     0.35 / 0.85,
		model.CategoryCAMP:     0.25 / 0.85,
		model.CategoryStage:    0.15 / 0.85,
		model.CategoryIndustry: 0.10 / 0.85,
	}

	e1, err := New(disabled)
	require.NoError(t, err)
	e2, err := New(manual)
	require.NoError(t, err)

	r1, err := e1.Predict(context.Background(), strongRecord())
	require.NoError(t, err)
	r2, err := e2.Predict(context.Background(), strongRecord())
	require.NoError(t, err)

	assert.InDelta(t, r1.FinalProbability, r2.FinalProbability, 1e-12)
	assert.Equal(t, r1.Verdict, r2.Verdict)
	assert.Equal(t, r1.DegradedModels, r2.DegradedModels)
}

type memCache struct {
	entries map[string][]byte
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, ok := c.entries[key]
	return b, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	c.entries[key] = val
	return nil
}

func TestPredict_CacheHit(t *testing.T) {
	mc := &memCache{entries: map[string][]byte{}}
	e := setupTestEngine(t, WithCache(mc, time.Minute))

	first, err := e.Predict(context.Background(), strongRecord())
	require.NoError(t, err)
	assert.False(t, first.Cached)
	require.Len(t, mc.entries, 1)

	second, err := e.Predict(context.Background(), strongRecord())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.FinalProbability, second.FinalProbability)
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("backend down")
}

func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("backend down")
}

func TestPredict_CacheFailureIsNotFatal(t *testing.T) {
	e := setupTestEngine(t, WithCache(failingCache{}, time.Minute))

	res, err := e.Predict(context.Background(), strongRecord())
	require.NoError(t, err)
	assert.False(t, res.Cached)
}

func TestVerdictFor_Tiers(t *testing.T) {
	th := config.Thresholds{StrongPass: 0.78, Pass: 0.60, ConditionalPass: 0.48, Fail: 0.35}

	tests := []struct {
		p    float64
		want Verdict
	}{
		{0.90, VerdictStrongPass},
		{0.78, VerdictStrongPass},
		{0.65, VerdictPass},
		{0.50, VerdictConditionalPass},
		{0.40, VerdictFail},
		{0.10, VerdictStrongFail},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, verdictFor(th, tc.p), "p=%v", tc.p)
	}
}

func TestConfidenceInterval_Agreement(t *testing.T) {
	tight := confidenceInterval(0.6, []float64{0.59, 0.60, 0.61, 0.60}, 0, 0)
	wide := confidenceInterval(0.6, []float64{0.2, 0.9, 0.4, 0.9}, 0, 0)

	assert.Less(t, tight.Upper-tight.Lower, wide.Upper-wide.Lower)

	degraded := confidenceInterval(0.6, []float64{0.2, 0.9, 0.4, 0.9}, 3, 0)
	assert.GreaterOrEqual(t, degraded.Upper-degraded.Lower, wide.Upper-wide.Lower)

	imputed := confidenceInterval(0.6, []float64{0.59, 0.60, 0.61, 0.60}, 0, 0.5)
	assert.Greater(t, imputed.Upper-imputed.Lower, tight.Upper-tight.Lower)
}

func TestRenormalize_ExactSum(t *testing.T) {
	w := &config.Weights{
		Categories: map[model.Category]float64{
			model.CategoryBase:     0.35,
			model.CategoryCAMP:     0.25,
			model.CategoryStage:    0.15,
			model.CategoryIndustry: 0.10,
			model.CategoryPattern:  0.15,
		},
	}
	active := map[model.Category][]float64{
		model.CategoryBase: {0.7},
		model.CategoryCAMP: {0.6, 0.5},
	}

	out := renormalize(w, active)
	require.Len(t, out, 2)

	var sum float64
	for _, v := range out {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, out[model.CategoryBase], out[model.CategoryCAMP])
}
