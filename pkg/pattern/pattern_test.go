package pattern

import (
	"context"
	"testing"

	"github.com/mchmarny/vcpulse/pkg/model"
	"github.com/mchmarny/vcpulse/pkg/pipeline"
	"github.com/mchmarny/vcpulse/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

func testFeatures(t *testing.T, runway float64) *pipeline.Features {
	t.Helper()
	reg, err := schema.NewRegistry("test", []schema.FeatureSpec{
		{Name: "runway_months", Position: 0, Type: schema.TypeNumber, Category: schema.CategoryCapital, Min: fp(0), Max: fp(60), Default: 12.0, Scale: schema.ScaleLinear, Pillar: schema.PillarCapital, PillarWeight: 1},
	})
	require.NoError(t, err)

	enc, err := pipeline.ParseEncodings([]byte("version: \"1\"\ntables: {}\n"))
	require.NoError(t, err)

	feats, err := pipeline.Build(reg, enc, schema.Record{"runway_months": runway})
	require.NoError(t, err)
	return feats
}

func testLibrary(t *testing.T, threshold string) *Library {
	t.Helper()
	lib, err := ParseLibrary([]byte(`
version: "1"
threshold: ` + threshold + `
archetypes:
  - name: efficient_growth
    centroid: [1.0, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5]
    model_id: archetype_efficient_growth
  - name: capital_starved
    centroid: [0.0, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5]
    model_id: archetype_capital_starved
`))
	require.NoError(t, err)
	return lib
}

func archetypeWrapper(t *testing.T, id string) *model.Wrapper {
	t.Helper()
	est, err := model.LoadEstimator([]byte(`{"model_id":"` + id + `","version":"1","kind":"logistic","dimension":1,"intercept":0.4,"coefficients":[1.0]}`))
	require.NoError(t, err)

	w, err := model.NewWrapper(model.Contract{
		ModelID:           id,
		Version:           "1",
		Category:          model.CategoryPattern,
		Inputs:            []model.FeatureRef{{Name: "capital", Source: model.SourcePillar}},
		OutputCardinality: 1,
	}, est, 0)
	require.NoError(t, err)
	return w
}

func testMatcher(t *testing.T, threshold string) *Matcher {
	t.Helper()
	lib := testLibrary(t, threshold)
	m, err := NewMatcher(lib, map[string]*model.Wrapper{
		"archetype_efficient_growth": archetypeWrapper(t, "archetype_efficient_growth"),
		"archetype_capital_starved":  archetypeWrapper(t, "archetype_capital_starved"),
	})
	require.NoError(t, err)
	return m
}

func TestParseLibrary_Validation(t *testing.T) {
	cases := map[string]string{
		"no version":    "threshold: 0.5\narchetypes: [{name: a, centroid: [0,0,0,0,0,0,0]}]",
		"bad threshold": "version: \"1\"\nthreshold: 1.5\narchetypes: [{name: a, centroid: [0,0,0,0,0,0,0]}]",
		"empty":         "version: \"1\"\nthreshold: 0.5\narchetypes: []",
		"short vector":  "version: \"1\"\nthreshold: 0.5\narchetypes: [{name: a, centroid: [0,0]}]",
		"out of range":  "version: \"1\"\nthreshold: 0.5\narchetypes: [{name: a, centroid: [2,0,0,0,0,0,0]}]",
		"dup name":      "version: \"1\"\nthreshold: 0.5\narchetypes: [{name: a, centroid: [0,0,0,0,0,0,0]}, {name: a, centroid: [1,1,1,1,1,1,1]}]",
	}
	for name, raw := range cases {
		_, err := ParseLibrary([]byte(raw))
		assert.Error(t, err, name)
	}
}

func TestMatch_NearestCentroid(t *testing.T) {
	m := testMatcher(t, "0.3")

	// runway 60 -> capital pillar 1.0, nearest to efficient_growth.
	match := m.Match(testFeatures(t, 60))
	assert.Equal(t, "efficient_growth", match.Archetype)
	assert.False(t, match.Abstained)
	assert.GreaterOrEqual(t, match.Confidence, 0.0)
	assert.LessOrEqual(t, match.Confidence, 1.0)

	// runway 0 -> capital pillar 0.0, nearest to capital_starved.
	match = m.Match(testFeatures(t, 0))
	assert.Equal(t, "capital_starved", match.Archetype)
}

func TestMatch_TieBreaksToLowestIndex(t *testing.T) {
	m := testMatcher(t, "0.3")

	// runway 30 -> capital pillar 0.5, equidistant from both centroids.
	match := m.Match(testFeatures(t, 30))
	assert.Equal(t, "efficient_growth", match.Archetype)
}

func TestPredict_ConfidentMatchUsesSpecializedModel(t *testing.T) {
	m := testMatcher(t, "0.3")

	rec := m.Predict(context.Background(), testFeatures(t, 60))
	assert.Equal(t, MatcherID, rec.ModelID)
	assert.Equal(t, model.StatusOK, rec.Status)
	require.NotNil(t, rec.Probability)
	assert.NotEqual(t, pipeline.Neutral, *rec.Probability)
}

func TestPredict_BelowThresholdAbstains(t *testing.T) {
	m := testMatcher(t, "0.99")

	rec := m.Predict(context.Background(), testFeatures(t, 45))
	assert.Equal(t, model.StatusDegraded, rec.Status)
	require.NotNil(t, rec.Probability)
	assert.Equal(t, pipeline.Neutral, *rec.Probability)

	// Archetype is still reported for diagnostics.
	match := m.Match(testFeatures(t, 45))
	assert.True(t, match.Abstained)
	assert.NotEmpty(t, match.Archetype)
}

func TestNewMatcher_MissingModelRejected(t *testing.T) {
	lib := testLibrary(t, "0.3")
	_, err := NewMatcher(lib, nil)
	assert.Error(t, err)
}
