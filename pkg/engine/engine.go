// Package engine is the model orchestrator: it validates one raw record,
// runs the feature pipeline once, fans out to every registered sub-model,
// and combines the surviving predictions into a single calibrated result
// with renormalized category weights.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/vcpulse/pkg/config"
	"github.com/mchmarny/vcpulse/pkg/model"
	"github.com/mchmarny/vcpulse/pkg/pattern"
	"github.com/mchmarny/vcpulse/pkg/pipeline"
	"github.com/mchmarny/vcpulse/pkg/schema"
	"golang.org/x/sync/errgroup"
)

// Cache is the optional result cache consulted before fan-out. Entries
// are write-once with a TTL; racing writers to the same key are harmless.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// PredictionUnavailable means every registered model failed. The
// orchestrator surfaces it instead of fabricating a constant score.
type PredictionUnavailable struct {
	Cause string
}

func (e *PredictionUnavailable) Error() string {
	return fmt.Sprintf("prediction unavailable: %s", e.Cause)
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithCache attaches a result cache with the given entry TTL.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = c
		e.cacheTTL = ttl
	}
}

// WithLogger replaces the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// Engine holds the loaded, immutable model set and configuration. Safe
// for concurrent use; nothing is written to shared state during a request.
type Engine struct {
	reg        *schema.Registry
	enc        *pipeline.Encodings
	weights    *config.Weights
	verdicts   *config.VerdictRules
	predictors []model.Predictor
	matcher    *pattern.Matcher

	cache    Cache
	cacheTTL time.Duration
	log      *slog.Logger
}

// New wires an engine from a loaded configuration. Every contract is
// validated against its artifact's dimensionality here, so a
// mis-specified model fails startup instead of degrading requests.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	e := &Engine{
		reg:      cfg.Registry,
		enc:      cfg.Encodings,
		weights:  cfg.Weights,
		verdicts: cfg.Verdicts,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	archetypeModels := make(map[string]*model.Wrapper)
	for _, spec := range cfg.Models {
		est, err := model.LoadEstimator(spec.Artifact)
		if err != nil {
			return nil, fmt.Errorf("loading model %s: %w", spec.Contract.ModelID, err)
		}
		w, err := model.NewWrapper(spec.Contract, est, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		if spec.Contract.Category == model.CategoryPattern {
			archetypeModels[spec.Contract.ModelID] = w
			continue
		}
		e.predictors = append(e.predictors, w)
	}

	matcher, err := pattern.NewMatcher(cfg.Archetypes, archetypeModels)
	if err != nil {
		return nil, err
	}
	e.matcher = matcher
	e.predictors = append(e.predictors, matcher)

	if len(e.predictors) == 0 {
		return nil, fmt.Errorf("no models registered")
	}
	return e, nil
}

// Predict turns one raw record into an OrchestrationResult. Input keys
// are validated against the registry before any model runs; a result is
// returned whenever at least one model succeeds.
func (e *Engine) Predict(ctx context.Context, raw map[string]any) (*OrchestrationResult, error) {
	rec, err := e.reg.ValidateRecord(raw)
	if err != nil {
		return nil, err
	}

	feats, err := pipeline.Build(e.reg, e.enc, rec)
	if err != nil {
		return nil, err
	}

	key := e.cacheKey(feats)
	if cached := e.cacheGet(ctx, key); cached != nil {
		return cached, nil
	}

	records := e.fanOut(ctx, feats)
	res, err := e.combine(key, rec, feats, records)
	if err != nil {
		return nil, err
	}

	e.cacheSet(ctx, key, res)
	return res, nil
}

// fanOut runs every active predictor concurrently. Each call is
// independently contained by its wrapper; failures surface as failed
// records, never as errors here.
func (e *Engine) fanOut(ctx context.Context, feats *pipeline.Features) []model.PredictionRecord {
	active := make([]model.Predictor, 0, len(e.predictors))
	for _, p := range e.predictors {
		if e.categoryWeight(p.Category()) > 0 {
			active = append(active, p)
		}
	}

	records := make([]model.PredictionRecord, len(active))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range active {
		g.Go(func() error {
			records[i] = p.Predict(ctx, feats)
			return nil
		})
	}
	// Predictors never return errors through the group.
	_ = g.Wait()
	return records
}

func (e *Engine) categoryWeight(cat model.Category) float64 {
	if e.weights.IsDisabled(cat) {
		return 0
	}
	return e.weights.Categories[cat]
}

// cacheKey hashes the canonical vectors plus the config versions, so a
// redeploy with new weights or a new schema never serves stale results.
func (e *Engine) cacheKey(feats *pipeline.Features) string {
	h := sha256.New()
	h.Write([]byte(e.reg.Version))
	h.Write([]byte(e.weights.Version))
	h.Write([]byte(e.enc.Version))

	buf := make([]byte, 8)
	for _, f := range feats.Base {
		binary.BigEndian.PutUint64(buf, math.Float64bits(f))
		h.Write(buf)
	}
	for _, f := range feats.DerivedVector() {
		binary.BigEndian.PutUint64(buf, math.Float64bits(f))
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (e *Engine) cacheGet(ctx context.Context, key string) *OrchestrationResult {
	if e.cache == nil {
		return nil
	}
	b, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.log.Debug("cache read failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var res OrchestrationResult
	if err := json.Unmarshal(b, &res); err != nil {
		e.log.Debug("cache entry corrupt, ignoring", "key", key, "error", err)
		return nil
	}
	res.Cached = true
	return &res
}

func (e *Engine) cacheSet(ctx context.Context, key string, res *OrchestrationResult) {
	if e.cache == nil {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		e.log.Debug("cache marshal failed", "error", err)
		return
	}
	if err := e.cache.Set(ctx, key, b, e.cacheTTL); err != nil {
		e.log.Debug("cache write failed", "error", err)
	}
}

// resultID derives a stable id from the cache key so identical requests
// produce identical results.
func resultID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}
