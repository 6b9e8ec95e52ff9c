package model

import (
	"context"
	"fmt"
	"time"

	"github.com/mchmarny/vcpulse/pkg/pipeline"
)

// Status is the outcome state of one sub-model call.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// PredictionRecord is produced once per sub-model per request and never
// mutated afterwards. A failed record carries no probability; the wrapper
// never substitutes a guessed value.
type PredictionRecord struct {
	ModelID       string   `json:"model_id" yaml:"model_id"`
	Probability   *float64 `json:"probability,omitempty" yaml:"probability,omitempty"`
	RawConfidence float64  `json:"raw_confidence" yaml:"raw_confidence"`
	LatencyMS     int64    `json:"latency_ms" yaml:"latency_ms"`
	Status        Status   `json:"status" yaml:"status"`
	Error         string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Predictor is what the orchestrator fans out to: model wrappers and the
// pattern matcher both satisfy it.
type Predictor interface {
	ID() string
	Category() Category
	Predict(ctx context.Context, feats *pipeline.Features) PredictionRecord
}

// Wrapper guards one estimator behind its contract: it resolves the
// contract-ordered vector, validates its shape, and contains any estimator
// failure so one broken model degrades the ensemble instead of crashing
// the request.
type Wrapper struct {
	contract  Contract
	estimator Estimator
	timeout   time.Duration
}

// DefaultTimeout bounds a single estimator call.
const DefaultTimeout = 500 * time.Millisecond

// NewWrapper wires a contract to its estimator. The contract dimension
// must exactly equal the dimensionality the estimator was fit on; this
// check at construction time is what keeps inconsistent feature counts
// out of the request path.
func NewWrapper(c Contract, est Estimator, timeout time.Duration) (*Wrapper, error) {
	if est == nil {
		return nil, fmt.Errorf("model %s: nil estimator", c.ModelID)
	}
	if c.Dimension() != est.Dimension() {
		return nil, fmt.Errorf("model %s: contract declares %d features, estimator was fit on %d",
			c.ModelID, c.Dimension(), est.Dimension())
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Wrapper{contract: c, estimator: est, timeout: timeout}, nil
}

// ID returns the wrapped model's id.
func (w *Wrapper) ID() string {
	return w.contract.ModelID
}

// Category returns the model's weighting category.
func (w *Wrapper) Category() Category {
	return w.contract.Category
}

// Contract returns the wrapped model's contract.
func (w *Wrapper) Contract() Contract {
	return w.contract
}

// Predict resolves, validates, and scores one request. It always returns a
// record: ok with a probability, or failed with the scoped error recorded.
func (w *Wrapper) Predict(ctx context.Context, feats *pipeline.Features) PredictionRecord {
	start := time.Now()

	vec, err := w.contract.Resolve(feats)
	if err != nil {
		cv := &ContractViolation{ModelID: w.contract.ModelID, Reason: err.Error()}
		return w.failed(start, cv.Error())
	}
	if len(vec) != w.estimator.Dimension() {
		cv := &ContractViolation{
			ModelID: w.contract.ModelID,
			Reason:  fmt.Sprintf("resolved %d features, estimator expects %d", len(vec), w.estimator.Dimension()),
		}
		return w.failed(start, cv.Error())
	}

	p, err := w.invoke(ctx, vec)
	if err != nil {
		pf := &PredictionFailure{ModelID: w.contract.ModelID, Err: err}
		return w.failed(start, pf.Error())
	}

	return PredictionRecord{
		ModelID:       w.contract.ModelID,
		Probability:   &p,
		RawConfidence: rawConfidence(p),
		LatencyMS:     time.Since(start).Milliseconds(),
		Status:        StatusOK,
	}
}

// invoke runs the estimator with a bounded timeout and panic containment.
// A timed-out model is treated the same as a failed one.
func (w *Wrapper) invoke(ctx context.Context, vec []float64) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	type result struct {
		p   float64
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("estimator panic: %v", r)}
			}
		}()
		p, err := w.estimator.PredictProba(vec)
		done <- result{p: p, err: err}
	}()

	select {
	case r := <-done:
		return r.p, r.err
	case <-ctx.Done():
		return 0, fmt.Errorf("estimator timed out: %w", ctx.Err())
	}
}

func (w *Wrapper) failed(start time.Time, msg string) PredictionRecord {
	return PredictionRecord{
		ModelID:   w.contract.ModelID,
		LatencyMS: time.Since(start).Milliseconds(),
		Status:    StatusFailed,
		Error:     msg,
	}
}

// rawConfidence measures how far a probability sits from the uninformative
// midpoint, scaled to [0,1].
func rawConfidence(p float64) float64 {
	c := 2 * (p - 0.5)
	if c < 0 {
		c = -c
	}
	return c
}
