package model

import "fmt"

// ContractViolation means a specific model's required feature vector could
// not be constructed or disagrees in shape. Scoped to one model; the
// orchestrator records it and continues with the rest of the ensemble.
type ContractViolation struct {
	ModelID string
	Reason  string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("contract violation for model %s: %s", e.ModelID, e.Reason)
}

// PredictionFailure means the underlying estimator failed at inference
// time. Scoped to one model, never fatal to the request.
type PredictionFailure struct {
	ModelID string
	Err     error
}

func (e *PredictionFailure) Error() string {
	return fmt.Sprintf("prediction failure for model %s: %v", e.ModelID, e.Err)
}

func (e *PredictionFailure) Unwrap() error {
	return e.Err
}
