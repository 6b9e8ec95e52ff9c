package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Estimator is the opaque scoring contract every sub-model satisfies:
// a fixed input dimensionality and a single success probability out.
type Estimator interface {
	Dimension() int
	PredictProba(x []float64) (float64, error)
}

const (
	kindLogistic = "logistic"
	kindStumps   = "stumps"
)

var errDimensionMismatch = errors.New("input dimension mismatch")

// Calibration is an optional Platt-style rescaling of the raw model score.
type Calibration struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// Stump is one thresholded vote of a stump-ensemble artifact.
type Stump struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      float64 `json:"left"`
	Right     float64 `json:"right"`
}

// Artifact is the serialized form a trained model ships in. Training is
// out of scope here; artifacts are produced offline and loaded read-only.
type Artifact struct {
	ModelID      string       `json:"model_id"`
	Version      string       `json:"version"`
	Kind         string       `json:"kind"`
	Dimension    int          `json:"dimension"`
	Intercept    float64      `json:"intercept"`
	Coefficients []float64    `json:"coefficients,omitempty"`
	Stumps       []Stump      `json:"stumps,omitempty"`
	Calibration  *Calibration `json:"calibration,omitempty"`
}

// LoadEstimator parses an artifact and returns a ready estimator. The
// artifact's declared dimension is validated against its parameters so a
// corrupted file fails at load, not at inference.
func LoadEstimator(b []byte) (Estimator, error) {
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("parsing model artifact: %w", err)
	}
	if a.ModelID == "" {
		return nil, errors.New("model artifact has no model_id")
	}
	if a.Dimension <= 0 {
		return nil, fmt.Errorf("model %s: invalid dimension %d", a.ModelID, a.Dimension)
	}

	switch a.Kind {
	case kindLogistic:
		if len(a.Coefficients) != a.Dimension {
			return nil, fmt.Errorf("model %s: %d coefficients for dimension %d", a.ModelID, len(a.Coefficients), a.Dimension)
		}
		return &logisticEstimator{artifact: a}, nil
	case kindStumps:
		if len(a.Stumps) == 0 {
			return nil, fmt.Errorf("model %s: stump artifact has no stumps", a.ModelID)
		}
		for i, s := range a.Stumps {
			if s.Feature < 0 || s.Feature >= a.Dimension {
				return nil, fmt.Errorf("model %s: stump %d references feature %d outside dimension %d", a.ModelID, i, s.Feature, a.Dimension)
			}
		}
		return &stumpEstimator{artifact: a}, nil
	default:
		return nil, fmt.Errorf("model %s: unknown artifact kind %q", a.ModelID, a.Kind)
	}
}

type logisticEstimator struct {
	artifact Artifact
}

func (e *logisticEstimator) Dimension() int {
	return e.artifact.Dimension
}

func (e *logisticEstimator) PredictProba(x []float64) (float64, error) {
	if len(x) != e.artifact.Dimension {
		return 0, fmt.Errorf("%w: got %d, want %d", errDimensionMismatch, len(x), e.artifact.Dimension)
	}
	z := e.artifact.Intercept
	for i, c := range e.artifact.Coefficients {
		z += c * x[i]
	}
	return calibrated(z, e.artifact.Calibration)
}

type stumpEstimator struct {
	artifact Artifact
}

func (e *stumpEstimator) Dimension() int {
	return e.artifact.Dimension
}

func (e *stumpEstimator) PredictProba(x []float64) (float64, error) {
	if len(x) != e.artifact.Dimension {
		return 0, fmt.Errorf("%w: got %d, want %d", errDimensionMismatch, len(x), e.artifact.Dimension)
	}
	z := e.artifact.Intercept
	for _, s := range e.artifact.Stumps {
		if x[s.Feature] <= s.Threshold {
			z += s.Left
		} else {
			z += s.Right
		}
	}
	return calibrated(z, e.artifact.Calibration)
}

func calibrated(z float64, c *Calibration) (float64, error) {
	if c != nil {
		z = c.Slope*z + c.Intercept
	}
	p := sigmoid(z)
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, errors.New("score is not finite")
	}
	return p, nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
