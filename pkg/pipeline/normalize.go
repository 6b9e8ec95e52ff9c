package pipeline

import (
	"math"

	"github.com/mchmarny/vcpulse/pkg/schema"
)

// Neutral is the documented stand-in for derived features whose
// denominator is undefined. It is a valid mid-scale score, not a NaN.
const Neutral = 0.5

// Normalize maps a raw feature value onto [0,1] according to the spec's
// declared scale: log for monetary magnitudes spanning orders of magnitude,
// linear for bounded scores and percentages, inverse variants for
// lower-is-better metrics. Booleans map to 0/1 (flipped for inverse scales).
func Normalize(spec schema.FeatureSpec, value any) float64 {
	switch spec.Type {
	case schema.TypeBoolean:
		b, _ := value.(bool)
		n := 0.0
		if b {
			n = 1.0
		}
		if isInverse(spec.Scale) {
			n = 1.0 - n
		}
		return n
	case schema.TypeNumber:
		f, ok := asFloat(value)
		if !ok {
			return Neutral
		}
		return normalizeNumber(spec, f)
	default:
		return Neutral
	}
}

func normalizeNumber(spec schema.FeatureSpec, f float64) float64 {
	var n float64
	switch spec.Scale {
	case schema.ScaleLog, schema.ScaleInvLog:
		max := spec.NormMax
		if max <= 0 {
			return Neutral
		}
		if f < 0 {
			f = 0
		}
		n = math.Log1p(f) / math.Log1p(max)
	case schema.ScaleLinear, schema.ScaleInvLinear, "":
		lo, hi := bounds(spec)
		if hi <= lo {
			return Neutral
		}
		n = (f - lo) / (hi - lo)
	default:
		return Neutral
	}

	n = clamp01(n)
	if isInverse(spec.Scale) {
		n = 1.0 - n
	}
	return n
}

func bounds(spec schema.FeatureSpec) (float64, float64) {
	lo, hi := 0.0, spec.NormMax
	if spec.Min != nil {
		lo = *spec.Min
	}
	if spec.Max != nil {
		hi = *spec.Max
	}
	return lo, hi
}

func isInverse(s schema.Scale) bool {
	return s == schema.ScaleInvLinear || s == schema.ScaleInvLog
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

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
