package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Violation describes one rejected input field.
type Violation struct {
	Field  string `json:"field" yaml:"field"`
	Reason string `json:"reason" yaml:"reason"`
}

// SchemaViolation is returned when an input record contains unknown or
// invalid fields. It is always surfaced to the caller before any model runs.
type SchemaViolation struct {
	Violations []Violation
}

func (e *SchemaViolation) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		fields = append(fields, v.Field)
	}
	return fmt.Sprintf("schema violation on %d field(s): %s", len(e.Violations), strings.Join(fields, ", "))
}

// Record is a validated, normalized input record. Values are float64, bool,
// or string depending on the feature type; only known feature names appear.
type Record map[string]any

// ValidateValue enforces the feature's type and domain on a single raw
// value. Numbers outside the declared range are clamped or rejected per the
// feature's policy; unknown category strings pass through here and are
// mapped to the "other" bucket at encoding time.
func ValidateValue(spec FeatureSpec, value any) (any, error) {
	switch spec.Type {
	case TypeNumber:
		f, ok := toFloat(value)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", value)
		}
		return applyRange(spec, f)
	case TypeBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", value)
		}
		return b, nil
	case TypeCategory:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		return strings.ToLower(strings.TrimSpace(s)), nil
	default:
		return nil, fmt.Errorf("unsupported feature type: %s", spec.Type)
	}
}

func applyRange(spec FeatureSpec, f float64) (any, error) {
	policy := spec.Policy
	if policy == "" {
		policy = PolicyClamp
	}

	if spec.Min != nil && f < *spec.Min {
		if policy == PolicyReject {
			return nil, fmt.Errorf("value %v below minimum %v", f, *spec.Min)
		}
		f = *spec.Min
	}
	if spec.Max != nil && f > *spec.Max {
		if policy == PolicyReject {
			return nil, fmt.Errorf("value %v above maximum %v", f, *spec.Max)
		}
		f = *spec.Max
	}
	return f, nil
}

// ValidateRecord checks every key of a raw input map against the registry.
// Unknown keys and invalid values are collected into a single
// SchemaViolation so the caller sees all offending fields at once.
func (r *Registry) ValidateRecord(raw map[string]any) (Record, error) {
	var violations []Violation
	rec := make(Record, len(raw))

	for name, value := range raw {
		spec, err := r.Get(name)
		if err != nil {
			violations = append(violations, Violation{Field: name, Reason: "unknown feature"})
			continue
		}
		v, err := ValidateValue(spec, value)
		if err != nil {
			violations = append(violations, Violation{Field: name, Reason: err.Error()})
			continue
		}
		rec[name] = v
	}

	if len(violations) > 0 {
		sort.Slice(violations, func(i, j int) bool { return violations[i].Field < violations[j].Field })
		return nil, &SchemaViolation{Violations: violations}
	}
	return rec, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
