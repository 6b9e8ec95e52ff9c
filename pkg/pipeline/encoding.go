package pipeline

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// OtherBucket is the catch-all code key every encoding table must carry.
// Unknown category values map here, never to the first enum value.
const OtherBucket = "other"

// Encodings is a stable, versioned mapping from category strings to the
// numeric codes models were trained against. Loaded once at startup.
type Encodings struct {
	Version string
	tables  map[string]map[string]float64
}

type encodingsFile struct {
	Version string                        `yaml:"version"`
	Tables  map[string]map[string]float64 `yaml:"tables"`
}

// ParseEncodings builds the encoding set from its YAML representation.
// Every table must declare an "other" bucket.
func ParseEncodings(b []byte) (*Encodings, error) {
	var f encodingsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parsing encodings: %w", err)
	}
	if f.Version == "" {
		return nil, fmt.Errorf("encodings have no version")
	}
	for feature, table := range f.Tables {
		if _, ok := table[OtherBucket]; !ok {
			return nil, fmt.Errorf("encoding table %s has no %q bucket", feature, OtherBucket)
		}
	}
	return &Encodings{Version: f.Version, tables: f.Tables}, nil
}

// Code returns the numeric code for a category value. Unknown values fall
// into the "other" bucket. Fails only when no table exists for the feature.
func (e *Encodings) Code(feature, value string) (float64, error) {
	table, ok := e.tables[feature]
	if !ok {
		return 0, fmt.Errorf("no encoding table for feature: %s", feature)
	}
	if code, ok := table[value]; ok {
		return code, nil
	}
	return table[OtherBucket], nil
}

// Has reports whether an encoding table exists for the feature.
func (e *Encodings) Has(feature string) bool {
	_, ok := e.tables[feature]
	return ok
}
