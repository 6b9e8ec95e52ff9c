package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type registryFile struct {
	Version  string        `yaml:"version"`
	Features []FeatureSpec `yaml:"features"`
}

// ParseRegistry builds a registry from its YAML representation.
func ParseRegistry(b []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parsing registry: %w", err)
	}
	if f.Version == "" {
		return nil, fmt.Errorf("registry has no version")
	}
	return NewRegistry(f.Version, f.Features)
}
