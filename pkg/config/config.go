// Package config loads the complete, versioned configuration set the
// prediction engine runs on: the canonical feature registry, categorical
// encodings, category weights, verdict thresholds, the archetype library,
// and every model contract with its artifact. Defaults ship embedded in
// the binary; an external config directory overrides them file by file.
package config

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mchmarny/vcpulse/pkg/model"
	"github.com/mchmarny/vcpulse/pkg/pattern"
	"github.com/mchmarny/vcpulse/pkg/pipeline"
	"github.com/mchmarny/vcpulse/pkg/schema"
	"gopkg.in/yaml.v3"
)

const (
	registryFile   = "registry.yaml"
	encodingsFile  = "encodings.yaml"
	weightsFile    = "weights.yaml"
	verdictsFile   = "verdicts.yaml"
	archetypesFile = "archetypes.yaml"
	modelsFile     = "models.yaml"
)

//go:embed defaults/*.yaml defaults/models/*.json
var defaultsFS embed.FS

// ModelSpec pairs a contract with its serialized artifact.
type ModelSpec struct {
	Contract model.Contract
	Artifact []byte
}

// Config is the full, immutable configuration set. Built once at startup
// and passed into the engine constructor; no ambient global state.
type Config struct {
	Registry   *schema.Registry
	Encodings  *pipeline.Encodings
	Weights    *Weights
	Verdicts   *VerdictRules
	Archetypes *pattern.Library
	Models     []ModelSpec
	Timeout    time.Duration
}

type modelsManifest struct {
	Version   string       `yaml:"version"`
	TimeoutMS int          `yaml:"timeout_ms"`
	Models    []modelEntry `yaml:"models"`
}

type modelEntry struct {
	Contract model.Contract `yaml:"contract"`
	Artifact string         `yaml:"artifact"`
}

// Load builds a Config from a directory, falling back to the embedded
// defaults for any file the directory does not carry. Pass an empty dir
// to run entirely on the embedded set.
func Load(dir string) (*Config, error) {
	read := func(name string) ([]byte, error) {
		if dir != "" {
			path := filepath.Join(dir, name)
			b, err := os.ReadFile(path)
			if err == nil {
				return b, nil
			}
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reading %s: %w", path, err)
			}
		}
		b, err := defaultsFS.ReadFile("defaults/" + name)
		if err != nil {
			return nil, fmt.Errorf("no embedded default for %s: %w", name, err)
		}
		return b, nil
	}

	b, err := read(registryFile)
	if err != nil {
		return nil, err
	}
	reg, err := schema.ParseRegistry(b)
	if err != nil {
		return nil, err
	}

	if b, err = read(encodingsFile); err != nil {
		return nil, err
	}
	enc, err := pipeline.ParseEncodings(b)
	if err != nil {
		return nil, err
	}

	if b, err = read(weightsFile); err != nil {
		return nil, err
	}
	weights, err := ParseWeights(b)
	if err != nil {
		return nil, err
	}

	if b, err = read(verdictsFile); err != nil {
		return nil, err
	}
	verdicts, err := ParseVerdicts(b)
	if err != nil {
		return nil, err
	}

	if b, err = read(archetypesFile); err != nil {
		return nil, err
	}
	archetypes, err := pattern.ParseLibrary(b)
	if err != nil {
		return nil, err
	}

	if b, err = read(modelsFile); err != nil {
		return nil, err
	}
	var manifest modelsManifest
	if err := yaml.Unmarshal(b, &manifest); err != nil {
		return nil, fmt.Errorf("parsing model manifest: %w", err)
	}
	if manifest.Version == "" {
		return nil, fmt.Errorf("model manifest has no version")
	}
	if len(manifest.Models) == 0 {
		return nil, fmt.Errorf("model manifest lists no models")
	}

	// Category features must encode: every category feature needs a table
	// before any contract can resolve the base vector.
	for _, spec := range reg.Ordered() {
		if spec.Type == schema.TypeCategory && !enc.Has(spec.Name) {
			return nil, fmt.Errorf("category feature %s has no encoding table", spec.Name)
		}
	}

	specs := make([]ModelSpec, 0, len(manifest.Models))
	for _, entry := range manifest.Models {
		if err := entry.Contract.Validate(reg); err != nil {
			return nil, err
		}
		if entry.Artifact == "" {
			return nil, fmt.Errorf("model %s has no artifact path", entry.Contract.ModelID)
		}
		ab, err := read(entry.Artifact)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", entry.Contract.ModelID, err)
		}
		specs = append(specs, ModelSpec{Contract: entry.Contract, Artifact: ab})
	}

	timeout := time.Duration(manifest.TimeoutMS) * time.Millisecond
	return &Config{
		Registry:   reg,
		Encodings:  enc,
		Weights:    weights,
		Verdicts:   verdicts,
		Archetypes: archetypes,
		Models:     specs,
		Timeout:    timeout,
	}, nil
}
