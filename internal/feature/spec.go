// Package feature turns a persisted snapshot document into the fixed-length
// float vector the scorer and the dataset sinks consume. The mapping is
// driven entirely by a versioned YAML spec so that training and inference
// cannot silently diverge: the sha256 over (version, ordered keys) travels
// with every vector ever emitted.
package feature

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Def is one entry of the spec's features list. Exactly one extraction form
// applies per entry: a JSON path, or a one-hot match of a path against a
// constant.
type Def struct {
	Key     string  `yaml:"key"`
	Path    string  `yaml:"path"`
	Type    string  `yaml:"type"`
	Equals  string  `yaml:"equals"`
	Default float64 `yaml:"default_value"`
}

type Output struct {
	FeatureCount int `yaml:"feature_count"`
}

type Spec struct {
	Version  string `yaml:"version"`
	Features []Def  `yaml:"features"`
	Output   Output `yaml:"output"`
}

// LoadSpec parses and structurally checks a feature spec file.
func LoadSpec(path string) (*Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("feature spec not readable (%s): %w", path, err)
	}
	var spec Spec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("feature spec parse failed (%s): %w", path, err)
	}
	if spec.Version == "" {
		return nil, fmt.Errorf("feature spec missing version")
	}
	if len(spec.Features) == 0 {
		return nil, fmt.Errorf("feature spec has no features")
	}
	if spec.Output.FeatureCount == 0 {
		spec.Output.FeatureCount = len(spec.Features)
	}
	if spec.Output.FeatureCount != len(spec.Features) {
		return nil, fmt.Errorf("feature spec count mismatch: output.feature_count=%d features=%d",
			spec.Output.FeatureCount, len(spec.Features))
	}
	seen := make(map[string]bool, len(spec.Features))
	for i, def := range spec.Features {
		key := strings.TrimSpace(def.Key)
		if key == "" {
			return nil, fmt.Errorf("feature %d has empty key", i)
		}
		if seen[key] {
			return nil, fmt.Errorf("duplicate feature key %q", key)
		}
		seen[key] = true
		if strings.TrimSpace(def.Path) == "" {
			return nil, fmt.Errorf("feature %q has no path", key)
		}
		switch def.Type {
		case "", "float", "bool_to_float", "one_hot":
		default:
			return nil, fmt.Errorf("feature %q has unknown type %q", key, def.Type)
		}
		if def.Type == "one_hot" && def.Equals == "" {
			return nil, fmt.Errorf("one_hot feature %q requires equals", key)
		}
	}
	return &spec, nil
}

// Hash is the drift fingerprint: sha256 of "version|key1|key2|...". It must
// match the offline trainer's computation byte for byte.
func (s *Spec) Hash() string {
	keys := make([]string, 0, len(s.Features))
	for _, def := range s.Features {
		keys = append(keys, def.Key)
	}
	payload := s.Version + "|" + strings.Join(keys, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
