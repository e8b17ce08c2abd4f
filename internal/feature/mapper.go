package feature

import (
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
)

// Mapper applies a loaded spec to snapshot JSON documents. It is immutable
// after construction and safe for concurrent use.
type Mapper struct {
	spec *Spec
	hash string
}

// Vector is one mapped feature vector plus the spec identity it was produced
// under.
type Vector struct {
	Features []float64
	Version  string
	Hash     string
}

func NewMapper(specPath string) (*Mapper, error) {
	spec, err := LoadSpec(specPath)
	if err != nil {
		return nil, err
	}
	return &Mapper{spec: spec, hash: spec.Hash()}, nil
}

func (m *Mapper) Version() string { return m.spec.Version }
func (m *Mapper) Hash() string    { return m.hash }
func (m *Mapper) Count() int      { return m.spec.Output.FeatureCount }

// Map extracts the vector from a snapshot document. Missing, non-numeric or
// non-finite values fall back to the per-feature default; the output length
// always equals the spec's feature count and never contains NaN/Inf.
func (m *Mapper) Map(snapshotJSON []byte) (Vector, error) {
	if !gjson.ValidBytes(snapshotJSON) {
		return Vector{}, fmt.Errorf("snapshot document is not valid JSON")
	}
	doc := gjson.ParseBytes(snapshotJSON)
	vec := make([]float64, 0, len(m.spec.Features))
	for _, def := range m.spec.Features {
		val := doc.Get(gjsonPath(def.Path))
		vec = append(vec, extract(def, val))
	}
	return Vector{Features: vec, Version: m.spec.Version, Hash: m.hash}, nil
}

// gjsonPath converts the spec's "$.a.b.c" form into a gjson path.
func gjsonPath(p string) string {
	return strings.TrimPrefix(strings.TrimSpace(p), "$.")
}

func extract(def Def, val gjson.Result) float64 {
	switch def.Type {
	case "one_hot":
		if val.Exists() && val.String() == def.Equals {
			return 1
		}
		return 0
	case "bool_to_float":
		if !val.Exists() || val.Type != gjson.True && val.Type != gjson.False {
			return def.Default
		}
		if val.Bool() {
			return 1
		}
		return 0
	default:
		if !val.Exists() || val.Type == gjson.Null {
			return def.Default
		}
		f := val.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return def.Default
		}
		return f
	}
}
