// Package scaler implements the Feature Scaler: z-score
// normalization of flow feature vectors against a trained scikit-learn
// StandardScaler's mean/scale parameters, loaded from a JSON descriptor.
package scaler

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// epsilon guards against division by a near-zero scale, matching the
// reference scaler's behavior of zeroing out a column instead of blowing
// up on it.
const epsilon = 1e-8

// Params holds one scaler's descriptor: the column names it was fit over,
// in order, plus the per-column mean/scale. Columns is carried for
// diagnostics and descriptor validation; Normalize itself only consults
// position, matching the trained model's fixed column ordering.
type Params struct {
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
}

// Scaler normalizes fixed-length feature vectors into new slices against loaded
// Params. The two model stages (autoencoder, classifier) each get their
// own Scaler instance since they were fit on different column sets.
type Scaler struct {
	params Params
}

// Load reads scaler parameters from a JSON file shaped like
// {"mean": [...], "scale": [...]}.
func Load(path string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scaler: read %s: %w", path, err)
	}

	var p Params
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("scaler: parse %s: %w", path, err)
	}
	if err := validateParams(p); err != nil {
		return nil, fmt.Errorf("scaler: %s: %w", path, err)
	}

	return &Scaler{params: p}, nil
}

// New builds a Scaler directly from already-loaded parameters, useful for
// tests that don't want to touch the filesystem.
func New(p Params) (*Scaler, error) {
	if err := validateParams(p); err != nil {
		return nil, fmt.Errorf("scaler: %w", err)
	}
	return &Scaler{params: p}, nil
}

func validateParams(p Params) error {
	if len(p.Mean) != len(p.Scale) {
		return fmt.Errorf("mean has %d entries, scale has %d", len(p.Mean), len(p.Scale))
	}
	if len(p.Columns) > 0 && len(p.Columns) != len(p.Mean) {
		return fmt.Errorf("columns has %d entries, mean has %d", len(p.Columns), len(p.Mean))
	}
	return nil
}

// Len reports the feature-vector length this scaler expects.
func (s *Scaler) Len() int {
	return len(s.params.Mean)
}

// Normalize z-scores vec against the loaded mean/scale, returning a new
// slice the same length as vec. It returns an error if vec's length
// doesn't match the scaler's column count — a mismatch here means the
// caller built the wrong tensor for this model stage.
func (s *Scaler) Normalize(vec []float64) ([]float64, error) {
	if len(vec) != len(s.params.Mean) {
		return nil, fmt.Errorf("scaler: expected %d features, got %d", len(s.params.Mean), len(vec))
	}

	out := make([]float64, len(vec))
	for i, v := range vec {
		scale := s.params.Scale[i]
		if math.Abs(scale) < epsilon {
			out[i] = 0
			continue
		}
		out[i] = (v - s.params.Mean[i]) / scale
	}
	return out, nil
}
