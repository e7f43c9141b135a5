// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package scoring

import (
	"encoding/json"
	"fmt"
	"os"

	"websentinel/go-server/internal/features"
)

// ConfigurationError means a model or scaler artifact cannot serve the
// feature schema. It is only produced while loading artifacts.
type ConfigurationError struct {
	Artifact string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %v", e.Artifact, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Normalizer applies a pre-fitted per-feature (value - mean) / scale.
type Normalizer struct {
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
}

func LoadNormalizer(path string) (*Normalizer, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Artifact: path, Err: err}
	}
	var n Normalizer
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, &ConfigurationError{Artifact: path, Err: fmt.Errorf("invalid scaler JSON: %w", err)}
	}
	if err := n.Validate(); err != nil {
		return nil, &ConfigurationError{Artifact: path, Err: err}
	}
	return &n, nil
}

// Validate checks the parameters against features.Schema.
func (n *Normalizer) Validate() error {
	if err := features.ValidateNames(n.Features); err != nil {
		return err
	}
	if len(n.Mean) != len(n.Features) || len(n.Scale) != len(n.Features) {
		return fmt.Errorf("%w: %d features but %d means and %d scales",
			features.ErrSchemaMismatch, len(n.Features), len(n.Mean), len(n.Scale))
	}
	return nil
}

func (n *Normalizer) Transform(v features.Vector) ([]float64, error) {
	if v.Len() != len(n.Features) {
		return nil, fmt.Errorf("%w: vector has %d values, scaler expects %d",
			features.ErrSchemaMismatch, v.Len(), len(n.Features))
	}
	raw := v.Values()
	out := make([]float64, len(raw))
	for i, val := range raw {
		scale := n.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (val - n.Mean[i]) / scale
	}
	return out, nil
}
