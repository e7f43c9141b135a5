// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"websentinel/go-server/internal/features"
)

// Classifier maps a normalized feature vector to a probability in [0,1].
type Classifier interface {
	Predict(normalized []float64) (float64, error)
	InputSize() int
}

const (
	ActivationReLU    = "relu"
	ActivationSigmoid = "sigmoid"
	ActivationTanh    = "tanh"
	ActivationLinear  = "linear"
)

// Layer is one dense layer. Weights is indexed [input][unit], the layout
// Keras exports kernels in.
type Layer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"`
}

// DenseNetwork is a feed-forward network loaded from a JSON artifact.
// It is read-only after loading and safe for concurrent Predict calls.
type DenseNetwork struct {
	Version  string   `json:"version"`
	Features []string `json:"features"`
	Layers   []Layer  `json:"layers"`
}

func LoadDenseNetwork(path string) (*DenseNetwork, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Artifact: path, Err: err}
	}
	var net DenseNetwork
	if err := json.Unmarshal(body, &net); err != nil {
		return nil, &ConfigurationError{Artifact: path, Err: fmt.Errorf("invalid model JSON: %w", err)}
	}
	if err := net.Validate(); err != nil {
		return nil, &ConfigurationError{Artifact: path, Err: err}
	}
	return &net, nil
}

// Validate checks the declared features against features.Schema and that
// layer shapes chain into a single sigmoid output.
func (n *DenseNetwork) Validate() error {
	if err := features.ValidateNames(n.Features); err != nil {
		return err
	}
	if len(n.Layers) == 0 {
		return fmt.Errorf("model has no layers")
	}
	in := len(n.Features)
	for i, l := range n.Layers {
		if len(l.Weights) != in {
			return fmt.Errorf("layer %d: %d weight rows, want %d", i, len(l.Weights), in)
		}
		units := len(l.Bias)
		if units == 0 {
			return fmt.Errorf("layer %d: empty bias", i)
		}
		for r, row := range l.Weights {
			if len(row) != units {
				return fmt.Errorf("layer %d row %d: %d columns, want %d", i, r, len(row), units)
			}
		}
		switch l.Activation {
		case ActivationReLU, ActivationSigmoid, ActivationTanh, ActivationLinear:
		default:
			return fmt.Errorf("layer %d: unsupported activation %q", i, l.Activation)
		}
		in = units
	}
	last := n.Layers[len(n.Layers)-1]
	if in != 1 || last.Activation != ActivationSigmoid {
		return fmt.Errorf("output layer must be a single sigmoid unit, got %d %s units", in, last.Activation)
	}
	return nil
}

func (n *DenseNetwork) InputSize() int {
	return len(n.Features)
}

func (n *DenseNetwork) Predict(normalized []float64) (float64, error) {
	if len(normalized) != n.InputSize() {
		return 0, fmt.Errorf("%w: classifier expects %d inputs, got %d",
			features.ErrSchemaMismatch, n.InputSize(), len(normalized))
	}
	x := normalized
	for _, l := range n.Layers {
		out := make([]float64, len(l.Bias))
		copy(out, l.Bias)
		for i, xi := range x {
			if xi == 0 {
				continue
			}
			row := l.Weights[i]
			for j := range out {
				out[j] += xi * row[j]
			}
		}
		for j := range out {
			out[j] = activate(l.Activation, out[j])
		}
		x = out
	}
	p := x[0]
	if math.IsNaN(p) {
		return 0, fmt.Errorf("classifier produced NaN")
	}
	return p, nil
}

func activate(name string, v float64) float64 {
	switch name {
	case ActivationReLU:
		return math.Max(0, v)
	case ActivationSigmoid:
		return 1 / (1 + math.Exp(-v))
	case ActivationTanh:
		return math.Tanh(v)
	default:
		return v
	}
}
