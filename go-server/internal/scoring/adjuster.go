// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package scoring

import (
	"fmt"
	"math"

	"websentinel/go-server/internal/features"
)

const (
	tlsDiscount         = 0.8
	establishedDiscount = 0.7
	spfDiscount         = 0.6

	establishedAfterDays = 365
	HighRiskThreshold    = 0.75

	RiskHigh       = "HIGH RISK"
	RiskLikelySafe = "LIKELY SAFE"
)

// Result is the scorer's output for one vector.
type Result struct {
	RawProbability      float64 `json:"raw_probability"`
	AdjustedProbability float64 `json:"adjusted_probability"`
	RiskTier            string  `json:"risk_tier"`
	FeaturesDetected    int     `json:"features_detected"`
}

// Adjust applies the HTTPS, domain age and SPF discounts in that order and
// clamps to [0,1].
func Adjust(raw float64, v features.Vector) float64 {
	p := raw
	if v.Flag(features.FeatureTLS) {
		p *= tlsDiscount
	}
	if v.Get(features.FeatureDomainAge) > establishedAfterDays {
		p *= establishedDiscount
	}
	if v.Flag(features.FeatureSPF) {
		p *= spfDiscount
	}
	return clamp(p)
}

func RiskTier(adjusted float64) string {
	if adjusted > HighRiskThreshold {
		return RiskHigh
	}
	return RiskLikelySafe
}

func clamp(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Min(1, math.Max(0, p))
}

// Scorer runs normalization, classification and adjustment. It holds only
// read-only artifacts and is safe for concurrent use.
type Scorer struct {
	normalizer *Normalizer
	classifier Classifier
}

// NewScorer checks that both artifacts describe the same input width.
func NewScorer(n *Normalizer, c Classifier) (*Scorer, error) {
	if n == nil || c == nil {
		return nil, &ConfigurationError{Artifact: "scorer", Err: fmt.Errorf("normalizer and classifier are required")}
	}
	if c.InputSize() != len(n.Features) {
		return nil, &ConfigurationError{
			Artifact: "scorer",
			Err: fmt.Errorf("%w: classifier takes %d inputs, scaler has %d",
				features.ErrSchemaMismatch, c.InputSize(), len(n.Features)),
		}
	}
	return &Scorer{normalizer: n, classifier: c}, nil
}

// Load reads and cross-validates the model and scaler artifacts.
func Load(modelPath, scalerPath string) (*Scorer, error) {
	n, err := LoadNormalizer(scalerPath)
	if err != nil {
		return nil, err
	}
	c, err := LoadDenseNetwork(modelPath)
	if err != nil {
		return nil, err
	}
	return NewScorer(n, c)
}

func (s *Scorer) Score(v features.Vector) (Result, error) {
	normalized, err := s.normalizer.Transform(v)
	if err != nil {
		return Result{}, err
	}
	raw, err := s.classifier.Predict(normalized)
	if err != nil {
		return Result{}, err
	}
	adjusted := Adjust(raw, v)
	return Result{
		RawProbability:      raw,
		AdjustedProbability: adjusted,
		RiskTier:            RiskTier(adjusted),
		FeaturesDetected:    v.Detected(),
	}, nil
}
