package model

import "fmt"

// StandardScaler standardizes features as (x - mean) / scale. A zero scale
// leaves the centred value unscaled.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform returns a standardized copy of x.
func (s *StandardScaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out
}

func (s *StandardScaler) validate(nFeatures int) error {
	if len(s.Mean) != nFeatures || len(s.Scale) != nFeatures {
		return fmt.Errorf("scaler has %d means and %d scales for %d features", len(s.Mean), len(s.Scale), nFeatures)
	}
	return nil
}

// Pipeline is an optional scaling step followed by the final estimator.
type Pipeline struct {
	Scaler    *StandardScaler
	Estimator Estimator
}

// Transform applies every step before the final estimator.
func (p *Pipeline) Transform(x []float64) []float64 {
	if p.Scaler == nil {
		return copyFloats(x)
	}
	return p.Scaler.Transform(x)
}
