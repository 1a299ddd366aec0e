// Package forecast fits a per-product price regressor over derived feature
// vectors and serves short-horizon predictions. Model state is serialized
// per product; a missing or corrupt blob degrades to retraining, never to
// a caller-visible fault.
package forecast

import (
	"fmt"
	"math"

	"smartcart-engine/internal/domain"
)

// Scaler standardizes feature columns to zero mean and unit variance.
// Fields are exported for model serialization.
type Scaler struct {
	Mean [domain.FeatureCount]float64 `json:"mean"`
	Std  [domain.FeatureCount]float64 `json:"std"`
}

// FitScaler computes column statistics from training rows.
func FitScaler(rows [][domain.FeatureCount]float64) (*Scaler, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows to fit")
	}

	s := &Scaler{}
	n := float64(len(rows))

	for _, row := range rows {
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= n
	}

	for _, row := range rows {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Std[j] += d * d
		}
	}
	for j := range s.Std {
		s.Std[j] = math.Sqrt(s.Std[j] / n)
		// constant columns pass through unscaled
		if s.Std[j] == 0 {
			s.Std[j] = 1
		}
	}
	return s, nil
}

// Transform standardizes one row.
func (s *Scaler) Transform(row [domain.FeatureCount]float64) [domain.FeatureCount]float64 {
	var out [domain.FeatureCount]float64
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}

// TransformAll standardizes a batch of rows.
func (s *Scaler) TransformAll(rows [][domain.FeatureCount]float64) [][domain.FeatureCount]float64 {
	out := make([][domain.FeatureCount]float64, len(rows))
	for i, row := range rows {
		out[i] = s.Transform(row)
	}
	return out
}
