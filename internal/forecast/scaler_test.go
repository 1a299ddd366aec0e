package forecast

import (
	"math"
	"testing"

	"smartcart-engine/internal/domain"
)

func TestFitScaler(t *testing.T) {
	rows := [][domain.FeatureCount]float64{
		{1, 10, 0, 100, 5.0, 0.1, -1},
		{3, 20, 1, 200, 6.0, 0.3, 1},
	}

	s, err := FitScaler(rows)
	if err != nil {
		t.Fatalf("FitScaler: %v", err)
	}

	if s.Mean[0] != 2 {
		t.Errorf("Mean[0] = %v, want 2", s.Mean[0])
	}
	if s.Std[0] != 1 {
		t.Errorf("Std[0] = %v, want 1", s.Std[0])
	}

	got := s.Transform(rows[0])
	if got[0] != -1 {
		t.Errorf("Transform[0] = %v, want -1", got[0])
	}
}

func TestFitScalerStandardizes(t *testing.T) {
	rows := [][domain.FeatureCount]float64{
		{1, 2, 3, 4, 5, 6, 7},
		{2, 4, 6, 8, 10, 12, 14},
		{3, 6, 9, 12, 15, 18, 21},
		{4, 8, 12, 16, 20, 24, 28},
	}

	s, err := FitScaler(rows)
	if err != nil {
		t.Fatalf("FitScaler: %v", err)
	}
	scaled := s.TransformAll(rows)

	for j := 0; j < domain.FeatureCount; j++ {
		mean, variance := 0.0, 0.0
		for _, row := range scaled {
			mean += row[j]
		}
		mean /= float64(len(scaled))
		for _, row := range scaled {
			variance += (row[j] - mean) * (row[j] - mean)
		}
		variance /= float64(len(scaled))

		if math.Abs(mean) > 1e-9 {
			t.Errorf("column %d mean = %v, want 0", j, mean)
		}
		if math.Abs(variance-1) > 1e-9 {
			t.Errorf("column %d variance = %v, want 1", j, variance)
		}
	}
}

func TestFitScalerConstantColumn(t *testing.T) {
	rows := [][domain.FeatureCount]float64{
		{5, 1, 0, 0, 0, 0, 0},
		{5, 2, 0, 0, 0, 0, 0},
	}

	s, err := FitScaler(rows)
	if err != nil {
		t.Fatalf("FitScaler: %v", err)
	}

	got := s.Transform([domain.FeatureCount]float64{5, 1, 0, 0, 0, 0, 0})
	if got[0] != 0 {
		t.Errorf("constant column should transform to 0, got %v", got[0])
	}
	if math.IsNaN(got[0]) || math.IsInf(got[0], 0) {
		t.Error("constant column must not divide by zero")
	}
}

func TestFitScalerEmpty(t *testing.T) {
	if _, err := FitScaler(nil); err == nil {
		t.Error("expected error for empty input")
	}
}
