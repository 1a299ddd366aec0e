package forecast

import (
	"fmt"
	"math"
	"math/rand"

	"smartcart-engine/internal/domain"
)

// Forest hyperparameters.
const (
	NumTrees = 100
	seedBase = 42
)

// Forest is a bagged ensemble of regression trees. Each tree is fit on a
// bootstrap resample drawn from a fixed seed so training is reproducible.
type Forest struct {
	Trees []*regressionTree `json:"trees"`
}

// FitForest trains the ensemble on standardized rows.
func FitForest(rows [][domain.FeatureCount]float64, targets []float64) (*Forest, error) {
	if len(rows) == 0 || len(rows) != len(targets) {
		return nil, fmt.Errorf("invalid training set: %d rows, %d targets", len(rows), len(targets))
	}

	f := &Forest{Trees: make([]*regressionTree, NumTrees)}
	n := len(rows)

	for t := 0; t < NumTrees; t++ {
		rng := rand.New(rand.NewSource(seedBase + int64(t)))

		sampleRows := make([][domain.FeatureCount]float64, n)
		sampleTargets := make([]float64, n)
		for i := 0; i < n; i++ {
			j := rng.Intn(n)
			sampleRows[i] = rows[j]
			sampleTargets[i] = targets[j]
		}

		f.Trees[t] = fitTree(sampleRows, sampleTargets)
	}
	return f, nil
}

// Predict averages the per-tree predictions for one row.
func (f *Forest) Predict(row [domain.FeatureCount]float64) float64 {
	sum := 0.0
	for _, t := range f.Trees {
		sum += t.predict(row)
	}
	return sum / float64(len(f.Trees))
}

// RMSE computes in-sample root mean squared error.
func (f *Forest) RMSE(rows [][domain.FeatureCount]float64, targets []float64) float64 {
	if len(rows) == 0 {
		return 0
	}
	sum := 0.0
	for i, row := range rows {
		d := f.Predict(row) - targets[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(rows)))
}
