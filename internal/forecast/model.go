package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smartcart-engine/internal/domain"
)

// ErrInsufficientData is returned when a product's history is too short
// to fit a model. Callers surface it as "no prediction available".
var ErrInsufficientData = errors.New("insufficient history to train model")

const (
	// MinTrainingPoints is the smallest history that supports training.
	MinTrainingPoints = 14

	modelVersion = 1
)

// Model is the trained per-product forecaster: a feature scaler, a bagged
// tree ensemble and the fit metadata the confidence heuristic needs.
type Model struct {
	Version        int     `json:"version"`
	Scaler         *Scaler `json:"scaler"`
	Forest         *Forest `json:"forest"`
	TrainedAtMs    int64   `json:"trained_at_ms"`
	TrainingPoints int     `json:"training_points"`
	MeanPrice      float64 `json:"mean_price"`
	ResidualRMSE   float64 `json:"residual_rmse"`
}

// Train fits a model from historical vectors and their observed prices.
// The slices are index-aligned; vectors with undefined rolling features
// are excluded from the fit. Returns ErrInsufficientData when fewer than
// MinTrainingPoints historical points exist.
func Train(vectors []*domain.FeatureVector, prices []float64) (*Model, error) {
	if len(vectors) != len(prices) {
		return nil, fmt.Errorf("vector/price length mismatch: %d vs %d", len(vectors), len(prices))
	}
	if len(vectors) < MinTrainingPoints {
		return nil, ErrInsufficientData
	}

	var rows [][domain.FeatureCount]float64
	var targets []float64
	for i, fv := range vectors {
		row, ok := fv.Values()
		if !ok {
			continue
		}
		rows = append(rows, row)
		targets = append(targets, prices[i])
	}
	if len(rows) < 2 {
		return nil, ErrInsufficientData
	}

	scaler, err := FitScaler(rows)
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	scaled := scaler.TransformAll(rows)

	forest, err := FitForest(scaled, targets)
	if err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}

	meanPrice := 0.0
	for _, p := range targets {
		meanPrice += p
	}
	meanPrice /= float64(len(targets))

	return &Model{
		Version:        modelVersion,
		Scaler:         scaler,
		Forest:         forest,
		TrainedAtMs:    time.Now().UnixMilli(),
		TrainingPoints: len(rows),
		MeanPrice:      meanPrice,
		ResidualRMSE:   forest.RMSE(scaled, targets),
	}, nil
}

// Predict returns the model output for one feature vector. Returns false
// when the vector's rolling features are undefined.
func (m *Model) Predict(fv *domain.FeatureVector) (float64, bool) {
	row, ok := fv.Values()
	if !ok {
		return 0, false
	}
	return m.Forest.Predict(m.Scaler.Transform(row)), true
}

// Confidence derives a fit-quality score as one minus the residual error
// normalized by the mean training price, clipped to [0,1]. It is a rough
// heuristic, not a calibrated probability.
func (m *Model) Confidence() float64 {
	if m.MeanPrice <= 0 {
		return 0
	}
	c := 1 - m.ResidualRMSE/m.MeanPrice
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// StaleAfter reports whether the model is older than the given interval.
func (m *Model) StaleAfter(interval time.Duration, nowMs int64) bool {
	return nowMs-m.TrainedAtMs > interval.Milliseconds()
}

// EncodeModel serializes model state for persistence.
func EncodeModel(m *Model) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeModel deserializes persisted model state. An unknown version is
// an error; callers treat any decode error as an absent model.
func DecodeModel(blob []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(blob, &m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if m.Version != modelVersion {
		return nil, fmt.Errorf("unsupported model version %d", m.Version)
	}
	if m.Scaler == nil || m.Forest == nil || len(m.Forest.Trees) == 0 {
		return nil, fmt.Errorf("incomplete model state")
	}
	return &m, nil
}
