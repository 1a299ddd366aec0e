package forecast

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"smartcart-engine/internal/domain"
	"smartcart-engine/internal/feature"
	"smartcart-engine/internal/observability"
	"smartcart-engine/internal/storage"
)

// DefaultRetrainInterval is how long a trained model stays fresh.
const DefaultRetrainInterval = 24 * time.Hour

// Manager owns per-product model lifecycle: absent models are trained on
// first use, stale models serve their last snapshot while retraining runs
// in the background, and persistence failures degrade to retraining.
type Manager struct {
	observations storage.ObservationStore
	models       storage.ModelStore

	retrainInterval time.Duration
	logger          *log.Logger

	mu     sync.Mutex
	states map[string]*productState
}

// productState tracks one product's model. The mutex guards the snapshot
// fields and is never held across a fit on the stale path, so predictions
// read the last snapshot instead of waiting on a background retrain.
type productState struct {
	mu       sync.Mutex
	model    *Model
	loaded   bool
	training bool
}

// ManagerOptions contains configuration for creating a Manager.
type ManagerOptions struct {
	Observations storage.ObservationStore
	Models       storage.ModelStore

	// RetrainInterval is the model freshness window. Default 24h.
	RetrainInterval time.Duration

	Logger *log.Logger
}

// NewManager creates a forecast model manager.
func NewManager(opts ManagerOptions) *Manager {
	interval := opts.RetrainInterval
	if interval == 0 {
		interval = DefaultRetrainInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Manager{
		observations:    opts.Observations,
		models:          opts.Models,
		retrainInterval: interval,
		logger:          logger,
		states:          make(map[string]*productState),
	}
}

// Predict returns one forecast per day 1..daysAhead for the product.
// A missing model is trained synchronously; a stale one serves its last
// snapshot while retraining proceeds in the background. Returns
// ErrInsufficientData when the history cannot support a model.
func (m *Manager) Predict(ctx context.Context, productID string, daysAhead int) ([]*domain.Forecast, error) {
	if daysAhead <= 0 {
		return nil, fmt.Errorf("daysAhead must be positive, got %d", daysAhead)
	}

	state := m.state(productID)
	model, err := m.readyModel(ctx, productID, state)
	if err != nil {
		return nil, err
	}

	history, err := m.observations.GetByProductID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	vectors := feature.FutureVectors(history, daysAhead)
	if len(vectors) != daysAhead {
		return nil, ErrInsufficientData
	}

	confidence := model.Confidence()
	out := make([]*domain.Forecast, 0, daysAhead)
	for day, fv := range vectors {
		price, ok := model.Predict(fv)
		if !ok {
			return nil, ErrInsufficientData
		}
		out = append(out, &domain.Forecast{
			Day:            day + 1,
			DateMs:         fv.TimestampMs,
			PredictedPrice: price,
			Confidence:     confidence,
		})
	}
	return out, nil
}

// Retrain forces a synchronous retrain for the product. The fit runs
// without the product mutex; concurrent predictions keep reading the
// previous snapshot until the new model is swapped in.
func (m *Manager) Retrain(ctx context.Context, productID string) error {
	model, err := m.train(ctx, productID)
	if err != nil {
		return err
	}

	state := m.state(productID)
	state.mu.Lock()
	defer state.mu.Unlock()
	state.model = model
	state.loaded = true
	return nil
}

// readyModel resolves a usable model, training if absent and scheduling a
// background retrain if stale.
func (m *Manager) readyModel(ctx context.Context, productID string, state *productState) (*Model, error) {
	state.mu.Lock()
	defer state.mu.Unlock()

	if !state.loaded {
		state.model = m.loadPersisted(ctx, productID)
		state.loaded = true
	}

	if state.model == nil {
		if err := m.trainLocked(ctx, productID, state); err != nil {
			return nil, err
		}
		return state.model, nil
	}

	if state.model.StaleAfter(m.retrainInterval, time.Now().UnixMilli()) && !state.training {
		state.training = true
		go m.retrainAsync(productID, state)
	}
	return state.model, nil
}

// trainLocked trains under state.mu, for the absent-model path where no
// snapshot exists to serve anyway.
func (m *Manager) trainLocked(ctx context.Context, productID string, state *productState) error {
	model, err := m.train(ctx, productID)
	if err != nil {
		return err
	}
	state.model = model
	state.loaded = true
	return nil
}

// train loads history, fits and persists a model. Runs without any lock:
// stale-path callers must keep serving their snapshot during the fit.
func (m *Manager) train(ctx context.Context, productID string) (*Model, error) {
	history, err := m.observations.GetByProductID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	start := time.Now()
	model, err := m.fit(history)
	if err != nil {
		return nil, err
	}
	observability.RecordModelTrained(time.Since(start).Seconds())

	m.persist(ctx, productID, model)
	return model, nil
}

// fit derives training pairs from a history. Vectors come back in
// observed_at order, so prices are aligned by sorting the same way.
func (m *Manager) fit(history []*domain.PriceObservation) (*Model, error) {
	vectors := feature.HistoricalVectors(history)

	sorted := sortedByObservedAt(history)
	prices := make([]float64, len(sorted))
	for i, o := range sorted {
		prices[i] = o.Price
	}

	return Train(vectors, prices)
}

// retrainAsync refreshes a stale model in the background. The fit runs
// outside the product mutex so concurrent predictions read the stale
// snapshot instead of waiting; the lock is taken only to swap the result.
// The training flag set by the caller keeps retrains single-flight.
func (m *Manager) retrainAsync(productID string, state *productState) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	model, err := m.train(ctx, productID)

	state.mu.Lock()
	defer state.mu.Unlock()
	state.training = false

	if err != nil {
		// keep serving the stale snapshot
		m.logger.Printf("[forecast] retrain for product %s failed: %v", productID, err)
		return
	}
	state.model = model
	state.loaded = true
}

// loadPersisted returns the persisted model or nil. Missing and corrupt
// blobs both read as absent.
func (m *Manager) loadPersisted(ctx context.Context, productID string) *Model {
	blob, err := m.models.Get(ctx, productID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		m.logger.Printf("[forecast] load model for product %s: %v", productID, err)
		return nil
	}

	model, err := DecodeModel(blob)
	if err != nil {
		m.logger.Printf("[forecast] discarding corrupt model for product %s: %v", productID, err)
		return nil
	}
	return model
}

// persist saves model state. Failure is logged, not surfaced: the worst
// case is a retrain from scratch after restart.
func (m *Manager) persist(ctx context.Context, productID string, model *Model) {
	blob, err := EncodeModel(model)
	if err != nil {
		m.logger.Printf("[forecast] encode model for product %s: %v", productID, err)
		return
	}
	if err := m.models.Put(ctx, productID, blob); err != nil {
		m.logger.Printf("[forecast] persist model for product %s: %v", productID, err)
	}
}

func (m *Manager) state(productID string) *productState {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[productID]
	if !ok {
		s = &productState{}
		m.states[productID] = s
	}
	return s
}

func sortedByObservedAt(obs []*domain.PriceObservation) []*domain.PriceObservation {
	out := make([]*domain.PriceObservation, len(obs))
	copy(out, obs)
	sort.Slice(out, func(i, j int) bool {
		if out[i].ObservedAtMs != out[j].ObservedAtMs {
			return out[i].ObservedAtMs < out[j].ObservedAtMs
		}
		return out[i].ID < out[j].ID
	})
	return out
}
