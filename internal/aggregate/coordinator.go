// Package aggregate fans a product query out to all configured price
// sources concurrently and collects partial results. A failed or slow
// source never blocks the others: each source call runs under its own
// deadline and its failure is recorded as data in the result.
package aggregate

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"smartcart-engine/internal/domain"
	"smartcart-engine/internal/observability"
	"smartcart-engine/internal/source"
)

// Default configuration values.
const (
	DefaultSourceTimeout = 10 * time.Second
	DefaultMaxConcurrent = 8
)

// SourceResult holds the raw observations one source produced.
type SourceResult struct {
	Source       string
	Observations []*domain.RawObservation
}

// FanoutResult collects the outcome of one fan-out pass. Every queried
// source appears exactly once: either in Results or in Failures.
type FanoutResult struct {
	Results  []SourceResult
	Failures []domain.SourceFailure
}

// Coordinator runs concurrent source fan-out.
type Coordinator struct {
	registry      *source.Registry
	sourceTimeout time.Duration
	maxConcurrent int
	logger        *log.Logger
}

// Options contains configuration for creating a Coordinator.
type Options struct {
	Registry *source.Registry

	// SourceTimeout bounds each individual source call. Default 10s.
	SourceTimeout time.Duration

	// MaxConcurrent caps in-flight source calls per pass. Default 8.
	MaxConcurrent int

	Logger *log.Logger
}

// NewCoordinator creates a fan-out coordinator.
func NewCoordinator(opts Options) *Coordinator {
	timeout := opts.SourceTimeout
	if timeout == 0 {
		timeout = DefaultSourceTimeout
	}

	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Coordinator{
		registry:      opts.Registry,
		sourceTimeout: timeout,
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}
}

// FetchPrices queries every source that knows the product for its current
// price. Sources with no id for the product are not queried.
func (c *Coordinator) FetchPrices(ctx context.Context, product *domain.Product) *FanoutResult {
	type task struct {
		client     source.Client
		externalID string
	}

	var tasks []task
	for _, client := range c.registry.All() {
		externalID := product.ExternalID(client.Name())
		if externalID == "" {
			continue
		}
		tasks = append(tasks, task{client: client, externalID: externalID})
	}

	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.client.Name()
	}

	return c.fanout(ctx, names, func(callCtx context.Context, i int) ([]*domain.RawObservation, error) {
		obs, err := tasks[i].client.GetPrice(callCtx, tasks[i].externalID)
		if err != nil {
			return nil, err
		}
		if obs == nil {
			return nil, nil
		}
		return []*domain.RawObservation{obs}, nil
	})
}

// Search fans a free-text query out to every source.
func (c *Coordinator) Search(ctx context.Context, query string) *FanoutResult {
	clients := c.registry.All()

	names := make([]string, len(clients))
	for i, client := range clients {
		names[i] = client.Name()
	}

	return c.fanout(ctx, names, func(callCtx context.Context, i int) ([]*domain.RawObservation, error) {
		return clients[i].Search(callCtx, query)
	})
}

// fanout runs one call per name concurrently, each under its own deadline,
// and waits for the full set. A panicking call is contained and recorded
// as a failure for that source only.
func (c *Coordinator) fanout(ctx context.Context, names []string, call func(ctx context.Context, i int) ([]*domain.RawObservation, error)) *FanoutResult {
	n := len(names)
	results := make([]*SourceResult, n)
	failures := make([]*domain.SourceFailure, n)

	sem := make(chan struct{}, c.maxConcurrent)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			defer func() {
				if r := recover(); r != nil {
					c.logger.Printf("[aggregate] source %s panicked: %v", names[i], r)
					failures[i] = &domain.SourceFailure{
						Source: names[i],
						Reason: domain.FailurePanic,
						Detail: fmt.Sprintf("%v", r),
					}
				}
			}()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				failures[i] = &domain.SourceFailure{
					Source: names[i],
					Reason: source.ClassifyError(ctx.Err()),
					Detail: ctx.Err().Error(),
				}
				return
			}

			callCtx, cancel := context.WithTimeout(ctx, c.sourceTimeout)
			defer cancel()

			start := time.Now()
			obs, err := call(callCtx, i)
			if err != nil {
				observability.RecordSourceCall(names[i], "error", time.Since(start).Seconds())
				failures[i] = &domain.SourceFailure{
					Source: names[i],
					Reason: source.ClassifyError(err),
					Detail: err.Error(),
				}
				return
			}
			observability.RecordSourceCall(names[i], "ok", time.Since(start).Seconds())
			results[i] = &SourceResult{Source: names[i], Observations: obs}
		}(i)
	}
	wg.Wait()

	out := &FanoutResult{}
	for i := 0; i < n; i++ {
		switch {
		case results[i] != nil:
			out.Results = append(out.Results, *results[i])
		case failures[i] != nil:
			out.Failures = append(out.Failures, *failures[i])
		}
	}
	return out
}
