// Package batch provides bounded-parallel processing of artifact work lists.
//
// A Runner drives a caller-supplied per-item handler over a fixed work list
// with a worker pool. The PreRun hook completes before any item is processed
// and the PostRun hook starts only after every item has finished; items
// themselves run concurrently with no ordering guarantee and no automatic
// retry. A handler failure is counted and logged, never propagated to sibling
// items.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for batch runs.
var (
	batchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cidb_batch_items_total",
		Help: "Total batch items processed by outcome",
	}, []string{"outcome"})

	batchRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cidb_batch_run_duration_seconds",
		Help:    "Batch run duration in seconds",
		Buckets: []float64{1, 5, 15, 60, 300, 1800},
	})
)

// Errors returned by the runner.
var (
	// ErrNoItems is returned when a runner is constructed without work items.
	ErrNoItems = errors.New("work list must not be empty")

	// ErrNoHandler is returned when a runner is constructed without a
	// per-item handler.
	ErrNoHandler = errors.New("per-item handler is required")

	// ErrInvalidWorkers is returned for a zero or negative worker bound.
	ErrInvalidWorkers = errors.New("max workers must be greater than zero")

	// ErrAlreadyRan is returned when Run is invoked on an exhausted runner.
	ErrAlreadyRan = errors.New("runner has already been run")
)

// ProcessFunc handles one work item. A nil return counts the item as
// succeeded; an error counts it as errored without affecting sibling items.
type ProcessFunc func(ctx context.Context, item string) error

// Hook runs around the parallel phase. Hooks never run concurrently with item
// processing.
type Hook func(ctx context.Context) error

// Config holds runner configuration.
type Config struct {
	// MaxWorkers bounds the worker pool. Clamped to the work list length.
	MaxWorkers int

	// Process handles each work item (REQUIRED).
	Process ProcessFunc

	// PreRun is invoked once before any item is processed. Optional.
	PreRun Hook

	// PostRun is invoked once after every item has finished. Optional.
	PostRun Hook
}

// Outcome reports the counts of a completed run.
type Outcome struct {
	Attempted int
	Succeeded int
	Errored   int
}

// Runner processes a work list with a fixed-size worker pool. A runner is
// single-use: the work list is consumed exactly once and a second Run returns
// ErrAlreadyRan.
type Runner struct {
	items   []string
	workers int
	process ProcessFunc
	preRun  Hook
	postRun Hook

	ran atomic.Bool
}

// New creates a runner for the given work list. The worker bound is clamped
// to the length of the work list.
func New(items []string, cfg Config) (*Runner, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if cfg.MaxWorkers <= 0 {
		return nil, ErrInvalidWorkers
	}
	if cfg.Process == nil {
		return nil, ErrNoHandler
	}

	workers := cfg.MaxWorkers
	if workers > len(items) {
		workers = len(items)
	}

	return &Runner{
		items:   items,
		workers: workers,
		process: cfg.Process,
		preRun:  cfg.PreRun,
		postRun: cfg.PostRun,
	}, nil
}

// Run processes every work item and blocks until all of them have completed.
// The returned outcome always has Attempted equal to the work list length.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	if !r.ran.CompareAndSwap(false, true) {
		return Outcome{}, ErrAlreadyRan
	}

	start := time.Now()
	defer func() {
		batchRunDuration.Observe(time.Since(start).Seconds())
	}()

	if r.preRun != nil {
		if err := r.preRun(ctx); err != nil {
			return Outcome{}, fmt.Errorf("pre-run hook: %w", err)
		}
	}

	log.Info().
		Int("items", len(r.items)).
		Int("workers", r.workers).
		Msg("Starting batch run")

	var succeeded, errored atomic.Int64

	queue := make(chan string)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go r.worker(ctx, queue, &succeeded, &errored, &wg, i)
	}

	for _, item := range r.items {
		queue <- item
	}
	close(queue)

	// Pool teardown is unconditional: every submitted item completes or
	// errors before the post-run phase starts.
	wg.Wait()

	outcome := Outcome{
		Attempted: len(r.items),
		Succeeded: int(succeeded.Load()),
		Errored:   int(errored.Load()),
	}

	log.Info().
		Int("attempted", outcome.Attempted).
		Int("succeeded", outcome.Succeeded).
		Int("errored", outcome.Errored).
		Dur("duration", time.Since(start)).
		Msg("Batch run complete")

	if r.postRun != nil {
		if err := r.postRun(ctx); err != nil {
			return outcome, fmt.Errorf("post-run hook: %w", err)
		}
	}

	return outcome, nil
}

// worker consumes items from the queue until it is drained.
func (r *Runner) worker(ctx context.Context, queue <-chan string, succeeded, errored *atomic.Int64, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for item := range queue {
		if err := r.processItem(ctx, item); err != nil {
			errored.Add(1)
			batchItemsTotal.WithLabelValues("errored").Inc()
			log.Error().
				Err(err).
				Int("worker_id", workerID).
				Str("item", item).
				Msg("Item processing failed")
			continue
		}
		succeeded.Add(1)
		batchItemsTotal.WithLabelValues("succeeded").Inc()
	}
}

// processItem invokes the handler for one item, converting a panic into an
// error so a failing item never takes down its siblings.
func (r *Runner) processItem(ctx context.Context, item string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic on item %q: %v", item, rec)
		}
	}()
	return r.process(ctx, item)
}
