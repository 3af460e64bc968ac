// Package dispatch runs per-item operations with a hard cap on concurrent
// execution and aggregates per-item outcomes into a run report.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	uatomic "go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"github.com/beacx/acx-api-client/pkg/logging"
	"github.com/beacx/acx-api-client/pkg/notify"
)

// Prometheus metrics for dispatch operations.
var (
	dispatchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acx_dispatch_items_total",
		Help: "Total dispatched items by terminal outcome",
	}, []string{"outcome"})

	dispatchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "acx_dispatch_in_flight",
		Help: "Number of item operations currently executing",
	})
)

// Operation is the per-item action executed under the concurrency cap.
// A nil return marks the item succeeded; any error marks it exhausted.
type Operation func(ctx context.Context, id string) error

// Config holds the dispatcher configuration.
type Config struct {
	// MaxConcurrency caps how many item operations run simultaneously.
	MaxConcurrency int
}

// DefaultConfig returns the standard dispatcher configuration.
func DefaultConfig() Config {
	return Config{MaxConcurrency: 5}
}

// Dispatcher admits items in arrival order through a counting gate and
// waits for every item to reach a terminal outcome. One dispatcher may be
// reused across runs; gate capacity is restored after each run.
type Dispatcher struct {
	cfg    Config
	gate   *semaphore.Weighted
	sink   notify.Sink
	logger zerolog.Logger

	inFlight *uatomic.Int64
	peak     *uatomic.Int64
}

// New creates a dispatcher. A nil sink discards notifications.
func New(cfg Config, sink notify.Sink) *Dispatcher {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	if sink == nil {
		sink = notify.Nop{}
	}

	return &Dispatcher{
		cfg:      cfg,
		gate:     semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		sink:     sink,
		logger:   logging.NewLogger("dispatcher"),
		inFlight: uatomic.NewInt64(0),
		peak:     uatomic.NewInt64(0),
	}
}

// MaxConcurrency returns the configured concurrency cap.
func (d *Dispatcher) MaxConcurrency() int {
	return d.cfg.MaxConcurrency
}

// PeakInFlight returns the highest number of operations observed executing
// at once since the dispatcher was created.
func (d *Dispatcher) PeakInFlight() int {
	return int(d.peak.Load())
}

// Run executes op for every id with at most MaxConcurrency operations in
// flight and blocks until all items have a terminal outcome. Items are
// admitted in slice order. Failure of one item never cancels siblings.
// The returned report is final: exactly one outcome per submitted id.
func (d *Dispatcher) Run(ctx context.Context, ids []string, op Operation) *Report {
	report := &Report{Attempted: len(ids)}
	if len(ids) == 0 {
		return report
	}

	d.logger.Info().
		Int("items", len(ids)).
		Int("max_concurrency", d.cfg.MaxConcurrency).
		Msg("Dispatch started")

	errs := make([]error, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		// Acquire before spawning so admission stays FIFO.
		if err := d.gate.Acquire(ctx, 1); err != nil {
			// The run is being torn down. The item still gets its terminal
			// outcome so the report accounts for every submission.
			errs[i] = fmt.Errorf("admission: %w", err)
			continue
		}

		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			defer d.gate.Release(1)

			n := d.inFlight.Inc()
			dispatchInFlight.Inc()
			d.trackPeak(n)
			defer func() {
				d.inFlight.Dec()
				dispatchInFlight.Dec()
			}()

			d.sink.Notify(fmt.Sprintf("processing item %s", id))
			errs[i] = op(ctx, id)
		}(i, id)
	}

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			report.Exhausted++
			report.ExhaustedIDs = append(report.ExhaustedIDs, ids[i])
			dispatchItemsTotal.WithLabelValues("exhausted").Inc()
			continue
		}
		report.Succeeded++
		dispatchItemsTotal.WithLabelValues("succeeded").Inc()
	}

	d.logger.Info().
		Int("attempted", report.Attempted).
		Int("succeeded", report.Succeeded).
		Int("exhausted", report.Exhausted).
		Int("peak_in_flight", d.PeakInFlight()).
		Msg("Dispatch complete")

	return report
}

func (d *Dispatcher) trackPeak(n int64) {
	for {
		cur := d.peak.Load()
		if n <= cur || d.peak.CAS(cur, n) {
			return
		}
	}
}
