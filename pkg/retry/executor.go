// Package retry implements the per-item retry executor: it runs a fallible
// operation up to a bounded number of attempts, waiting per the backoff
// policy between attempts, and reports every attempt to a notification sink.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/beacx/acx-api-client/pkg/backoff"
	"github.com/beacx/acx-api-client/pkg/logging"
	"github.com/beacx/acx-api-client/pkg/notify"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acx_patch_retries_total",
		Help: "Total number of retry attempts",
	})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "acx_patch_retry_backoff_seconds",
		Help:    "Backoff duration between retry attempts",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "acx_patch_retry_exhausted_total",
		Help: "Total number of items that exhausted all retry attempts",
	})
)

// Common errors returned by the executor.
var (
	// ErrExhausted is returned when all attempts for an item are exhausted.
	ErrExhausted = errors.New("retry attempts exhausted")

	// ErrAborted is returned when the context ends before a retry slot or
	// backoff wait completes.
	ErrAborted = errors.New("retry aborted")
)

// Operation is one fallible unit of work for a single item.
type Operation func(ctx context.Context) error

// retryable is the capability errors may implement to opt out of retries.
// Errors without it are treated as retryable.
type retryable interface {
	Retryable() bool
}

// IsRetryable reports whether another attempt may be made for err.
func IsRetryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

// Config holds the executor configuration.
type Config struct {
	// MaxAttempts is the total number of attempts per item, including the first.
	MaxAttempts int

	// Policy computes the wait between attempts.
	Policy backoff.Policy

	// Slots bounds how many items may be inside their retry loop at once.
	// A width of 1 serializes all retry churn across the run.
	Slots int
}

// DefaultConfig returns the standard executor configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		Policy:      backoff.Default(),
		Slots:       1,
	}
}

// Executor runs operations under the retry policy. One executor is shared
// by all items of a run: its retry gate bounds retry churn across items
// while first attempts stay ungated.
type Executor struct {
	cfg    Config
	gate   *semaphore.Weighted
	sink   notify.Sink
	logger zerolog.Logger
}

// NewExecutor creates an executor. A nil sink discards notifications.
func NewExecutor(cfg Config, sink notify.Sink) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Slots <= 0 {
		cfg.Slots = 1
	}
	if sink == nil {
		sink = notify.Nop{}
	}

	return &Executor{
		cfg:    cfg,
		gate:   semaphore.NewWeighted(int64(cfg.Slots)),
		sink:   sink,
		logger: logging.NewLogger("retry"),
	}
}

// Do runs op for the named item until it succeeds or attempts are exhausted.
// It returns nil on success, the last error wrapped in ErrExhausted once
// MaxAttempts attempts have failed, or the error itself when it is not
// retryable.
func (e *Executor) Do(ctx context.Context, item string, op Operation) error {
	err := e.attempt(ctx, item, 1, op)
	if err == nil {
		return nil
	}
	if !IsRetryable(err) {
		e.logger.Warn().
			Str("record_id", item).
			Err(err).
			Msg("Error not retryable, giving up")
		return err
	}

	// All retry churn for the run flows through the shared gate. The first
	// attempt above runs ungated so healthy items never queue behind a
	// failure storm.
	if acqErr := e.gate.Acquire(ctx, 1); acqErr != nil {
		return fmt.Errorf("%w: %v (last error: %v)", ErrAborted, acqErr, err)
	}
	defer e.gate.Release(1)

	lastErr := err
	for att := 1; att < e.cfg.MaxAttempts; att++ {
		delay := e.cfg.Policy.Delay(att)
		retriesTotal.Inc()
		retryBackoffSeconds.Observe(delay.Seconds())
		e.sink.Notify(fmt.Sprintf("%s: retrying in %s (attempt %d/%d failed)", item, delay, att, e.cfg.MaxAttempts))
		e.logger.Debug().
			Str("record_id", item).
			Int("attempt", att).
			Dur("backoff", delay).
			Msg("Waiting before retry")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v (last error: %v)", ErrAborted, ctx.Err(), lastErr)
		case <-time.After(delay):
		}

		err := e.attempt(ctx, item, att+1, op)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) {
			e.logger.Warn().
				Str("record_id", item).
				Err(err).
				Msg("Error not retryable, giving up")
			return err
		}
	}

	retryExhaustedTotal.Inc()
	e.sink.Notify(fmt.Sprintf("%s: giving up after %d attempts: %v", item, e.cfg.MaxAttempts, lastErr))
	e.logger.Warn().
		Str("record_id", item).
		Int("max_attempts", e.cfg.MaxAttempts).
		Err(lastErr).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %v", ErrExhausted, e.cfg.MaxAttempts, lastErr)
}

// attempt executes op once and reports the outcome.
func (e *Executor) attempt(ctx context.Context, item string, n int, op Operation) error {
	err := op(ctx)
	if err != nil {
		e.sink.Notify(fmt.Sprintf("%s: attempt %d/%d failed: %v", item, n, e.cfg.MaxAttempts, err))
		e.logger.Debug().
			Str("record_id", item).
			Int("attempt", n).
			Err(err).
			Msg("Attempt failed")
		return err
	}

	e.sink.Notify(fmt.Sprintf("%s: attempt %d succeeded", item, n))
	if n > 1 {
		e.logger.Info().
			Str("record_id", item).
			Int("attempt", n).
			Msg("Succeeded after retry")
	}
	return nil
}
