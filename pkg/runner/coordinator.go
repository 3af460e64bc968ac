// Package runner drives one batch patch run: fetch identifiers, dispatch
// the patch operation across them, report the aggregate outcome.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	uatomic "go.uber.org/atomic"

	"github.com/beacx/acx-api-client/pkg/dispatch"
	"github.com/beacx/acx-api-client/pkg/logging"
	"github.com/beacx/acx-api-client/pkg/retry"
)

// State is the coordinator's lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateFetchingIdentifiers
	StateDispatching
	StateReporting
	StateTerminal
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingIdentifiers:
		return "fetching_identifiers"
	case StateDispatching:
		return "dispatching"
	case StateReporting:
		return "reporting"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Lister yields the identifiers of records created inside a time window.
// Failure here is fatal to the run; it is not retried at this layer.
type Lister interface {
	ListRecordIDs(ctx context.Context, windowStart, windowEnd time.Time) ([]string, error)
}

// Patcher applies the patch update to one record.
type Patcher interface {
	PatchRecord(ctx context.Context, id string, patch map[string]any) error
}

// Recorder persists identifiers that exhausted their retries. Persistence
// failures are logged, never escalated.
type Recorder interface {
	Record(ctx context.Context, runID string, ids []string) error
}

// Coordinator wires the lister, the bounded dispatcher and the retry
// executor into one run. It holds no retry logic of its own.
type Coordinator struct {
	lister     Lister
	patcher    Patcher
	dispatcher *dispatch.Dispatcher
	executor   *retry.Executor
	recorder   Recorder
	patch      map[string]any
	logger     zerolog.Logger
	state      *uatomic.Int32
}

// Config holds the coordinator dependencies.
type Config struct {
	Lister     Lister
	Patcher    Patcher
	Dispatcher *dispatch.Dispatcher
	Executor   *retry.Executor

	// Recorder is optional; nil disables exhausted-record persistence.
	Recorder Recorder

	// Patch is the partial update applied to every record.
	Patch map[string]any
}

// New validates cfg and creates a coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Lister == nil {
		return nil, fmt.Errorf("lister is required")
	}
	if cfg.Patcher == nil {
		return nil, fmt.Errorf("patcher is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}

	return &Coordinator{
		lister:     cfg.Lister,
		patcher:    cfg.Patcher,
		dispatcher: cfg.Dispatcher,
		executor:   cfg.Executor,
		recorder:   cfg.Recorder,
		patch:      cfg.Patch,
		logger:     logging.NewLogger("coordinator"),
		state:      uatomic.NewInt32(int32(StateIdle)),
	}, nil
}

// State returns the current lifecycle phase.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
	c.logger.Debug().Str("state", s.String()).Msg("State transition")
}

// Run executes one batch patch pass over the window and returns the final
// report. A fetch failure aborts the run before any dispatch; per-record
// failures end up in the report, not in the returned error.
func (c *Coordinator) Run(ctx context.Context, windowStart, windowEnd time.Time) (*dispatch.Report, error) {
	runID := uuid.NewString()
	start := time.Now()
	defer c.setState(StateTerminal)

	logger := c.logger.With().Str("run_id", runID).Logger()
	logger.Info().
		Time("window_start", windowStart).
		Time("window_end", windowEnd).
		Int("max_concurrency", c.dispatcher.MaxConcurrency()).
		Msg("Run started")

	c.setState(StateFetchingIdentifiers)
	ids, err := c.lister.ListRecordIDs(ctx, windowStart, windowEnd)
	if err != nil {
		logger.Error().Err(err).Msg("Identifier fetch failed, aborting run")
		return nil, fmt.Errorf("fetch identifiers: %w", err)
	}

	c.setState(StateDispatching)
	report := c.dispatcher.Run(ctx, ids, func(ctx context.Context, id string) error {
		return c.executor.Do(ctx, id, func(ctx context.Context) error {
			return c.patcher.PatchRecord(ctx, id, c.patch)
		})
	})

	c.setState(StateReporting)
	if c.recorder != nil && report.Exhausted > 0 {
		if err := c.recorder.Record(ctx, runID, report.ExhaustedIDs); err != nil {
			logger.Warn().Err(err).Msg("Failed to persist exhausted identifiers")
		}
	}

	event := logger.Info()
	if !report.Clean() {
		event = logger.Warn()
	}
	event.
		Int("attempted", report.Attempted).
		Int("succeeded", report.Succeeded).
		Int("exhausted", report.Exhausted).
		Strs("exhausted_ids", report.ExhaustedIDs).
		Dur("duration", time.Since(start)).
		Msg("Run complete")

	return report, nil
}
