// Package store persists the identifiers that exhausted their patch
// retries, keyed per run, so failed records can be inspected and re-patched
// later.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/beacx/acx-api-client/pkg/logging"
)

// Redis keys for exhausted-record state.
const (
	keyPrefix  = "acx:exhausted:"
	runsSetKey = "acx:exhausted:runs"
)

// DefaultTTL is how long exhausted-record lists are kept.
const DefaultTTL = 7 * 24 * time.Hour

// ExhaustedStore records exhausted identifiers in Redis.
type ExhaustedStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// New creates a store with the default TTL.
func New(rdb *redis.Client) *ExhaustedStore {
	return &ExhaustedStore{
		rdb:    rdb,
		ttl:    DefaultTTL,
		logger: logging.NewLogger("exhausted-store"),
	}
}

// NewWithTTL creates a store keeping entries for the given duration.
func NewWithTTL(rdb *redis.Client, ttl time.Duration) *ExhaustedStore {
	s := New(rdb)
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

func runKey(runID string) string {
	return keyPrefix + runID
}

// Record appends the identifiers to the run's exhausted list and indexes
// the run. Order of ids is preserved.
func (s *ExhaustedStore) Record(ctx context.Context, runID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}

	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, runKey(runID), members...)
	pipe.Expire(ctx, runKey(runID), s.ttl)
	pipe.SAdd(ctx, runsSetKey, runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record exhausted ids: %w", err)
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("exhausted", len(ids)).
		Msg("Exhausted identifiers recorded")

	return nil
}

// List returns the exhausted identifiers recorded for a run, in the order
// they were recorded. A missing run yields an empty slice.
func (s *ExhaustedStore) List(ctx context.Context, runID string) ([]string, error) {
	ids, err := s.rdb.LRange(ctx, runKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list exhausted ids: %w", err)
	}
	return ids, nil
}

// Runs returns the identifiers of runs that recorded exhausted records.
func (s *ExhaustedStore) Runs(ctx context.Context) ([]string, error) {
	runs, err := s.rdb.SMembers(ctx, runsSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Clear removes a run's exhausted list and its index entry.
func (s *ExhaustedStore) Clear(ctx context.Context, runID string) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, runKey(runID))
	pipe.SRem(ctx, runsSetKey, runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear run %s: %w", runID, err)
	}
	return nil
}
