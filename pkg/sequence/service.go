// Package sequence provides per-key sequential number generation backed by
// a sys_sequences table. Lot numbers use the Strict strategy so a product's
// lots are numbered consecutively.
package sequence

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
)

// Strategy defines the number generation strategy.
type Strategy int

const (
	// StrategyStrict uses UPSERT ... RETURNING for every number.
	// One round trip per number, no in-memory state.
	StrategyStrict Strategy = iota

	// StrategyCached allocates ranges of numbers in memory.
	// Much faster, but may leave gaps if the application restarts.
	StrategyCached
)

// Options configures number generation.
type Options struct {
	Strategy Strategy
	// RangeSize is the number of values to reserve at once in Cached
	// strategy. Default is 50.
	RangeSize int64
}

// DefaultOptions returns standard options (Strict).
func DefaultOptions() *Options {
	return &Options{Strategy: StrategyStrict}
}

// Querier is the minimal database dependency.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type cachedRange struct {
	current int64
	max     int64
}

// Service generates sequential numbers scoped by an arbitrary string key.
// Calls are intentionally executed outside of business transactions, so a
// rolled-back lot creation may leave a gap in lot numbers. Uniqueness, not
// gaplessness, is the contract.
type Service struct {
	querier Querier

	cacheMu sync.Mutex
	ranges  map[string]*cachedRange
}

// New creates a new sequence service.
func New(querier Querier) *Service {
	return &Service{
		querier: querier,
		ranges:  make(map[string]*cachedRange),
	}
}

// Next returns the next value for key.
func (s *Service) Next(ctx context.Context, key string, opts *Options) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("sequence service is not initialized")
	}
	if opts == nil {
		opts = DefaultOptions()
	}

	switch opts.Strategy {
	case StrategyCached:
		return s.nextCached(ctx, key, opts)
	default:
		return s.nextStrict(ctx, key)
	}
}

// NextFormatted returns the next value for key formatted as PREFIX-XXXXX.
func (s *Service) NextFormatted(ctx context.Context, key, prefix string, padWidth int, opts *Options) (string, error) {
	n, err := s.Next(ctx, key, opts)
	if err != nil {
		return "", err
	}
	if padWidth <= 0 {
		padWidth = 5
	}
	return fmt.Sprintf("%s-%0*d", prefix, padWidth, n), nil
}

// nextStrict fetches the next number directly from the DB using UPSERT + RETURNING.
func (s *Service) nextStrict(ctx context.Context, key string) (int64, error) {
	var num int64
	err := s.querier.QueryRow(ctx, `
        INSERT INTO sys_sequences (key, current_val)
        VALUES ($1, 1)
        ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + 1
        RETURNING current_val
	`, key).Scan(&num)
	if err != nil {
		return 0, fmt.Errorf("strict next: %w", err)
	}
	return num, nil
}

// nextCached serves numbers from an in-memory range, refilling from the DB
// when exhausted. current_val in the DB is the last value of the reserved
// range, so the usable range after a refill is (current_val-size, current_val].
func (s *Service) nextCached(ctx context.Context, key string, opts *Options) (int64, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	rng, exists := s.ranges[key]
	if !exists {
		rng = &cachedRange{}
		s.ranges[key] = rng
	}

	if rng.current >= rng.max {
		size := opts.RangeSize
		if size <= 0 {
			size = 50
		}

		var newMax int64
		err := s.querier.QueryRow(ctx, `
            INSERT INTO sys_sequences (key, current_val)
            VALUES ($1, $2)
            ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + $2
            RETURNING current_val
		`, key, size).Scan(&newMax)
		if err != nil {
			return 0, fmt.Errorf("reserve range: %w", err)
		}

		rng.max = newMax
		rng.current = newMax - size
	}

	rng.current++
	return rng.current, nil
}

// Reset clears the cached range for key so the next call refills from the DB.
// Used after manual sequence edits.
func (s *Service) Reset(key string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.ranges, key)
}
