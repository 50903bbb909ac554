// Package store defines the abstract state-store primitives the core
// depends on: typed hash, list, and counter operations on string keys.
// Two implementations are provided: an in-process map (memstore, used
// in dev and tests) and a Redis-backed one (redisstore, used in
// production) — callers depend only on the Store interface.
package store

import "context"

// Store is the StateStore contract. No cross-key atomicity is implied;
// every core invariant is expressed over single-key operations.
type Store interface {
	HashSet(ctx context.Context, key, field, value string) error
	HashGet(ctx context.Context, key, field string) (value string, found bool, err error)
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	HashDelete(ctx context.Context, key, field string) error

	// ListPushLeft pushes value onto the left end of key.
	ListPushLeft(ctx context.Context, key, value string) error
	// ListPopRight pops and returns the rightmost value of key (FIFO with PushLeft).
	ListPopRight(ctx context.Context, key string) (value string, found bool, err error)
	// ListPosition returns the zero-based index of value in key, or found=false.
	ListPosition(ctx context.Context, key, value string) (pos int, found bool, err error)
	ListLength(ctx context.Context, key string) (int64, error)
	// ListRange returns elements between start and stop inclusive; stop=-1 means "to the end".
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	// ListRemove removes up to count occurrences of value from key (count<=0 means all).
	ListRemove(ctx context.Context, key string, count int64, value string) error

	CounterSet(ctx context.Context, key string, value int64) error
	CounterGet(ctx context.Context, key string) (int64, error)
	CounterIncr(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error
}

// Well-known keys used by the core.
const (
	KeyPipelineStates     = "pipeline_states"
	KeyPipelineQueue      = "pipeline_queue"
	KeyPipelineStatistics = "pipeline_statistics"
	KeyWorkerExceptionCount = "METAKEGG_WORKER_EXCEPTION_COUNT"
)
