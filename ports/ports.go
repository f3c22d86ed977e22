// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"strconv"
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Shared Store Port
// -----------------------------------------------------------------------------

// StringResult holds the outcome of a batched Get once the batch has run.
// OK is false when the key was absent.
type StringResult struct {
	Val string
	OK  bool
}

// Int returns the value parsed as an integer, 0 for absent or non-numeric
// entries.
func (r StringResult) Int() int64 {
	if !r.OK {
		return 0
	}
	n, err := strconv.ParseInt(r.Val, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// IntResult holds the outcome of a batched IncrBy once the batch has run.
type IntResult struct {
	Val int64
}

// BoolResult holds the outcome of a batched SIsMember once the batch has run.
type BoolResult struct {
	Val bool
}

// Batch collects operations for one atomic round trip against the shared
// store. Read operations return result handles that are populated when the
// batch executes; reading them before KVStore.RunBatch returns is undefined.
type Batch interface {
	Get(key string) *StringResult
	Set(key, value string)
	IncrBy(key string, n int64) *IntResult
	SAdd(key, member string)
	SIsMember(key, member string) *BoolResult
	RPush(key, value string)
	LTrim(key string, start, stop int64)
	ExpireAt(key string, at time.Time)
	Expire(key string, ttl time.Duration)
}

// KVStore is the shared atomic key-value store. Batches apply atomically and
// in order with no intermediate state visible to other callers; there is no
// cross-batch transaction. Failures are fatal to the operation in progress -
// retry policy, if any, belongs to the implementation, never to callers.
type KVStore interface {
	// RunBatch executes the operations queued by fn as one atomic batch.
	RunBatch(ctx context.Context, fn func(Batch)) error

	// Get returns the value at key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set writes value at key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SAdd adds members to the set at key.
	SAdd(ctx context.Context, key string, members ...string) error

	// SMembers returns all members of the set at key.
	SMembers(ctx context.Context, key string) ([]string, error)

	// LRange returns the list elements in [start, stop], inclusive, using
	// the store's list indexing.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// -----------------------------------------------------------------------------
// Event Ports
// -----------------------------------------------------------------------------

// EventSink accepts emitted events. Fire-and-forget from the caller's
// perspective; delivery guarantees are the sink's responsibility.
type EventSink interface {
	// Store persists one event of the given kind.
	Store(ctx context.Context, kind string, payload any) error
}

// -----------------------------------------------------------------------------
// Metric Registry Port
// -----------------------------------------------------------------------------

// MetricRegistry persists per-service metric id/name mappings.
type MetricRegistry interface {
	// SaveMetric registers a metric id and name for a service.
	SaveMetric(ctx context.Context, serviceID, metricID, name string) error

	// MetricName resolves a metric id to its name; empty when unknown.
	MetricName(ctx context.Context, serviceID, metricID string) (string, error)

	// MetricIDs lists all metric ids registered for a service.
	MetricIDs(ctx context.Context, serviceID string) ([]string, error)
}
