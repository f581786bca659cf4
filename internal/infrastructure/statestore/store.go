// Package statestore abstracts the shared low-latency key-value store the
// risk engine uses for counters, cached assessments, idempotency locks and
// alert broadcast. Two implementations exist: a Redis-backed store shared
// across processes, and an in-process fallback with weaker guarantees (not
// shared between processes, lost on restart). Callers depend only on the
// Store interface and must keep working when the shared tier is down.
package statestore

import (
	"context"
	"time"
)

// Handler receives published payloads for a subscribed channel.
type Handler func(payload []byte)

// Store is the capability interface over the shared state tier.
//
// No operation returns an error: underlying I/O failures are caught,
// logged, and reported as the zero value with ok=false so the store can
// never crash a caller. The store must never be the only record of truth
// for anything durable.
type Store interface {
	// Available reports whether the shared tier is currently reachable.
	Available() bool

	// Get fetches a value; ok is false when absent or on failure.
	Get(ctx context.Context, key string) (value string, ok bool)

	// Set writes a value with a TTL; best-effort.
	Set(ctx context.Context, key, value string, ttl time.Duration) bool

	// IncrWithTTL atomically increments a counter, applying the TTL only
	// when the increment created the key. Server-side atomic on the
	// shared tier; never a client-side read-modify-write.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (count int64, ok bool)

	// AcquireLock performs an atomic set-if-absent with TTL. Exactly one
	// of several concurrent callers for the same key wins.
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) bool

	// PushList prepends a value to a list, refreshing the list's TTL.
	PushList(ctx context.Context, key, value string, ttl time.Duration) bool

	// Publish sends a payload to a channel's subscribers.
	Publish(ctx context.Context, channel string, payload []byte) bool

	// Subscribe registers a handler for a channel. Subscribing twice to
	// the same channel replaces the handler rather than double-delivering.
	Subscribe(channel string, h Handler)

	// Close releases the store's resources.
	Close() error
}
