package statestore

import (
	"context"
	"time"
)

// Tiered routes each operation to the shared tier when it is reachable
// and to the in-process fallback otherwise. Data written to one tier is
// not migrated to the other: counters and locks restart in the fallback
// during an outage, which over-counts nothing and under-counts only the
// outage window.
type Tiered struct {
	primary  Store
	fallback Store
}

// NewTiered composes the shared tier with its fallback.
func NewTiered(primary, fallback Store) *Tiered {
	return &Tiered{primary: primary, fallback: fallback}
}

var _ Store = (*Tiered)(nil)

func (t *Tiered) tier() Store {
	if t.primary.Available() {
		return t.primary
	}
	return t.fallback
}

// Available is always true: the fallback tier cannot fail.
func (t *Tiered) Available() bool {
	return true
}

// SharedAvailable reports whether the shared tier specifically is up.
func (t *Tiered) SharedAvailable() bool {
	return t.primary.Available()
}

func (t *Tiered) Get(ctx context.Context, key string) (string, bool) {
	return t.tier().Get(ctx, key)
}

func (t *Tiered) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	return t.tier().Set(ctx, key, value, ttl)
}

func (t *Tiered) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, bool) {
	return t.tier().IncrWithTTL(ctx, key, ttl)
}

func (t *Tiered) AcquireLock(ctx context.Context, key, value string, ttl time.Duration) bool {
	return t.tier().AcquireLock(ctx, key, value, ttl)
}

func (t *Tiered) PushList(ctx context.Context, key, value string, ttl time.Duration) bool {
	return t.tier().PushList(ctx, key, value, ttl)
}

func (t *Tiered) Publish(ctx context.Context, channel string, payload []byte) bool {
	return t.tier().Publish(ctx, channel, payload)
}

// Subscribe registers on both tiers so messages arrive no matter which
// tier the publisher used.
func (t *Tiered) Subscribe(channel string, h Handler) {
	t.primary.Subscribe(channel, h)
	t.fallback.Subscribe(channel, h)
}

func (t *Tiered) Close() error {
	ferr := t.fallback.Close()
	if err := t.primary.Close(); err != nil {
		return err
	}
	return ferr
}
