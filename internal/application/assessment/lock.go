package assessment

import (
	"context"
	"time"

	"marketplace-risk-engine/internal/infrastructure/statestore"
)

// lockTTL bounds how long an abandoned in-flight operation can hold its
// fingerprint.
const lockTTL = 5 * time.Minute

// LockManager hands out cross-process idempotency locks keyed by a
// caller-supplied fingerprint (typically a hash of user, product and
// amount). Acquisition is a single atomic set-if-absent, so concurrent
// duplicate requests resolve deterministically to one winner.
type LockManager struct {
	store statestore.Store
}

// NewLockManager creates the manager over the shared tier.
func NewLockManager(store statestore.Store) *LockManager {
	return &LockManager{store: store}
}

func lockKey(fingerprint string) string {
	return "risk:lock:" + fingerprint
}

// Acquire tries to claim the fingerprint for transactionID. The loser of
// a race can read the winner's transaction ID with Holder.
func (m *LockManager) Acquire(ctx context.Context, fingerprint, transactionID string) bool {
	return m.store.AcquireLock(ctx, lockKey(fingerprint), transactionID, lockTTL)
}

// Holder returns the transaction ID currently holding the fingerprint.
func (m *LockManager) Holder(ctx context.Context, fingerprint string) (string, bool) {
	return m.store.Get(ctx, lockKey(fingerprint))
}
