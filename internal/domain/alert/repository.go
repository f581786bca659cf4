package alert

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StatusUpdate carries a reviewer-initiated transition for the repository.
type StatusUpdate struct {
	From       Status
	To         Status
	ReviewerID string
	Note       string
	At         time.Time
}

// Repository is the durable store for fraud alerts.
// Create failures are fatal to the alert (an un-persisted alert is a
// silent detection failure); everything layered above it is best-effort.
type Repository interface {
	// Create persists a new alert in a single atomic write.
	Create(ctx context.Context, a *FraudAlert) error

	// GetByID retrieves an alert, ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*FraudAlert, error)

	// List retrieves alerts filtered by status (empty = all), newest first.
	List(ctx context.Context, status Status, limit, offset int) ([]*FraudAlert, error)

	// UpdateStatus applies a guarded transition. It returns the updated
	// alert, or (nil, false) when the alert is missing or the transition
	// is not allowed from its current state. It never errors on those
	// conditions, only on I/O failure.
	UpdateStatus(ctx context.Context, id uuid.UUID, update StatusUpdate) (*FraudAlert, bool, error)

	// AggregateStats computes reviewer-facing statistics.
	AggregateStats(ctx context.Context) (*Stats, error)
}
