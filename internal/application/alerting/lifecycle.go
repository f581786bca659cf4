package alerting

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"marketplace-risk-engine/internal/domain/alert"
)

// statsFallbackScan caps how many alerts the degraded stats path reads.
const statsFallbackScan = 500

// Acknowledge moves an alert to acknowledged. A missing alert or a
// disallowed transition returns (nil, nil); only I/O failure errors.
func (d *Dispatcher) Acknowledge(ctx context.Context, id uuid.UUID, reviewerID string) (*alert.FraudAlert, error) {
	return d.transition(ctx, id, alert.StatusActive, alert.StatusAcknowledged, reviewerID, "")
}

// Resolve closes an acknowledged alert with a reviewer note.
func (d *Dispatcher) Resolve(ctx context.Context, id uuid.UUID, reviewerID, note string) (*alert.FraudAlert, error) {
	return d.transition(ctx, id, alert.StatusAcknowledged, alert.StatusResolved, reviewerID, note)
}

// MarkFalsePositive closes an alert as a false positive from either
// non-terminal state.
func (d *Dispatcher) MarkFalsePositive(ctx context.Context, id uuid.UUID, reviewerID, note string) (*alert.FraudAlert, error) {
	updated, err := d.transition(ctx, id, alert.StatusActive, alert.StatusFalsePositive, reviewerID, note)
	if updated != nil || err != nil {
		return updated, err
	}
	return d.transition(ctx, id, alert.StatusAcknowledged, alert.StatusFalsePositive, reviewerID, note)
}

// Get returns an alert by id, alert.ErrNotFound when absent.
func (d *Dispatcher) Get(ctx context.Context, id uuid.UUID) (*alert.FraudAlert, error) {
	return d.repo.GetByID(ctx, id)
}

// List returns alerts newest first, filtered by status when non-empty.
func (d *Dispatcher) List(ctx context.Context, status alert.Status, limit, offset int) ([]*alert.FraudAlert, error) {
	return d.repo.List(ctx, status, limit, offset)
}

func (d *Dispatcher) transition(ctx context.Context, id uuid.UUID, from, to alert.Status, reviewerID, note string) (*alert.FraudAlert, error) {
	updated, ok, err := d.repo.UpdateStatus(ctx, id, alert.StatusUpdate{
		From:       from,
		To:         to,
		ReviewerID: reviewerID,
		Note:       note,
		At:         time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	d.refreshMirror(ctx, updated)
	return updated, nil
}

// refreshMirror rewrites the cache copy after a lifecycle change so
// reviewers polling the cache see the new status.
func (d *Dispatcher) refreshMirror(ctx context.Context, fa *alert.FraudAlert) {
	data, err := json.Marshal(fa)
	if err != nil {
		return
	}
	if !d.store.Set(ctx, alertCacheKey(fa.ID), string(data), cacheRetention) {
		d.logger.Warn("alert cache refresh failed", zap.String("alert_id", fa.ID.String()))
	}
}

// Stats returns reviewer dashboard statistics. When the aggregate query
// fails the numbers are recomputed from a bounded list scan and flagged
// degraded rather than failing the call.
func (d *Dispatcher) Stats(ctx context.Context) (*alert.Stats, error) {
	stats, err := d.repo.AggregateStats(ctx)
	if err == nil {
		return stats, nil
	}
	d.logger.Warn("aggregate stats query failed, recomputing from list", zap.Error(err))

	alerts, listErr := d.repo.List(ctx, "", statsFallbackScan, 0)
	if listErr != nil {
		return nil, err
	}
	stats = computeStats(alerts, time.Now().UTC())
	stats.Degraded = true
	return stats, nil
}

// computeStats derives the dashboard numbers from an alert slice.
func computeStats(alerts []*alert.FraudAlert, now time.Time) *alert.Stats {
	stats := alert.NewStats()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var (
		closed         int64
		falsePositives int64
		resolutionSum  float64
		resolutionN    int64
	)
	for _, fa := range alerts {
		stats.ByType[fa.AlertType]++
		stats.ByStatus[fa.Status]++

		if fa.Status == alert.StatusActive {
			stats.TotalActive++
			if fa.Severity == alert.SeverityHigh || fa.Severity == alert.SeverityCritical {
				stats.HighPriority++
			}
		}
		if !fa.CreatedAt.Before(dayStart) {
			stats.TotalToday++
		}
		if fa.Status.IsTerminal() {
			closed++
			if fa.Status == alert.StatusFalsePositive {
				falsePositives++
			}
		}
		if fa.AcknowledgedAt != nil && fa.ResolvedAt != nil {
			resolutionSum += fa.ResolvedAt.Sub(*fa.AcknowledgedAt).Minutes()
			resolutionN++
		}
	}
	if resolutionN > 0 {
		stats.AvgResolutionMinutes = resolutionSum / float64(resolutionN)
	}
	if closed > 0 {
		stats.FalsePositiveRate = float64(falsePositives) / float64(closed) * 100
	}
	return stats
}
