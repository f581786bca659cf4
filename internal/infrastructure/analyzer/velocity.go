package analyzer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketplace-risk-engine/internal/infrastructure/statestore"
	"marketplace-risk-engine/internal/pkg/metrics"
)

// Rolling windows and their thresholds. TTLs are applied on counter
// creation so each window self-expires.
const (
	hourWindow = time.Hour
	dayWindow  = 24 * time.Hour
	weekWindow = 7 * 24 * time.Hour
)

// VelocityTracker counts transactions per user across rolling windows.
//
// The primary tier is the shared store; when it is unavailable the tracker
// degrades to the in-process fallback. The fallback is explicitly weaker:
// counts are per-process and reset on restart, so under multi-process
// deployment concurrent processes see independent (lower) counts. That is
// a documented degradation, not an equivalence claim.
type VelocityTracker struct {
	primary  statestore.Store
	fallback statestore.Store
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewVelocityTracker wires both tiers. m may be nil.
func NewVelocityTracker(primary, fallback statestore.Store, m *metrics.Metrics, logger *zap.Logger) *VelocityTracker {
	return &VelocityTracker{primary: primary, fallback: fallback, metrics: m, logger: logger}
}

// tier selects the store for this call.
func (t *VelocityTracker) tier() statestore.Store {
	if t.primary != nil && t.primary.Available() {
		return t.primary
	}
	if t.metrics != nil {
		t.metrics.StoreFallbacks.Inc()
	}
	t.logger.Warn("velocity tracker using in-process fallback; counts are not shared across processes")
	return t.fallback
}

func velocityKey(userID, window string) string {
	return fmt.Sprintf("risk:velocity:%s:%s", userID, window)
}

// RecordAndScore reads the user's three window counters, scores them
// against the fixed thresholds, then increments all three. The read and
// the increment are not atomic with each other; two concurrent
// assessments may both read a slightly stale count, which is an accepted
// false-negative risk.
func (t *VelocityTracker) RecordAndScore(ctx context.Context, userID string) Signal {
	store := t.tier()

	hour := readCount(ctx, store, velocityKey(userID, "1h"))
	day := readCount(ctx, store, velocityKey(userID, "24h"))
	week := readCount(ctx, store, velocityKey(userID, "7d"))

	score := 0
	var reasons []string

	switch {
	case hour >= 10:
		score += 40
		reasons = append(reasons, fmt.Sprintf("%d transactions in the last hour", hour))
	case hour >= 5:
		score += 20
		reasons = append(reasons, fmt.Sprintf("%d transactions in the last hour", hour))
	}

	switch {
	case day >= 50:
		score += 35
		reasons = append(reasons, fmt.Sprintf("%d transactions in the last 24 hours", day))
	case day >= 20:
		score += 15
		reasons = append(reasons, fmt.Sprintf("%d transactions in the last 24 hours", day))
	}

	if week >= 200 {
		score += 30
		reasons = append(reasons, fmt.Sprintf("%d transactions in the last 7 days", week))
	}

	store.IncrWithTTL(ctx, velocityKey(userID, "1h"), hourWindow)
	store.IncrWithTTL(ctx, velocityKey(userID, "24h"), dayWindow)
	store.IncrWithTTL(ctx, velocityKey(userID, "7d"), weekWindow)

	if score == 0 {
		return none()
	}
	return Signal{
		IsRisky: true,
		Reason:  "transaction velocity: " + strings.Join(reasons, "; "),
		Score:   score,
	}
}

func readCount(ctx context.Context, store statestore.Store, key string) int64 {
	val, ok := store.Get(ctx, key)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
