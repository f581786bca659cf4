// Package alerting turns high-risk assessments into persisted, broadcast
// and lifecycle-tracked fraud alerts for human reviewers.
package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace-risk-engine/internal/domain/alert"
	"marketplace-risk-engine/internal/domain/risk"
	"marketplace-risk-engine/internal/infrastructure/statestore"
	"marketplace-risk-engine/internal/pkg/metrics"
)

// Channel is the pub/sub channel reviewers listen on.
const Channel = "fraud_alerts"

// cacheRetention is the TTL for the cache mirror; the durable store keeps
// alerts indefinitely.
const cacheRetention = 90 * 24 * time.Hour

// activeIndexKey is the shared-store list of recently created alert keys.
const activeIndexKey = "alerts:active"

// SMSNotifier is the optional phone gateway, invoked for severity >= high.
// Failures never affect alert persistence.
type SMSNotifier interface {
	SendAlert(ctx context.Context, rta *alert.RealTimeAlert) error
}

// AuditRecorder receives one audit entry per created alert.
type AuditRecorder interface {
	RecordAlert(ctx context.Context, a *alert.FraudAlert) error
}

// Dispatcher converts assessments into alerts and runs the reviewer
// lifecycle. The durable repository write is the one operation whose
// failure propagates; mirroring, broadcast, SMS and audit are fire-and-
// report.
type Dispatcher struct {
	repo    alert.Repository
	store   statestore.Store
	sms     SMSNotifier
	audit   AuditRecorder
	metrics *metrics.Metrics
	logger  *zap.Logger

	// callback delivers alerts directly when pub/sub is unavailable,
	// e.g. a single-process deployment without the shared store.
	callback func(*alert.RealTimeAlert)
}

// NewDispatcher wires the dispatcher. sms and audit may be nil.
func NewDispatcher(repo alert.Repository, store statestore.Store, sms SMSNotifier, audit AuditRecorder, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:    repo,
		store:   store,
		sms:     sms,
		audit:   audit,
		metrics: m,
		logger:  logger,
	}
}

// RegisterCallback sets the direct delivery path used when the shared
// store's pub/sub is down.
func (d *Dispatcher) RegisterCallback(cb func(*alert.RealTimeAlert)) {
	d.callback = cb
}

// Process persists and broadcasts the alerts an assessment warrants.
// A single assessment can yield several typed alerts. A durable-store
// failure aborts with an error: an un-persisted alert would be a silent
// fraud-detection failure.
func (d *Dispatcher) Process(ctx context.Context, userID, transactionID string, a *risk.Assessment, amount decimal.Decimal, rc *risk.RequestContext) ([]*alert.FraudAlert, error) {
	pending := d.buildAlerts(userID, transactionID, a, amount, rc)

	created := make([]*alert.FraudAlert, 0, len(pending))
	for _, fa := range pending {
		if err := d.repo.Create(ctx, fa); err != nil {
			return created, fmt.Errorf("persist fraud alert: %w", err)
		}
		created = append(created, fa)
		d.metrics.AlertsTotal.WithLabelValues(string(fa.AlertType)).Inc()

		// Everything past the durable write is best-effort.
		d.mirror(ctx, fa)
		d.broadcast(ctx, fa.ToRealTime())
		d.recordAudit(ctx, fa)
		d.notifySMS(ctx, fa)
	}
	return created, nil
}

// buildAlerts derives the alert set from the assessment: one primary
// alert for high/critical levels, plus typed alerts synthesized from the
// coded factors.
func (d *Dispatcher) buildAlerts(userID, transactionID string, a *risk.Assessment, amount decimal.Decimal, rc *risk.RequestContext) []*alert.FraudAlert {
	var out []*alert.FraudAlert

	severity := alert.SeverityForLevel(a.Level)
	meta := buildMetadata(a, amount, rc)

	switch a.Level {
	case risk.LevelCritical:
		out = append(out, d.newAlert(userID, transactionID, a, alert.TypeCriticalRisk, severity,
			"Critical fraud risk detected",
			fmt.Sprintf("Transaction scored %d/100; blocking pending admin approval", a.Score), meta))
	case risk.LevelHigh:
		out = append(out, d.newAlert(userID, transactionID, a, alert.TypeHighRisk, severity,
			"High fraud risk detected",
			fmt.Sprintf("Transaction scored %d/100; manual review required", a.Score), meta))
	}

	// Typed alerts from factor codes, independent of the primary alert.
	seen := make(map[alert.Type]bool)
	for _, f := range a.Factors {
		var (
			t     alert.Type
			title string
		)
		switch f.Code {
		case risk.FactorVelocity, risk.FactorRateBreach:
			t, title = alert.TypeVelocity, "Transaction velocity breach"
		case risk.FactorDevice, risk.FactorProxy, risk.FactorBotUserAgent:
			t, title = alert.TypeDevice, "Suspicious device signals"
		case risk.FactorBehavioral:
			t, title = alert.TypeBehavioral, "Behavioral anomaly"
		default:
			continue
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, d.newAlert(userID, transactionID, a, t, severity, title, f.Message, meta))
	}
	return out
}

func (d *Dispatcher) newAlert(userID, transactionID string, a *risk.Assessment, t alert.Type, severity alert.Severity, title, message string, meta map[string]string) *alert.FraudAlert {
	fa := alert.New(userID, transactionID, t, severity, title, message)
	fa.RiskScore = a.Score
	fa.RiskFactors = a.FactorMessages()
	fa.Metadata = meta
	return fa
}

func buildMetadata(a *risk.Assessment, amount decimal.Decimal, rc *risk.RequestContext) map[string]string {
	meta := map[string]string{
		"product_id":        a.ProductID,
		"amount":            amount.StringFixed(0),
		"fraud_probability": fmt.Sprintf("%d", a.FraudProbability),
		"confidence":        fmt.Sprintf("%d", a.Confidence),
	}
	if rc != nil && rc.ClientIP != "" {
		meta["client_ip"] = rc.ClientIP
	}
	return meta
}

func alertCacheKey(id uuid.UUID) string {
	return "alerts:record:" + id.String()
}

// mirror writes the alert to the cache tier with the retention TTL and
// pushes its key onto the active-alerts index.
func (d *Dispatcher) mirror(ctx context.Context, fa *alert.FraudAlert) {
	data, err := json.Marshal(fa)
	if err != nil {
		return
	}
	key := alertCacheKey(fa.ID)
	if !d.store.Set(ctx, key, string(data), cacheRetention) {
		d.logger.Warn("alert cache mirror failed", zap.String("alert_id", fa.ID.String()))
		return
	}
	d.store.PushList(ctx, activeIndexKey, key, cacheRetention)
}

// broadcast publishes via the shared store when possible, falls back to
// the registered direct callback, and otherwise leaves the alert for
// polling.
func (d *Dispatcher) broadcast(ctx context.Context, rta *alert.RealTimeAlert) {
	payload, err := json.Marshal(rta)
	if err != nil {
		return
	}
	if d.store.Available() && d.store.Publish(ctx, Channel, payload) {
		return
	}
	if d.callback != nil {
		d.callback(rta)
		return
	}
	d.logger.Warn("alert broadcast unavailable, reviewers must poll", zap.String("alert_id", rta.AlertID.String()))
}

func (d *Dispatcher) recordAudit(ctx context.Context, fa *alert.FraudAlert) {
	if d.audit == nil {
		return
	}
	if err := d.audit.RecordAlert(ctx, fa); err != nil {
		d.logger.Warn("alert audit record failed", zap.String("alert_id", fa.ID.String()), zap.Error(err))
	}
}

func (d *Dispatcher) notifySMS(ctx context.Context, fa *alert.FraudAlert) {
	if d.sms == nil {
		return
	}
	if fa.Severity != alert.SeverityHigh && fa.Severity != alert.SeverityCritical {
		return
	}
	if err := d.sms.SendAlert(ctx, fa.ToRealTime()); err != nil {
		d.logger.Warn("sms notification failed", zap.String("alert_id", fa.ID.String()), zap.Error(err))
	}
}
