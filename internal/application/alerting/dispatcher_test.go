package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketplace-risk-engine/internal/domain/alert"
	"marketplace-risk-engine/internal/domain/risk"
	"marketplace-risk-engine/internal/infrastructure/statestore"
	"marketplace-risk-engine/internal/pkg/metrics"
)

type fakeAlertRepo struct {
	mu     sync.Mutex
	alerts map[uuid.UUID]*alert.FraudAlert
	order  []uuid.UUID

	failCreateOn int // 1-based create call that fails, 0 = never
	creates      int
	statsErr     error
	listErr      error
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{alerts: make(map[uuid.UUID]*alert.FraudAlert)}
}

func (r *fakeAlertRepo) Create(ctx context.Context, a *alert.FraudAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.failCreateOn > 0 && r.creates == r.failCreateOn {
		return errors.New("insert failed")
	}
	cp := *a
	r.alerts[a.ID] = &cp
	r.order = append(r.order, a.ID)
	return nil
}

func (r *fakeAlertRepo) GetByID(ctx context.Context, id uuid.UUID) (*alert.FraudAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil, alert.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAlertRepo) List(ctx context.Context, status alert.Status, limit, offset int) ([]*alert.FraudAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*alert.FraudAlert
	for i := len(r.order) - 1; i >= 0; i-- {
		a := r.alerts[r.order[i]]
		if status != "" && a.Status != status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeAlertRepo) UpdateStatus(ctx context.Context, id uuid.UUID, update alert.StatusUpdate) (*alert.FraudAlert, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok || a.Status != update.From {
		return nil, false, nil
	}
	a.Status = update.To
	switch update.To {
	case alert.StatusAcknowledged:
		a.AcknowledgedBy = update.ReviewerID
		at := update.At
		a.AcknowledgedAt = &at
	default:
		a.ResolvedBy = update.ReviewerID
		at := update.At
		a.ResolvedAt = &at
		a.ResolutionNote = update.Note
	}
	cp := *a
	return &cp, true, nil
}

func (r *fakeAlertRepo) AggregateStats(ctx context.Context) (*alert.Stats, error) {
	if r.statsErr != nil {
		return nil, r.statsErr
	}
	return alert.NewStats(), nil
}

type fakeSMS struct {
	mu   sync.Mutex
	sent []*alert.RealTimeAlert
}

func (s *fakeSMS) SendAlert(ctx context.Context, rta *alert.RealTimeAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, rta)
	return nil
}

func newTestDispatcher(repo alert.Repository, store statestore.Store, sms SMSNotifier) *Dispatcher {
	return NewDispatcher(repo, store, sms, nil, metrics.New(prometheus.NewRegistry()), zap.NewNop())
}

func criticalAssessment() *risk.Assessment {
	return &risk.Assessment{
		UserID:           "buyer-1",
		ProductID:        "prod-1",
		Score:            92,
		Level:            risk.LevelCritical,
		FraudProbability: 95,
		Confidence:       90,
		Factors: []risk.Factor{
			{Code: risk.FactorVelocity, Message: "12 transactions in the last hour"},
			{Code: risk.FactorProxy, Message: "proxy identifier combined with forwarding headers"},
			{Code: risk.FactorBehavioral, Message: "amount is 14x the historical mean"},
		},
		AssessedAt: time.Now().UTC(),
	}
}

func TestProcessCriticalAssessmentFansOut(t *testing.T) {
	ctx := context.Background()
	repo := newFakeAlertRepo()
	store := statestore.NewMemoryStore()
	sms := &fakeSMS{}
	d := newTestDispatcher(repo, store, sms)

	rc := risk.NewRequestContext("203.0.113.9", "curl/8.0", nil)
	created, err := d.Process(ctx, "buyer-1", "tx-1", criticalAssessment(), decimal.NewFromInt(7_500_000), rc)
	require.NoError(t, err)
	require.Len(t, created, 4)

	types := make(map[alert.Type]bool)
	for _, fa := range created {
		types[fa.AlertType] = true
		assert.Equal(t, alert.SeverityCritical, fa.Severity)
		assert.Equal(t, 92, fa.RiskScore)
		assert.Equal(t, "7500000", fa.Metadata["amount"])
		assert.Equal(t, "203.0.113.9", fa.Metadata["client_ip"])
	}
	assert.True(t, types[alert.TypeCriticalRisk])
	assert.True(t, types[alert.TypeVelocity])
	assert.True(t, types[alert.TypeDevice])
	assert.True(t, types[alert.TypeBehavioral])

	// Every critical alert goes out over SMS too.
	assert.Len(t, sms.sent, 4)

	// Cache mirror holds each record.
	for _, fa := range created {
		_, ok := store.Get(ctx, "alerts:record:"+fa.ID.String())
		assert.True(t, ok)
	}
}

func TestProcessLowRiskProducesNothing(t *testing.T) {
	repo := newFakeAlertRepo()
	d := newTestDispatcher(repo, statestore.NewMemoryStore(), nil)

	a := &risk.Assessment{
		UserID: "buyer-1", ProductID: "prod-1",
		Score: 15, Level: risk.LevelLow,
		Factors:    []risk.Factor{{Code: risk.FactorRecentAccount, Message: "account is 20 days old"}},
		AssessedAt: time.Now().UTC(),
	}
	created, err := d.Process(context.Background(), "buyer-1", "tx-1", a, decimal.NewFromInt(100_000), nil)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Zero(t, repo.creates)
}

func TestProcessMediumSeveritySkipsSMS(t *testing.T) {
	sms := &fakeSMS{}
	d := newTestDispatcher(newFakeAlertRepo(), statestore.NewMemoryStore(), sms)

	a := &risk.Assessment{
		UserID: "buyer-1", ProductID: "prod-1",
		Score: 40, Level: risk.LevelMedium,
		Factors:    []risk.Factor{{Code: risk.FactorVelocity, Message: "6 transactions in the last hour"}},
		AssessedAt: time.Now().UTC(),
	}
	created, err := d.Process(context.Background(), "buyer-1", "tx-1", a, decimal.NewFromInt(100_000), nil)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, alert.TypeVelocity, created[0].AlertType)
	assert.Equal(t, alert.SeverityMedium, created[0].Severity)
	assert.Empty(t, sms.sent)
}

func TestProcessDurableWriteFailurePropagates(t *testing.T) {
	repo := newFakeAlertRepo()
	repo.failCreateOn = 2
	d := newTestDispatcher(repo, statestore.NewMemoryStore(), nil)

	created, err := d.Process(context.Background(), "buyer-1", "tx-1", criticalAssessment(), decimal.NewFromInt(7_500_000), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist fraud alert")
	assert.Len(t, created, 1, "alerts persisted before the failure are reported")
}

func TestBroadcastFallsBackToCallback(t *testing.T) {
	// A memory store with no channel subscriber cannot deliver the
	// publish, so the direct callback must receive the alert.
	d := newTestDispatcher(newFakeAlertRepo(), statestore.NewMemoryStore(), nil)

	var mu sync.Mutex
	var received []*alert.RealTimeAlert
	d.RegisterCallback(func(rta *alert.RealTimeAlert) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, rta)
	})

	_, err := d.Process(context.Background(), "buyer-1", "tx-1", criticalAssessment(), decimal.NewFromInt(7_500_000), nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 4)
	assert.True(t, received[0].RequiresAction)
	assert.Equal(t, "buyer-1", received[0].UserID)
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	repo := newFakeAlertRepo()
	d := newTestDispatcher(repo, statestore.NewMemoryStore(), nil)

	created, err := d.Process(ctx, "buyer-1", "tx-1", criticalAssessment(), decimal.NewFromInt(7_500_000), nil)
	require.NoError(t, err)
	id := created[0].ID

	// Resolving an alert nobody acknowledged is refused.
	updated, err := d.Resolve(ctx, id, "reviewer-1", "checked")
	require.NoError(t, err)
	assert.Nil(t, updated)

	updated, err = d.Acknowledge(ctx, id, "reviewer-1")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, alert.StatusAcknowledged, updated.Status)
	assert.Equal(t, "reviewer-1", updated.AcknowledgedBy)

	updated, err = d.Resolve(ctx, id, "reviewer-1", "confirmed fraud, account frozen")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, alert.StatusResolved, updated.Status)
	assert.Equal(t, "confirmed fraud, account frozen", updated.ResolutionNote)

	// Terminal alerts accept no further transitions.
	updated, err = d.MarkFalsePositive(ctx, id, "reviewer-2", "")
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestMarkFalsePositiveFromAcknowledged(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(newFakeAlertRepo(), statestore.NewMemoryStore(), nil)

	created, err := d.Process(ctx, "buyer-1", "tx-1", criticalAssessment(), decimal.NewFromInt(7_500_000), nil)
	require.NoError(t, err)
	id := created[0].ID

	_, err = d.Acknowledge(ctx, id, "reviewer-1")
	require.NoError(t, err)

	updated, err := d.MarkFalsePositive(ctx, id, "reviewer-1", "buyer verified by phone")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, alert.StatusFalsePositive, updated.Status)
}

func TestStatsFallsBackToListScan(t *testing.T) {
	ctx := context.Background()
	repo := newFakeAlertRepo()
	repo.statsErr = errors.New("aggregate query failed")
	d := newTestDispatcher(repo, statestore.NewMemoryStore(), nil)

	created, err := d.Process(ctx, "buyer-1", "tx-1", criticalAssessment(), decimal.NewFromInt(7_500_000), nil)
	require.NoError(t, err)
	_, err = d.Acknowledge(ctx, created[0].ID, "reviewer-1")
	require.NoError(t, err)
	_, err = d.MarkFalsePositive(ctx, created[0].ID, "reviewer-1", "verified")
	require.NoError(t, err)

	stats, err := d.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Degraded)
	assert.Equal(t, int64(3), stats.TotalActive)
	assert.Equal(t, int64(3), stats.HighPriority)
	assert.Equal(t, int64(4), stats.TotalToday)
	assert.Equal(t, int64(1), stats.ByStatus[alert.StatusFalsePositive])
	assert.InDelta(t, 100.0, stats.FalsePositiveRate, 0.001)
}

func TestStatsReturnsOriginalErrorWhenListAlsoFails(t *testing.T) {
	repo := newFakeAlertRepo()
	repo.statsErr = errors.New("aggregate query failed")
	repo.listErr = errors.New("list failed")
	d := newTestDispatcher(repo, statestore.NewMemoryStore(), nil)

	_, err := d.Stats(context.Background())
	require.Error(t, err)
	assert.Equal(t, "aggregate query failed", err.Error())
}
