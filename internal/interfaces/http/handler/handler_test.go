package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketplace-risk-engine/internal/application/alerting"
	"marketplace-risk-engine/internal/application/assessment"
	"marketplace-risk-engine/internal/domain/alert"
	"marketplace-risk-engine/internal/domain/marketplace"
	"marketplace-risk-engine/internal/domain/risk"
	"marketplace-risk-engine/internal/infrastructure/analyzer"
	"marketplace-risk-engine/internal/infrastructure/http/router"
	"marketplace-risk-engine/internal/infrastructure/statestore"
	"marketplace-risk-engine/internal/interfaces/http/handler"
	"marketplace-risk-engine/internal/interfaces/realtime"
	"marketplace-risk-engine/internal/pkg/metrics"
)

type stubUsers struct{ users map[string]*marketplace.User }

func (s *stubUsers) GetByID(ctx context.Context, id string) (*marketplace.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, marketplace.ErrUserNotFound
	}
	return u, nil
}

type stubProducts struct{ products map[string]*marketplace.Product }

func (s *stubProducts) GetByID(ctx context.Context, id string) (*marketplace.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, marketplace.ErrProductNotFound
	}
	return p, nil
}

type stubTransactions struct{}

func (stubTransactions) ListByBuyer(ctx context.Context, buyerID string, limit int) ([]*marketplace.Transaction, error) {
	return nil, nil
}

func (stubTransactions) CountByBuyerSince(ctx context.Context, buyerID string, since time.Time, status marketplace.TransactionStatus) (int64, error) {
	return 0, nil
}

type stubChats struct{}

func (stubChats) ListByUserAndProduct(ctx context.Context, userID, productID string) ([]*marketplace.ChatMessage, error) {
	return []*marketplace.ChatMessage{
		{SenderID: userID, ProductID: productID, Body: "barang ready?", SentAt: time.Now().Add(-2 * time.Hour)},
		{SenderID: userID, ProductID: productID, Body: "ok", SentAt: time.Now().Add(-time.Hour)},
		{SenderID: userID, ProductID: productID, Body: "saya transfer", SentAt: time.Now().Add(-30 * time.Minute)},
	}, nil
}

type memAlertRepo struct {
	mu     sync.Mutex
	alerts map[uuid.UUID]*alert.FraudAlert
	order  []uuid.UUID
}

func (r *memAlertRepo) Create(ctx context.Context, a *alert.FraudAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.alerts[a.ID] = &cp
	r.order = append(r.order, a.ID)
	return nil
}

func (r *memAlertRepo) GetByID(ctx context.Context, id uuid.UUID) (*alert.FraudAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return nil, alert.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memAlertRepo) List(ctx context.Context, status alert.Status, limit, offset int) ([]*alert.FraudAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
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

func (r *memAlertRepo) UpdateStatus(ctx context.Context, id uuid.UUID, update alert.StatusUpdate) (*alert.FraudAlert, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok || a.Status != update.From {
		return nil, false, nil
	}
	a.Status = update.To
	if update.To == alert.StatusAcknowledged {
		a.AcknowledgedBy = update.ReviewerID
		at := update.At
		a.AcknowledgedAt = &at
	} else {
		a.ResolvedBy = update.ReviewerID
		at := update.At
		a.ResolvedAt = &at
		a.ResolutionNote = update.Note
	}
	cp := *a
	return &cp, true, nil
}

func (r *memAlertRepo) AggregateStats(ctx context.Context) (*alert.Stats, error) {
	return alert.NewStats(), nil
}

type pingOK struct{}

func (pingOK) Ping(ctx context.Context) error { return nil }

type apiFixture struct {
	handler    http.Handler
	dispatcher *alerting.Dispatcher
	repo       *memAlertRepo
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	logger := zap.NewNop()
	store := statestore.NewMemoryStore()
	m := metrics.New(prometheus.NewRegistry())

	users := &stubUsers{users: map[string]*marketplace.User{
		"buyer-1":  {ID: "buyer-1", Username: "budi", CreatedAt: time.Now().Add(-400 * 24 * time.Hour)},
		"seller-1": {ID: "seller-1", Username: "toko", SellerRating: 4.8, SellerReviews: 40, CreatedAt: time.Now().Add(-900 * 24 * time.Hour)},
	}}
	products := &stubProducts{products: map[string]*marketplace.Product{
		"prod-1": {ID: "prod-1", SellerID: "seller-1", Title: "Sepatu Lari", Price: decimal.NewFromInt(800_000)},
	}}

	device := analyzer.NewDeviceAnalyzer("test-salt")
	engine := assessment.NewEngine(
		users, products, stubTransactions{}, stubChats{},
		analyzer.NewVelocityTracker(statestore.NewMemoryStore(), statestore.NewMemoryStore(), m, logger),
		device,
		analyzer.NewBehaviorAnalyzer(stubTransactions{}, logger),
		analyzer.NewGeoAnalyzer(store),
		store, m, logger, assessment.DefaultConfig(),
	)

	repo := &memAlertRepo{alerts: make(map[uuid.UUID]*alert.FraudAlert)}
	dispatcher := alerting.NewDispatcher(repo, store, nil, nil, m, logger)

	r := router.NewRouter(
		handler.NewRiskHandler(engine, dispatcher, assessment.NewLockManager(store), device),
		handler.NewAlertHandler(dispatcher),
		handler.NewHealthHandler(pingOK{}, store, "test"),
		realtime.NewHub(logger),
	)
	return &apiFixture{handler: r.Handler(), dispatcher: dispatcher, repo: repo}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "id-ID")
	req.RemoteAddr = "203.0.113.9:51234"
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestAssessEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/risk/assess", map[string]string{
		"user_id":    "buyer-1",
		"product_id": "prod-1",
		"amount":     "800000",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Assessment *risk.Assessment `json:"assessment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Assessment)
	assert.Equal(t, "buyer-1", resp.Assessment.UserID)
	assert.NotEmpty(t, resp.Assessment.Level)
}

func TestAssessEndpointValidation(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing user", map[string]string{"product_id": "prod-1", "amount": "1000"}},
		{"missing product", map[string]string{"user_id": "buyer-1", "amount": "1000"}},
		{"negative amount", map[string]string{"user_id": "buyer-1", "product_id": "prod-1", "amount": "-5"}},
		{"unparseable amount", map[string]string{"user_id": "buyer-1", "product_id": "prod-1", "amount": "lots"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/risk/assess", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAssessUnknownUserStillResponds(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/risk/assess", map[string]string{
		"user_id":    "ghost",
		"product_id": "prod-1",
		"amount":     "1000",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Assessment *risk.Assessment `json:"assessment"`
		AlertIDs   []string         `json:"alert_ids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, risk.LevelCritical, resp.Assessment.Level)
	assert.NotEmpty(t, resp.AlertIDs, "a critical assessment raises alerts")
}

func TestCachedAssessmentEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/risk/assessments/buyer-1/prod-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.do(t, http.MethodPost, "/api/v1/risk/assess", map[string]string{
		"user_id": "buyer-1", "product_id": "prod-1", "amount": "800000",
	})

	rec = f.do(t, http.MethodGet, "/api/v1/risk/assessments/buyer-1/prod-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var a risk.Assessment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Equal(t, "prod-1", a.ProductID)
}

func TestLockEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/risk/locks", map[string]string{"transaction_id": "tx-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var first struct {
		Acquired    bool   `json:"acquired"`
		Fingerprint string `json:"fingerprint"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.True(t, first.Acquired)
	require.NotEmpty(t, first.Fingerprint)

	// Same device shape competes for the same lock.
	rec = f.do(t, http.MethodPost, "/api/v1/risk/locks", map[string]string{"transaction_id": "tx-2"})
	require.Equal(t, http.StatusConflict, rec.Code)

	var second struct {
		Acquired bool   `json:"acquired"`
		HeldBy   string `json:"held_by"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.False(t, second.Acquired)
	assert.Equal(t, "tx-1", second.HeldBy)

	rec = f.do(t, http.MethodGet, "/api/v1/risk/locks/"+first.Fingerprint, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/risk/locks/unknown-fingerprint", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	created, err := f.dispatcher.Process(ctx, "buyer-1", "tx-1", &risk.Assessment{
		UserID: "buyer-1", ProductID: "prod-1",
		Score: 80, Level: risk.LevelHigh,
		Factors:    []risk.Factor{{Code: risk.FactorVelocity, Message: "12 transactions in the last hour"}},
		AssessedAt: time.Now().UTC(),
	}, decimal.NewFromInt(6_000_000), nil)
	require.NoError(t, err)
	require.Len(t, created, 2)
	id := created[0].ID.String()

	rec := f.do(t, http.MethodGet, "/api/v1/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	assert.Equal(t, 2, listResp.Count)

	rec = f.do(t, http.MethodGet, "/api/v1/alerts/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/alerts/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/alerts/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Resolve before acknowledge is refused.
	rec = f.do(t, http.MethodPost, "/api/v1/alerts/"+id+"/resolve", map[string]string{
		"reviewer_id": "reviewer-1", "note": "checked",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/alerts/"+id+"/acknowledge", map[string]string{
		"reviewer_id": "reviewer-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/alerts/"+id+"/resolve", map[string]string{
		"reviewer_id": "reviewer-1", "note": "confirmed fraud",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resolved alert.FraudAlert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resolved))
	assert.Equal(t, alert.StatusResolved, resolved.Status)

	// Missing reviewer is a validation failure.
	rec = f.do(t, http.MethodPost, "/api/v1/alerts/"+created[1].ID.String()+"/acknowledge", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ready struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, "healthy", ready.Services["database"])

	rec = f.do(t, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
