// Package assessment implements the risk-assessment engine: it fans a
// prospective purchase out to the specialized analyzers, folds in the
// marketplace context checks, and produces a single explainable
// RiskAssessment for the escrow flow.
package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace-risk-engine/internal/domain/marketplace"
	"marketplace-risk-engine/internal/domain/risk"
	"marketplace-risk-engine/internal/infrastructure/analyzer"
	"marketplace-risk-engine/internal/infrastructure/statestore"
	"marketplace-risk-engine/internal/pkg/metrics"
)

// assessmentCacheTTL bounds how long a cached assessment is reused.
const assessmentCacheTTL = time.Hour

// Config carries the engine's tunable thresholds.
type Config struct {
	// HighValueThreshold is the IDR amount above which a transaction is
	// considered high value.
	HighValueThreshold decimal.Decimal

	// RiskyKeywords flag product titles commonly abused for fraud.
	RiskyKeywords []string

	// AnalysisTimeout bounds a full assessment.
	AnalysisTimeout time.Duration
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		HighValueThreshold: decimal.NewFromInt(5_000_000),
		RiskyKeywords: []string{
			"gift card", "voucher", "top up", "unlock", "cheat",
			"account", "jailbreak", "rare skin",
		},
		AnalysisTimeout: 5 * time.Second,
	}
}

// Engine orchestrates the analyzers and marketplace checks.
type Engine struct {
	users        marketplace.UserRepository
	products     marketplace.ProductRepository
	transactions marketplace.TransactionRepository
	chats        marketplace.ChatRepository

	velocity *analyzer.VelocityTracker
	device   *analyzer.DeviceAnalyzer
	behavior *analyzer.BehaviorAnalyzer
	geo      *analyzer.GeoAnalyzer

	store   statestore.Store
	metrics *metrics.Metrics
	logger  *zap.Logger
	cfg     Config

	now func() time.Time
}

// NewEngine wires the engine. The store is the shared tier used for the
// best-effort assessment cache.
func NewEngine(
	users marketplace.UserRepository,
	products marketplace.ProductRepository,
	transactions marketplace.TransactionRepository,
	chats marketplace.ChatRepository,
	velocity *analyzer.VelocityTracker,
	device *analyzer.DeviceAnalyzer,
	behavior *analyzer.BehaviorAnalyzer,
	geo *analyzer.GeoAnalyzer,
	store statestore.Store,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg Config,
) *Engine {
	return &Engine{
		users:        users,
		products:     products,
		transactions: transactions,
		chats:        chats,
		velocity:     velocity,
		device:       device,
		behavior:     behavior,
		geo:          geo,
		store:        store,
		metrics:      m,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Assess scores a prospective purchase. It never returns an error: missing
// entities short-circuit to a critical assessment, and any unexpected
// failure produces the fixed fail-closed assessment. The escrow caller
// always receives a usable result.
func (e *Engine) Assess(ctx context.Context, userID, productID string, amount decimal.Decimal, rc *risk.RequestContext) (out *risk.Assessment) {
	start := e.now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("risk assessment panicked, failing closed",
				zap.String("user_id", userID), zap.Any("panic", r))
			out = e.failClosed(userID, productID)
		}
		e.metrics.AssessmentDuration.Observe(time.Since(start).Seconds())
		e.metrics.AssessmentsTotal.WithLabelValues(string(out.Level)).Inc()
	}()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.AnalysisTimeout)
	defer cancel()

	user, err := e.users.GetByID(ctx, userID)
	if errors.Is(err, marketplace.ErrUserNotFound) {
		return e.notFound(userID, productID, risk.FactorUserNotFound, "user not found")
	}
	if err != nil {
		e.logger.Error("user lookup failed, failing closed", zap.String("user_id", userID), zap.Error(err))
		return e.failClosed(userID, productID)
	}

	product, err := e.products.GetByID(ctx, productID)
	if errors.Is(err, marketplace.ErrProductNotFound) {
		return e.notFound(userID, productID, risk.FactorProductMissing, "product not found")
	}
	if err != nil {
		e.logger.Error("product lookup failed, failing closed", zap.String("product_id", productID), zap.Error(err))
		return e.failClosed(userID, productID)
	}

	b := newBuilder(userID, productID, e.now())

	e.runClassicChecks(ctx, b, user, product, amount, rc)
	e.runAnalyzers(ctx, b, userID, amount, rc)

	a := b.build()

	// Feed the IP reputation cache so repeat offenders accumulate weight.
	if rc != nil && a.Score > 50 {
		e.geo.RecordReputation(ctx, rc.ClientIP, a.Score)
	}

	e.cacheAssessment(ctx, a)
	return a
}

// runAnalyzers fans out to the four analyzers and attributes their
// signals as coded factors.
func (e *Engine) runAnalyzers(ctx context.Context, b *builder, userID string, amount decimal.Decimal, rc *risk.RequestContext) {
	vel := e.velocity.RecordAndScore(ctx, userID)
	b.profile.Velocity = vel.Score
	if vel.Score > 0 {
		b.add(vel.Score, risk.FactorVelocity, vel.Reason)
	}

	dev := e.device.Score(rc)
	b.profile.Device = dev.Score
	if dev.Score > 0 {
		code := risk.FactorDevice
		if rc != nil && countProxyHeaders(rc) >= 2 {
			code = risk.FactorProxy
		}
		b.add(dev.Score, code, dev.Reason)
	}

	beh := e.behavior.Score(ctx, userID, amount)
	b.profile.Behavioral = beh.Score
	if beh.Score > 0 {
		b.add(beh.Score, risk.FactorBehavioral, beh.Reason)
	}

	geo := e.geo.Score(ctx, rc)
	b.profile.Location = geo.Score
	if geo.Score > 0 {
		b.add(geo.Score, risk.FactorGeo, geo.Reason)
	}
}

// notFound is the short-circuit assessment for a missing user or product.
func (e *Engine) notFound(userID, productID string, code risk.FactorCode, msg string) *risk.Assessment {
	return &risk.Assessment{
		UserID:               userID,
		ProductID:            productID,
		Score:                100,
		Level:                risk.LevelCritical,
		Confidence:           100,
		FraudProbability:     100,
		Factors:              []risk.Factor{{Code: code, Message: msg}},
		Recommendations:      risk.RecommendationsForLevel(risk.LevelCritical),
		Alerts:               []risk.AssessmentAlert{{Severity: risk.AlertCritical, Message: msg, Code: "ENTITY_NOT_FOUND"}},
		RequiresManualReview: true,
		AssessedAt:           e.now().UTC(),
	}
}

// failClosed is the fixed fallback for unexpected failures: more scrutiny,
// never a silent pass.
func (e *Engine) failClosed(userID, productID string) *risk.Assessment {
	return &risk.Assessment{
		UserID:    userID,
		ProductID: productID,
		Score:     85,
		Level:     risk.LevelHigh,
		Confidence: 60,
		FraudProbability: 85,
		Factors: []risk.Factor{{
			Code:    risk.FactorSystemError,
			Message: "assessment error, defaulting to high risk",
		}},
		Recommendations:      risk.RecommendationsForLevel(risk.LevelHigh),
		RequiresManualReview: true,
		AssessedAt:           e.now().UTC(),
	}
}

func assessmentCacheKey(userID, productID string) string {
	return fmt.Sprintf("risk:assessment:%s:%s", userID, productID)
}

// cacheAssessment mirrors the result to the shared store; failures are
// swallowed because the cache is never the record of truth.
func (e *Engine) cacheAssessment(ctx context.Context, a *risk.Assessment) {
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	e.store.Set(ctx, assessmentCacheKey(a.UserID, a.ProductID), string(data), assessmentCacheTTL)
}

// CachedAssessment returns a recent assessment for the pair, if present.
func (e *Engine) CachedAssessment(ctx context.Context, userID, productID string) (*risk.Assessment, bool) {
	val, ok := e.store.Get(ctx, assessmentCacheKey(userID, productID))
	if !ok {
		return nil, false
	}
	var a risk.Assessment
	if err := json.Unmarshal([]byte(val), &a); err != nil {
		return nil, false
	}
	return &a, true
}
