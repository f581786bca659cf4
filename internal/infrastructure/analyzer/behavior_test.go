package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"marketplace-risk-engine/internal/domain/marketplace"
)

type fakeTxRepo struct {
	history []*marketplace.Transaction
	err     error
}

func (f *fakeTxRepo) ListByBuyer(ctx context.Context, buyerID string, limit int) ([]*marketplace.Transaction, error) {
	return f.history, f.err
}

func (f *fakeTxRepo) CountByBuyerSince(ctx context.Context, buyerID string, since time.Time, status marketplace.TransactionStatus) (int64, error) {
	return 0, nil
}

// spacedHistory builds transactions at the given amounts, newest first, one
// hour apart so timing rules stay out of the way.
func spacedHistory(amounts ...int64) []*marketplace.Transaction {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	txs := make([]*marketplace.Transaction, len(amounts))
	for i, a := range amounts {
		txs[i] = &marketplace.Transaction{
			ID:        "tx",
			BuyerID:   "buyer-1",
			Amount:    decimal.NewFromInt(a),
			Status:    marketplace.TxCompleted,
			CreatedAt: base.Add(-time.Duration(i) * time.Hour),
		}
	}
	return txs
}

func TestBehaviorInsufficientHistory(t *testing.T) {
	b := NewBehaviorAnalyzer(&fakeTxRepo{history: spacedHistory(100_000)}, zap.NewNop())

	sig := b.Score(context.Background(), "buyer-1", decimal.NewFromInt(50_000_000))
	assert.Equal(t, 0, sig.Score)
	assert.False(t, sig.IsRisky)
}

func TestBehaviorRepoErrorIsNeutral(t *testing.T) {
	b := NewBehaviorAnalyzer(&fakeTxRepo{err: errors.New("db down")}, zap.NewNop())

	sig := b.Score(context.Background(), "buyer-1", decimal.NewFromInt(50_000_000))
	assert.Equal(t, 0, sig.Score)
}

func TestBehaviorAmountMultiples(t *testing.T) {
	// Identical historical amounts give stddev 0, so only the
	// mean-multiple rules can fire.
	repo := &fakeTxRepo{history: spacedHistory(100_000, 100_000, 100_000, 100_000)}
	b := NewBehaviorAnalyzer(repo, zap.NewNop())

	tests := []struct {
		name   string
		amount int64
		want   int
	}{
		{"in line with baseline", 120_000, 0},
		{"six times the mean", 600_000, 15},
		{"eleven times the mean", 1_100_000, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := b.Score(context.Background(), "buyer-1", decimal.NewFromInt(tt.amount))
			assert.Equal(t, tt.want, sig.Score)
		})
	}
}

func TestBehaviorOutlierStacksWithMultiple(t *testing.T) {
	// Mean 100k with a small spread; an 11x amount is also far past
	// three standard deviations.
	repo := &fakeTxRepo{history: spacedHistory(90_000, 100_000, 110_000, 100_000)}
	b := NewBehaviorAnalyzer(repo, zap.NewNop())

	sig := b.Score(context.Background(), "buyer-1", decimal.NewFromInt(1_100_000))
	assert.Equal(t, 50, sig.Score)
	assert.True(t, sig.IsRisky)
}

func TestBehaviorRapidFirePurchases(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	history := []*marketplace.Transaction{
		{BuyerID: "buyer-1", Amount: decimal.NewFromInt(100_000), CreatedAt: base},
		{BuyerID: "buyer-1", Amount: decimal.NewFromInt(100_000), CreatedAt: base.Add(-time.Minute)},
		{BuyerID: "buyer-1", Amount: decimal.NewFromInt(100_000), CreatedAt: base.Add(-2 * time.Minute)},
		{BuyerID: "buyer-1", Amount: decimal.NewFromInt(100_000), CreatedAt: base.Add(-3 * time.Minute)},
	}
	b := NewBehaviorAnalyzer(&fakeTxRepo{history: history}, zap.NewNop())

	sig := b.Score(context.Background(), "buyer-1", decimal.NewFromInt(100_000))
	assert.Equal(t, 20, sig.Score)
	assert.False(t, sig.IsRisky, "timing alone stays at the boundary")
	assert.Contains(t, sig.Reason, "within minutes")
}
