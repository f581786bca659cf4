package analyzer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace-risk-engine/internal/domain/marketplace"
)

// historyLimit bounds how much purchase history feeds the baseline.
const historyLimit = 100

// rapidInterval is the gap below which two consecutive purchases count as
// automated-looking.
const rapidInterval = 5 * time.Minute

// BehaviorAnalyzer compares a prospective amount against the statistical
// baseline of the buyer's purchase history.
type BehaviorAnalyzer struct {
	txRepo marketplace.TransactionRepository
	logger *zap.Logger
}

// NewBehaviorAnalyzer creates the analyzer.
func NewBehaviorAnalyzer(txRepo marketplace.TransactionRepository, logger *zap.Logger) *BehaviorAnalyzer {
	return &BehaviorAnalyzer{txRepo: txRepo, logger: logger}
}

// Score flags amount outliers and repetitive timing patterns. With fewer
// than two historical transactions there is no baseline and no penalty.
// Risky when the score exceeds 20.
func (b *BehaviorAnalyzer) Score(ctx context.Context, userID string, amount decimal.Decimal) Signal {
	history, err := b.txRepo.ListByBuyer(ctx, userID, historyLimit)
	if err != nil {
		b.logger.Warn("behavior analyzer could not load history", zap.String("user_id", userID), zap.Error(err))
		return none()
	}
	if len(history) < 2 {
		return Signal{Reason: "insufficient history for behavioral baseline"}
	}

	amounts := make([]float64, len(history))
	for i, tx := range history {
		amounts[i] = tx.Amount.InexactFloat64()
	}
	mean, stddev := meanStddev(amounts)

	amt := amount.InexactFloat64()
	z := 0.0
	if stddev > 0 {
		z = math.Abs(amt-mean) / stddev
	}

	score := 0
	var reasons []string

	// Amount-multiple rules are mutually exclusive by priority.
	switch {
	case mean > 0 && amt > 10*mean:
		score += 30
		reasons = append(reasons, fmt.Sprintf("amount is %.0fx the historical mean", amt/mean))
	case mean > 0 && amt > 5*mean:
		score += 15
		reasons = append(reasons, fmt.Sprintf("amount is %.0fx the historical mean", amt/mean))
	}

	if z > 3 {
		score += 20
		reasons = append(reasons, fmt.Sprintf("amount deviates %.1f standard deviations from baseline", z))
	}

	if rapidShare(history) > 0.5 {
		score += 20
		reasons = append(reasons, "majority of recent purchases happened within minutes of each other")
	}

	if score == 0 {
		return none()
	}
	return Signal{
		IsRisky: score > 20,
		Reason:  "behavioral signals: " + strings.Join(reasons, "; "),
		Score:   score,
	}
}

// meanStddev returns the mean and population standard deviation.
func meanStddev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

// rapidShare returns the fraction of consecutive inter-transaction
// intervals shorter than rapidInterval. History arrives newest first.
func rapidShare(history []*marketplace.Transaction) float64 {
	if len(history) < 2 {
		return 0
	}
	rapid := 0
	for i := 1; i < len(history); i++ {
		gap := history[i-1].CreatedAt.Sub(history[i].CreatedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap < rapidInterval {
			rapid++
		}
	}
	return float64(rapid) / float64(len(history)-1)
}
