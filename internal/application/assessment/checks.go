package assessment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace-risk-engine/internal/domain/marketplace"
	"marketplace-risk-engine/internal/domain/risk"
)

// Classic check weights. The 15/20/10 trio is observable in the scoring
// contract (new account + high value + missing chat) and the rest are
// balanced around them.
const (
	weightNewAccount    = 15
	weightRecentAccount = 8
	weightHighValue     = 20
	weightFailedHistory = 15
	weightSellerRisk    = 12
	weightRiskyProduct  = 10
	weightNoChat        = 10
	weightThinChat      = 6
	weightUnusualHour   = 8
	weightBotUserAgent  = 12
	weightRateBreach    = 15
)

// Account-age and chat-freshness boundaries.
const (
	newAccountAge    = 7 * 24 * time.Hour
	recentAccountAge = 30 * 24 * time.Hour
	thinChatWindow   = 5 * time.Minute
	rateBreachWindow = 10 * time.Minute
	rateBreachCount  = 5
)

// paymentBotKeywords is the coarse user-agent screen for the classic
// payment-signal check; the device analyzer runs a deeper inspection.
var paymentBotKeywords = []string{"bot", "curl", "python", "headless", "script"}

// runClassicChecks accumulates the marketplace-context contributions.
func (e *Engine) runClassicChecks(ctx context.Context, b *builder, user *marketplace.User, product *marketplace.Product, amount decimal.Decimal, rc *risk.RequestContext) {
	now := e.now()

	// Account age.
	switch age := user.AccountAge(now); {
	case age < newAccountAge:
		b.add(weightNewAccount, risk.FactorNewAccount,
			fmt.Sprintf("account is %d days old", int(age.Hours()/24)))
	case age < recentAccountAge:
		b.add(weightRecentAccount, risk.FactorRecentAccount,
			fmt.Sprintf("account is %d days old", int(age.Hours()/24)))
	}

	// High-value transaction.
	if amount.GreaterThan(e.cfg.HighValueThreshold) {
		b.add(weightHighValue, risk.FactorHighValue,
			fmt.Sprintf("amount %s IDR exceeds high-value threshold", amount.StringFixed(0)))
	}

	// Failed-transaction history.
	failed, err := e.transactions.CountByBuyerSince(ctx, user.ID, time.Time{}, marketplace.TxFailed)
	if err != nil {
		e.logger.Warn("failed-transaction count unavailable", zap.String("user_id", user.ID), zap.Error(err))
	} else if failed > 3 {
		b.add(weightFailedHistory, risk.FactorFailedHistory,
			fmt.Sprintf("%d failed transactions on record", failed))
	}

	// Seller reputation.
	if seller, err := e.users.GetByID(ctx, product.SellerID); err != nil {
		e.logger.Warn("seller lookup unavailable", zap.String("seller_id", product.SellerID), zap.Error(err))
	} else if seller.SellerRating < 3.0 || seller.SellerReviews < 5 {
		b.add(weightSellerRisk, risk.FactorSellerRisk,
			fmt.Sprintf("seller rated %.1f with %d reviews", seller.SellerRating, seller.SellerReviews))
	}

	// Risky product keywords.
	title := strings.ToLower(product.Title)
	for _, kw := range e.cfg.RiskyKeywords {
		if strings.Contains(title, kw) {
			b.add(weightRiskyProduct, risk.FactorRiskyProduct,
				fmt.Sprintf("product title matches risky keyword %q", kw))
			break
		}
	}

	// Pre-purchase chat activity.
	e.checkChatActivity(ctx, b, user.ID, product.ID, now)

	// Time of day (23:00-05:00 server-local).
	if hour := now.Hour(); hour >= 23 || hour < 5 {
		b.add(weightUnusualHour, risk.FactorUnusualHour,
			fmt.Sprintf("purchase initiated at %02d:00", hour))
	}

	// Bot-like payment request.
	if rc != nil {
		ua := strings.ToLower(rc.UserAgent)
		for _, kw := range paymentBotKeywords {
			if strings.Contains(ua, kw) {
				b.add(weightBotUserAgent, risk.FactorBotUserAgent,
					"payment request carries an automated user agent")
				break
			}
		}
	}

	// Coarse rate breach from durable history, independent of the
	// velocity tracker's cache-backed windows.
	recent, err := e.transactions.CountByBuyerSince(ctx, user.ID, now.Add(-rateBreachWindow), "")
	if err != nil {
		e.logger.Warn("recent-transaction count unavailable", zap.String("user_id", user.ID), zap.Error(err))
	} else if recent > rateBreachCount {
		b.add(weightRateBreach, risk.FactorRateBreach,
			fmt.Sprintf("%d transactions recorded in the last %d minutes", recent, int(rateBreachWindow.Minutes())))
	}
}

// checkChatActivity penalizes purchases with no or only rushed seller
// contact. Legitimate marketplace buyers almost always ask questions first.
func (e *Engine) checkChatActivity(ctx context.Context, b *builder, userID, productID string, now time.Time) {
	messages, err := e.chats.ListByUserAndProduct(ctx, userID, productID)
	if err != nil {
		e.logger.Warn("chat history unavailable", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if len(messages) == 0 {
		b.add(weightNoChat, risk.FactorNoChatHistory, "no chat with seller before purchase")
		return
	}
	if len(messages) < 3 {
		newest := messages[len(messages)-1]
		if now.Sub(newest.SentAt) < thinChatWindow {
			b.add(weightThinChat, risk.FactorThinChat,
				"only brief seller contact moments before purchase")
		}
	}
}

// countProxyHeaders counts generic forwarding headers for factor
// attribution (proxy vs generic device factor).
func countProxyHeaders(rc *risk.RequestContext) int {
	n := 0
	for _, h := range []string{"x-forwarded-for", "x-real-ip", "forwarded", "client-ip", "via", "x-proxy-id"} {
		if rc.Header(h) != "" {
			n++
		}
	}
	return n
}
