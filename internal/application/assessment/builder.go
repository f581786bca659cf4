package assessment

import (
	"time"

	"marketplace-risk-engine/internal/domain/risk"
)

// builder accumulates scoring contributions and derives the final
// assessment in one place so the clamping and derivation rules cannot
// drift between call sites.
type builder struct {
	userID    string
	productID string
	now       time.Time

	raw     int
	factors []risk.Factor
	profile risk.Profile
}

func newBuilder(userID, productID string, now time.Time) *builder {
	return &builder{
		userID:    userID,
		productID: productID,
		now:       now,
	}
}

// add records a weighted contribution with its coded explanation.
func (b *builder) add(weight int, code risk.FactorCode, message string) {
	b.raw += weight
	b.factors = append(b.factors, risk.Factor{Code: code, Message: message})
}

// build derives score, level, probability, confidence and the inline
// alert entries.
func (b *builder) build() *risk.Assessment {
	score := risk.Clamp(b.raw)
	level := risk.LevelForScore(score)

	a := &risk.Assessment{
		UserID:               b.userID,
		ProductID:            b.productID,
		Score:                score,
		Level:                level,
		Factors:              b.factors,
		Recommendations:      risk.RecommendationsForLevel(level),
		Profile:              b.profile,
		RequiresManualReview: level == risk.LevelHigh || level == risk.LevelCritical,
		AssessedAt:           b.now.UTC(),
	}

	a.FraudProbability = deriveFraudProbability(score, b.factors)
	a.Confidence = deriveConfidence(score, len(b.factors))
	a.Alerts = deriveAlerts(a)
	return a
}

// deriveFraudProbability starts from the clamped score and applies a
// bounded multiplicative boost only when at least three distinct
// high-risk factor categories are present. The boost is capped at 1.1x
// so an already-saturated score is not compounded.
func deriveFraudProbability(score int, factors []risk.Factor) int {
	p := score
	if risk.CountHighRisk(factors) >= 3 {
		p = score * 110 / 100
	}
	return risk.Clamp(p)
}

// deriveConfidence grows with explanation count and with how decisively
// the score landed at either extreme.
func deriveConfidence(score, factorCount int) int {
	c := 60
	bonus := 5 * factorCount
	if bonus > 30 {
		bonus = 30
	}
	c += bonus
	if score > 80 || score < 20 {
		c += 10
	}
	return risk.Clamp(c)
}

// deriveAlerts generates the inline alert entries carried on the
// assessment itself.
func deriveAlerts(a *risk.Assessment) []risk.AssessmentAlert {
	var alerts []risk.AssessmentAlert

	if a.Level == risk.LevelCritical {
		alerts = append(alerts, risk.AssessmentAlert{
			Severity: risk.AlertCritical,
			Message:  "critical risk level reached",
			Code:     "CRITICAL_RISK",
		})
	}

	for _, f := range a.Factors {
		switch f.Code {
		case risk.FactorFailedHistory:
			alerts = append(alerts, risk.AssessmentAlert{
				Severity: risk.AlertWarning,
				Message:  f.Message,
				Code:     "FAILED_TX_PATTERN",
			})
		case risk.FactorProxy:
			alerts = append(alerts, risk.AssessmentAlert{
				Severity: risk.AlertWarning,
				Message:  f.Message,
				Code:     "PROXY_SUSPECTED",
			})
		case risk.FactorBotUserAgent:
			alerts = append(alerts, risk.AssessmentAlert{
				Severity: risk.AlertCritical,
				Message:  f.Message,
				Code:     "AUTOMATION_SUSPECTED",
			})
		case risk.FactorVelocity:
			alerts = append(alerts, risk.AssessmentAlert{
				Severity: risk.AlertWarning,
				Message:  f.Message,
				Code:     "VELOCITY_BREACH",
			})
		}
	}

	if a.Score > 90 {
		alerts = append(alerts, risk.AssessmentAlert{
			Severity: risk.AlertCritical,
			Message:  "risk score in extreme range",
			Code:     "EXTREME_SCORE",
		})
	}
	return alerts
}
