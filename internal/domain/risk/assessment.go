package risk

import (
	"time"
)

// Level represents the severity band of a risk assessment
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// LevelForScore maps a clamped score to its risk level.
// Boundaries are upper-exclusive: 25 is still low, 50 still medium, 75 still high.
func LevelForScore(score int) Level {
	switch {
	case score <= 25:
		return LevelLow
	case score <= 50:
		return LevelMedium
	case score <= 75:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// AlertSeverity classifies inline assessment alerts
type AlertSeverity string

const (
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// AssessmentAlert is an inline alert entry carried on an assessment
type AssessmentAlert struct {
	Severity AlertSeverity `json:"severity"`
	Message  string        `json:"message"`
	Code     string        `json:"code"`
}

// Profile holds the per-analyzer sub-scores that fed the total
type Profile struct {
	Device     int `json:"device"`
	Behavioral int `json:"behavioral"`
	Location   int `json:"location"`
	Velocity   int `json:"velocity"`
}

// Assessment is the outcome of scoring a prospective transaction.
// It is treated as immutable once produced by the engine.
type Assessment struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`

	Score            int    `json:"score"`
	Level            Level  `json:"level"`
	Confidence       int    `json:"confidence"`
	FraudProbability int    `json:"fraud_probability"`

	Factors         []Factor          `json:"factors"`
	Recommendations []string          `json:"recommendations"`
	Alerts          []AssessmentAlert `json:"alerts"`
	Profile         Profile           `json:"risk_profile"`

	RequiresManualReview bool `json:"requires_manual_review"`

	AssessedAt time.Time `json:"assessed_at"`
}

// FactorMessages returns the human-readable explanations in factor order.
func (a *Assessment) FactorMessages() []string {
	msgs := make([]string, len(a.Factors))
	for i, f := range a.Factors {
		msgs[i] = f.Message
	}
	return msgs
}

// HasFactor reports whether any factor carries the given code.
func (a *Assessment) HasFactor(code FactorCode) bool {
	for _, f := range a.Factors {
		if f.Code == code {
			return true
		}
	}
	return false
}

// Clamp bounds v to [0, 100].
func Clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// RecommendationsForLevel derives the reviewer guidance for a level.
func RecommendationsForLevel(level Level) []string {
	switch level {
	case LevelCritical:
		return []string{
			"Block transaction pending admin approval",
			"Escalate to fraud review queue immediately",
		}
	case LevelHigh:
		return []string{
			"Hold funds in escrow for 24 hours",
			"Require manual review before release",
		}
	case LevelMedium:
		return []string{
			"Allow transaction, monitor account activity",
		}
	default:
		return []string{
			"No action required",
		}
	}
}
