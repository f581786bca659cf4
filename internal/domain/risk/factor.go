package risk

// FactorCode identifies a scoring contribution without relying on
// substring matching over the human-readable message.
type FactorCode string

const (
	FactorNewAccount     FactorCode = "new_account"
	FactorRecentAccount  FactorCode = "recent_account"
	FactorHighValue      FactorCode = "high_value"
	FactorFailedHistory  FactorCode = "failed_history"
	FactorSellerRisk     FactorCode = "seller_risk"
	FactorRiskyProduct   FactorCode = "risky_product"
	FactorNoChatHistory  FactorCode = "no_chat_history"
	FactorThinChat       FactorCode = "thin_chat"
	FactorUnusualHour    FactorCode = "unusual_hour"
	FactorBotUserAgent   FactorCode = "bot_user_agent"
	FactorRateBreach     FactorCode = "rate_breach"
	FactorVelocity       FactorCode = "velocity"
	FactorDevice         FactorCode = "device_suspicious"
	FactorProxy          FactorCode = "proxy_indicators"
	FactorBehavioral     FactorCode = "behavioral_anomaly"
	FactorGeo            FactorCode = "geo_risk"
	FactorUserNotFound   FactorCode = "user_not_found"
	FactorProductMissing FactorCode = "product_not_found"
	FactorSystemError    FactorCode = "system_error"
)

// Factor pairs a machine-readable code with its explanation.
type Factor struct {
	Code    FactorCode `json:"code"`
	Message string     `json:"message"`
}

// highRiskCodes are the factor categories that feed the fraud-probability
// boost when three or more distinct ones are present.
var highRiskCodes = map[FactorCode]bool{
	FactorHighValue:     true,
	FactorFailedHistory: true,
	FactorBotUserAgent:  true,
	FactorRateBreach:    true,
	FactorVelocity:      true,
	FactorDevice:        true,
	FactorProxy:         true,
	FactorBehavioral:    true,
	FactorGeo:           true,
}

// IsHighRisk reports whether the code counts toward the probability boost.
func (c FactorCode) IsHighRisk() bool {
	return highRiskCodes[c]
}

// CountHighRisk counts the distinct high-risk codes among factors.
func CountHighRisk(factors []Factor) int {
	seen := make(map[FactorCode]bool)
	for _, f := range factors {
		if f.Code.IsHighRisk() {
			seen[f.Code] = true
		}
	}
	return len(seen)
}
