// Package analyzer holds the specialized risk analyzers the assessment
// engine fans out to: velocity, device fingerprint, behavioral baseline
// and geo reputation. Each produces a Signal; the engine owns weighting
// and factor attribution.
package analyzer

// Signal is the result of a single analyzer run.
type Signal struct {
	IsRisky bool   `json:"is_risky"`
	Reason  string `json:"reason"`
	Score   int    `json:"score"`
}

// none is the neutral signal.
func none() Signal {
	return Signal{Reason: "no risk indicators"}
}
