package alert

// Stats are the aggregate numbers shown on the reviewer dashboard.
type Stats struct {
	TotalActive  int64 `json:"total_active"`
	TotalToday   int64 `json:"total_today"`
	HighPriority int64 `json:"high_priority"` // active alerts at high or critical severity

	ByType   map[Type]int64   `json:"by_type"`
	ByStatus map[Status]int64 `json:"by_status"`

	// AvgResolutionMinutes averages acknowledge->resolve latency over
	// alerts carrying both timestamps.
	AvgResolutionMinutes float64 `json:"avg_resolution_minutes"`

	// FalsePositiveRate is the percentage of closed alerts marked
	// false_positive.
	FalsePositiveRate float64 `json:"false_positive_rate"`

	// Degraded is set when the durable store could not serve the
	// aggregate query and the numbers were recomputed from whatever
	// alerts were retrievable.
	Degraded bool `json:"degraded,omitempty"`
}

// NewStats returns an empty, map-initialized Stats.
func NewStats() *Stats {
	return &Stats{
		ByType:   make(map[Type]int64),
		ByStatus: make(map[Status]int64),
	}
}
