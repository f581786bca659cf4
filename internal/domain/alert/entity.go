package alert

import (
	"time"

	"github.com/google/uuid"

	"marketplace-risk-engine/internal/domain/risk"
)

// Type categorizes a fraud alert
type Type string

const (
	TypeHighRisk      Type = "high_risk"
	TypeCriticalRisk  Type = "critical_risk"
	TypeVelocity      Type = "velocity"
	TypeDevice        Type = "device_suspicious"
	TypeBehavioral    Type = "behavioral_anomaly"
	TypeManualReview  Type = "manual_review"
)

// Severity mirrors the risk level of the originating assessment
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Status is the reviewer workflow state of an alert
type Status string

const (
	StatusActive        Status = "active"
	StatusAcknowledged  Status = "acknowledged"
	StatusResolved      Status = "resolved"
	StatusFalsePositive Status = "false_positive"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusFalsePositive
}

// CanTransition validates the forward-only state machine:
// active -> acknowledged -> resolved, or active -> false_positive.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusActive:
		return to == StatusAcknowledged || to == StatusFalsePositive || to == StatusResolved
	case StatusAcknowledged:
		return to == StatusResolved || to == StatusFalsePositive
	default:
		return false
	}
}

// FraudAlert is the persisted record a reviewer works.
// The durable store is authoritative; cache mirrors are best-effort.
type FraudAlert struct {
	ID            uuid.UUID `json:"id"`
	UserID        string    `json:"user_id"`
	TransactionID string    `json:"transaction_id,omitempty"`

	AlertType Type     `json:"alert_type"`
	Severity  Severity `json:"severity"`

	Title       string            `json:"title"`
	Message     string            `json:"message"`
	RiskScore   int               `json:"risk_score"`
	RiskFactors []string          `json:"risk_factors"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	Status         Status     `json:"status"`
	AssignedTo     string     `json:"assigned_to,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolutionNote string     `json:"resolution_note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// New creates an active alert for a user.
func New(userID, transactionID string, alertType Type, severity Severity, title, message string) *FraudAlert {
	return &FraudAlert{
		ID:            uuid.New(),
		UserID:        userID,
		TransactionID: transactionID,
		AlertType:     alertType,
		Severity:      severity,
		Title:         title,
		Message:       message,
		RiskFactors:   make([]string, 0),
		Metadata:      make(map[string]string),
		Status:        StatusActive,
		CreatedAt:     time.Now().UTC(),
	}
}

// SeverityForLevel maps an assessment level to an alert severity.
func SeverityForLevel(level risk.Level) Severity {
	switch level {
	case risk.LevelCritical:
		return SeverityCritical
	case risk.LevelHigh:
		return SeverityHigh
	case risk.LevelMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Acknowledge moves the alert to acknowledged, stamping the reviewer.
func (a *FraudAlert) Acknowledge(reviewerID string) error {
	if !a.Status.CanTransition(StatusAcknowledged) {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	a.Status = StatusAcknowledged
	a.AcknowledgedBy = reviewerID
	a.AcknowledgedAt = &now
	return nil
}

// Resolve moves the alert to resolved with an optional note.
func (a *FraudAlert) Resolve(reviewerID, note string) error {
	if !a.Status.CanTransition(StatusResolved) {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	a.Status = StatusResolved
	a.ResolvedBy = reviewerID
	a.ResolvedAt = &now
	a.ResolutionNote = note
	return nil
}

// MarkFalsePositive closes the alert as a false positive.
func (a *FraudAlert) MarkFalsePositive(reviewerID, note string) error {
	if !a.Status.CanTransition(StatusFalsePositive) {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	a.Status = StatusFalsePositive
	a.ResolvedBy = reviewerID
	a.ResolvedAt = &now
	a.ResolutionNote = note
	return nil
}

// RealTimeAlert is the flattened shape broadcast to reviewers.
type RealTimeAlert struct {
	AlertID        uuid.UUID `json:"alert_id"`
	Severity       Severity  `json:"severity"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	UserID         string    `json:"user_id"`
	TransactionID  string    `json:"transaction_id,omitempty"`
	RiskScore      int       `json:"risk_score"`
	Timestamp      string    `json:"timestamp"` // ISO-8601
	RequiresAction bool      `json:"requires_action"`
}

// ToRealTime flattens the alert for the broadcast channel.
func (a *FraudAlert) ToRealTime() *RealTimeAlert {
	return &RealTimeAlert{
		AlertID:        a.ID,
		Severity:       a.Severity,
		Title:          a.Title,
		Message:        a.Message,
		UserID:         a.UserID,
		TransactionID:  a.TransactionID,
		RiskScore:      a.RiskScore,
		Timestamp:      a.CreatedAt.Format(time.RFC3339),
		RequiresAction: a.Severity == SeverityCritical,
	}
}
